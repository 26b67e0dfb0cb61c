package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("donation not found")
	ErrForbidden    = errors.New("donation belongs to another user")
	ErrInvalidState = errors.New("invalid donation state")
	ErrConflict     = errors.New("donation is locked by an in-flight M-Pesa payment")
	ErrValidation   = errors.New("validation failed")
)

// Reasons carried by StateError.
const (
	ReasonAlreadyProcessed  = "already processed"
	ReasonPaymentInProgress = "payment already in progress"
	ReasonManualSelected    = "manual payment selected"
)

// StateError is returned when a donation's current state forbids the operation.
// errors.Is(err, ErrInvalidState) holds for every StateError.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "invalid state: " + e.Reason }

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func invalidState(reason string) error { return &StateError{Reason: reason} }

// ValidationError wraps ErrValidation with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
