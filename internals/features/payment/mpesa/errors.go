package mpesa

import (
	"errors"
	"fmt"
)

var ErrInvalidAmount = errors.New("amount below the M-Pesa minimum")

// AuthError: the OAuth endpoint refused the consumer credentials.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mpesa: access token request failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("mpesa: access token request failed (status %d): %s", e.StatusCode, e.Message)
}

// GatewayError: the provider rejected the request or could not be reached.
// Message is the provider's own text when it sent one.
type GatewayError struct {
	Op           string
	StatusCode   int
	ResponseCode string
	Message      string
	Err          error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "Failed to initiate M-Pesa payment"
	}
	return fmt.Sprintf("mpesa %s: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage is what we can show the donor.
func (e *GatewayError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "Failed to reach M-Pesa, please try again"
}

// Rejected reports a refusal by the provider (bad input, declined request) as
// opposed to an outage or a credential problem on our side.
func (e *GatewayError) Rejected() bool {
	if errors.Is(e.Err, ErrInvalidPhone) || errors.Is(e.Err, ErrInvalidAmount) {
		return true
	}
	var ae *AuthError
	if errors.As(e.Err, &ae) {
		return false
	}
	if e.ResponseCode != "" && e.ResponseCode != "0" {
		return true
	}
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 401 && e.StatusCode != 403
}
