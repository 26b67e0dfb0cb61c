package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

// newValidator reports field errors under their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

/* ===================== M-Pesa ===================== */

type InitiatePaymentRequest struct {
	DonationID  string `json:"donationId" validate:"required,uuid"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=10,max=20"`
}

func (r *InitiatePaymentRequest) Normalize() {
	r.DonationID = strings.TrimSpace(r.DonationID)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
}

func (r *InitiatePaymentRequest) Validate() error { return validate.Struct(r) }

func (r *InitiatePaymentRequest) DonationUUID() uuid.UUID {
	id, _ := uuid.Parse(r.DonationID)
	return id
}

type StatusQueryRequest struct {
	CheckoutRequestID string `json:"checkoutRequestID" validate:"required,max=100"`
}

func (r *StatusQueryRequest) Validate() error {
	r.CheckoutRequestID = strings.TrimSpace(r.CheckoutRequestID)
	return validate.Struct(r)
}

/* ===================== Donations ===================== */

type CreateDonationRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type" validate:"required,max=50"`
	Description   *string         `json:"description" validate:"omitempty,max=2000"`
	PaymentMethod *string         `json:"paymentMethod" validate:"omitempty,oneof=mpesa manual"`
}

// Validate returns validator errors first; the amount check is reported as a
// single field message.
func (r *CreateDonationRequest) Validate() (map[string]string, error) {
	r.Type = strings.TrimSpace(r.Type)
	if r.PaymentMethod != nil && strings.TrimSpace(*r.PaymentMethod) == "" {
		r.PaymentMethod = nil
	}
	if err := validate.Struct(r); err != nil {
		return nil, err
	}
	if !r.Amount.IsPositive() {
		return map[string]string{"amount": "must be greater than 0"}, nil
	}
	return nil, nil
}

type UpdateDonationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed failed"`
}

func (r *UpdateDonationStatusRequest) Validate() error {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	return validate.Struct(r)
}
