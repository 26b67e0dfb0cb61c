package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/* ===================== Constants ===================== */

const (
	DonationStatusPending   = "pending"
	DonationStatusCompleted = "completed"
	DonationStatusFailed    = "failed"
)

const (
	PaymentMethodMpesa  = "mpesa"
	PaymentMethodManual = "manual"
)

// Separator between notes appended to Donation.Description.
const AuditSeparator = " | "

/* ===================== Model ===================== */

type Donation struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`

	// Amount and Type are fixed at creation.
	Amount decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Type   string          `gorm:"column:type;type:varchar(50);not null" json:"type"`

	// Append-only audit trail.
	Description *string `gorm:"column:description;type:text" json:"description,omitempty"`

	Status        string  `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	PaymentMethod *string `gorm:"column:payment_method;type:varchar(20)" json:"paymentMethod,omitempty"`

	// Correlation id returned by the STK push, the callback join key.
	MpesaCheckoutRequestID *string `gorm:"column:mpesa_checkout_request_id;type:varchar(100);uniqueIndex" json:"mpesaCheckoutRequestID,omitempty"`

	// Initiation lease, set only while a gateway call is in flight.
	PaymentClaimToken *string    `gorm:"column:payment_claim_token;type:varchar(40)" json:"-"`
	PaymentClaimedAt  *time.Time `gorm:"column:payment_claimed_at" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Donation) TableName() string { return "donations" }

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DonationStatusPending
	}
	return nil
}

// DonationWithDonor is the admin view of a donation joined with its donor.
type DonationWithDonor struct {
	Donation
	DonorName  *string `gorm:"column:donor_name" json:"donorName,omitempty"`
	DonorEmail *string `gorm:"column:donor_email" json:"donorEmail,omitempty"`
}

/* ===================== Helpers ===================== */

func (d *Donation) IsPending() bool { return d.Status == DonationStatusPending }

func (d *Donation) UsesMethod(method string) bool {
	return d.PaymentMethod != nil && *d.PaymentMethod == method
}

func (d *Donation) HasCheckout() bool {
	return d.MpesaCheckoutRequestID != nil && *d.MpesaCheckoutRequestID != ""
}

// GatewayAttemptOutstanding reports a recorded STK push still waiting for its callback.
func (d *Donation) GatewayAttemptOutstanding() bool {
	return d.IsPending() && d.UsesMethod(PaymentMethodMpesa) && d.HasCheckout()
}

// ClaimLive reports an initiation lease younger than lease.
func (d *Donation) ClaimLive(now time.Time, lease time.Duration) bool {
	if d.PaymentClaimToken == nil || d.PaymentClaimedAt == nil {
		return false
	}
	return d.PaymentClaimedAt.After(now.Add(-lease))
}

// AccountReference is the short, deterministic reference shown on the donor's handset.
func (d *Donation) AccountReference() string {
	id := d.ID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return "DON-" + strings.ToUpper(id)
}

// AppendNote returns the description with note appended using AuditSeparator.
func AppendNote(desc *string, note string) string {
	if desc == nil || *desc == "" {
		return note
	}
	return *desc + AuditSeparator + note
}
