package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/*
  mpesa_callback_events = log of every STK callback Safaricom delivers.
  One row per delivery, so replays of the same checkout show up as
  separate rows with status duplicate.
*/

const (
	CallbackEventReceived  = "received"
	CallbackEventProcessed = "processed"
	CallbackEventDuplicate = "duplicate"
	CallbackEventUnmatched = "unmatched"
	CallbackEventFailed    = "failed"

	// CallbackEventOrphaned records a checkout M-Pesa accepted that could not
	// be stored on its donation. No callback has arrived for it yet.
	CallbackEventOrphaned = "orphaned"
)

// OrphanResultCode stands in for the result code of an orphaned checkout.
const OrphanResultCode = -1

type MpesaCallbackEvent struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`

	CheckoutRequestID string  `gorm:"column:checkout_request_id;type:varchar(100);not null;index" json:"checkoutRequestID"`
	MerchantRequestID *string `gorm:"column:merchant_request_id;type:varchar(100)" json:"merchantRequestID,omitempty"`
	ResultCode        int     `gorm:"column:result_code;not null" json:"resultCode"`
	ResultDesc        *string `gorm:"column:result_desc;type:text" json:"resultDesc,omitempty"`

	DonationID *uuid.UUID `gorm:"column:donation_id;type:uuid" json:"donationId,omitempty"`

	// Raw body as delivered, for replay / debugging.
	Payload datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`

	Status string  `gorm:"column:status;type:varchar(20);not null;default:received" json:"status"`
	Error  *string `gorm:"column:error;type:text" json:"error,omitempty"`

	ReceivedAt  time.Time  `gorm:"column:received_at;not null" json:"receivedAt"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processedAt,omitempty"`
}

func (MpesaCallbackEvent) TableName() string { return "mpesa_callback_events" }

func (e *MpesaCallbackEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = CallbackEventReceived
	}
	return nil
}
