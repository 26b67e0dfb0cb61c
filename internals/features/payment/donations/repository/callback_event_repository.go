package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/features/payment/donations/model"
)

type CallbackEventRepository struct {
	db *gorm.DB
}

func NewCallbackEventRepository(db *gorm.DB) *CallbackEventRepository {
	return &CallbackEventRepository{db: db}
}

type CallbackEventFilter struct {
	Status            string
	CheckoutRequestID string
	Limit             int
	Offset            int
}

func (r *CallbackEventRepository) Create(ctx context.Context, ev *model.MpesaCallbackEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// MarkStatus stamps the processing result of a logged callback.
func (r *CallbackEventRepository) MarkStatus(ctx context.Context, id uuid.UUID, status string, donationID *uuid.UUID, errMsg *string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       status,
		"processed_at": now,
	}
	if donationID != nil {
		updates["donation_id"] = *donationID
	}
	if errMsg != nil {
		updates["error"] = *errMsg
	}
	return r.db.WithContext(ctx).
		Model(&model.MpesaCallbackEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *CallbackEventRepository) List(ctx context.Context, f CallbackEventFilter) ([]model.MpesaCallbackEvent, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.MpesaCallbackEvent{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CheckoutRequestID != "" {
		q = q.Where("checkout_request_id = ?", f.CheckoutRequestID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []model.MpesaCallbackEvent
	q = q.Order("received_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
