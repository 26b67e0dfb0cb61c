package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/features/notifications/email"
	"noorulfityan_backend/internals/features/payment/donations/events"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
)

type CreateDonationInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Type          string
	Description   *string
	PaymentMethod *string
}

// CreateDonation stores a pending donation and tells the admins about it.
func (s *DonationService) CreateDonation(ctx context.Context, in CreateDonationInput) (*model.Donation, error) {
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than 0"}
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return nil, &ValidationError{Field: "type", Message: "is required"}
	}
	if in.PaymentMethod != nil {
		switch *in.PaymentMethod {
		case model.PaymentMethodMpesa, model.PaymentMethodManual:
		default:
			return nil, &ValidationError{Field: "paymentMethod", Message: "must be mpesa or manual"}
		}
	}

	d := &model.Donation{
		UserID:        in.UserID,
		Amount:        in.Amount.Round(2),
		Type:          typ,
		Status:        model.DonationStatusPending,
		PaymentMethod: in.PaymentMethod,
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if strings.Contains(strings.ToLower(desc), strings.ToLower(checkoutNotePrefix)) {
			return nil, &ValidationError{Field: "description", Message: "must not contain \"" + checkoutNotePrefix + "\""}
		}
		if desc != "" {
			d.Description = &desc
		}
	}

	if err := s.donations.Create(ctx, d); err != nil {
		log.Printf("[ERROR] create donation for user %s: %v", in.UserID, err)
		return nil, err
	}
	log.Printf("[INFO] donation %s created user=%s amount=%s type=%s", d.ID, d.UserID, d.Amount.StringFixed(2), d.Type)

	s.publish(context.WithoutCancel(ctx), events.DonationEvent{
		Type:         events.TypeCreated,
		DonationID:   d.ID.String(),
		UserID:       d.UserID.String(),
		Amount:       d.Amount.StringFixed(2),
		DonationType: d.Type,
		ToStatus:     d.Status,
		Source:       "donor",
		OccurredAt:   s.nowUTC(),
	})
	s.notifyAdmins(ctx, d)
	return d, nil
}

// GetDonation returns the admin view of one donation, donor included.
func (s *DonationService) GetDonation(ctx context.Context, id uuid.UUID) (*model.DonationWithDonor, error) {
	d, err := s.donations.FindWithDonor(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListMyDonations returns the donor's history, newest first.
func (s *DonationService) ListMyDonations(ctx context.Context, userID uuid.UUID) ([]model.Donation, error) {
	return s.donations.ListByUser(ctx, userID)
}

func (s *DonationService) ListDonations(ctx context.Context, f repository.ListFilter) ([]model.DonationWithDonor, int64, error) {
	return s.donations.List(ctx, f)
}

func (s *DonationService) ListCallbackEvents(ctx context.Context, f repository.CallbackEventFilter) ([]model.MpesaCallbackEvent, int64, error) {
	if s.callbacks == nil {
		return nil, 0, nil
	}
	return s.callbacks.List(ctx, f)
}

func (s *DonationService) notifyAdmins(ctx context.Context, d *model.Donation) {
	if s.mailer == nil || s.users == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		log.Printf("[WARN] admin notification for donation %s: %v", d.ID, err)
		return
	}
	if len(admins) == 0 {
		return
	}

	donor := d.UserID.String()
	if u, err := s.users.FindByID(ctx, d.UserID); err == nil {
		donor = u.DisplayName()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[WARN] admin notification for donation %s: donor lookup: %v", d.ID, err)
	}

	msg, err := email.AdminDonationNotification(email.AdminDonationData{
		OrgName: s.orgName,
		Donor:   donor,
		Amount:  d.Amount.StringFixed(2),
		Type:    d.Type,
		Status:  d.Status,
	})
	if err != nil {
		log.Printf("[ERROR] render admin notification for donation %s: %v", d.ID, err)
		return
	}

	for _, a := range admins {
		if err := s.mailer.Send(ctx, a.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
			log.Printf("[WARN] admin notification to %s not sent: %v", a.Email, err)
			s.metrics.notificationFailed()
		}
	}
}
