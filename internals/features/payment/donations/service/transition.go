package service

import (
	"context"
	"log"
	"time"

	"noorulfityan_backend/internals/features/notifications/email"
	"noorulfityan_backend/internals/features/payment/donations/events"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
)

const (
	SourceCallback = "callback"
	SourceAdmin    = "admin"
)

const sideEffectTimeout = 30 * time.Second

// transition is the single write path for status changes. The row is updated
// only if it still holds d.Status (plus whatever g adds); side effects run
// only when this call actually changed the row.
func (s *DonationService) transition(ctx context.Context, d *model.Donation, to, note, source string, g repository.TransitionGuard) (bool, error) {
	from := d.Status
	changed, err := s.donations.Transition(ctx, d.ID, from, to, note, g)
	if err != nil {
		log.Printf("[ERROR] donation %s %s->%s (%s): %v", d.ID, from, to, source, err)
		return false, err
	}
	if !changed {
		return false, nil
	}

	log.Printf("[INFO] donation %s %s->%s (%s)", d.ID, from, to, source)
	d.Status = to
	if note != "" {
		desc := model.AppendNote(d.Description, note)
		d.Description = &desc
	}

	s.afterTransition(ctx, d, from, to, source)
	return true, nil
}

// afterTransition runs after the durable write. Nothing here can fail the
// transition itself.
func (s *DonationService) afterTransition(ctx context.Context, d *model.Donation, from, to, source string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	amount, _ := d.Amount.Float64()
	s.metrics.transition(from, to, source, d.Type, amount)

	ev := events.DonationEvent{
		Type:         events.TypeStatusChanged,
		DonationID:   d.ID.String(),
		UserID:       d.UserID.String(),
		Amount:       d.Amount.StringFixed(2),
		DonationType: d.Type,
		FromStatus:   from,
		ToStatus:     to,
		Source:       source,
		OccurredAt:   s.nowUTC(),
	}
	if d.MpesaCheckoutRequestID != nil {
		ev.CheckoutRequestID = *d.MpesaCheckoutRequestID
	}
	s.publish(ctx, ev)

	if to == model.DonationStatusCompleted && from != model.DonationStatusCompleted {
		s.sendReceipt(ctx, d)
	}
}

func (s *DonationService) publish(ctx context.Context, ev events.DonationEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Printf("[WARN] publish %s for donation %s: %v", ev.Type, ev.DonationID, err)
	}
}

func (s *DonationService) sendReceipt(ctx context.Context, d *model.Donation) {
	if s.mailer == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, d.UserID)
	if err != nil {
		log.Printf("[WARN] receipt for donation %s: donor %s not loaded: %v", d.ID, d.UserID, err)
		s.metrics.notificationFailed()
		return
	}

	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	msg, err := email.DonationReceipt(email.ReceiptData{
		OrgName:    s.orgName,
		Name:       name,
		Amount:     d.Amount.StringFixed(2),
		DonationID: d.ID.String(),
		Date:       s.now().In(s.loc).Format("January 2, 2006"),
		Type:       d.Type,
	})
	if err != nil {
		log.Printf("[ERROR] render receipt for donation %s: %v", d.ID, err)
		s.metrics.notificationFailed()
		return
	}

	if err := s.mailer.Send(ctx, user.Email, msg.Subject, msg.HTML, msg.Text); err != nil {
		log.Printf("[WARN] receipt for donation %s not sent: %v", d.ID, err)
		s.metrics.notificationFailed()
	}
}
