package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/mpesa"
)

type CallbackOutcome string

const (
	OutcomeCompleted CallbackOutcome = "completed"
	OutcomeFailed    CallbackOutcome = "failed"
	// OutcomeDuplicate: the donation was already terminal, nothing changed.
	OutcomeDuplicate CallbackOutcome = "duplicate"
	// OutcomeUnmatched: no pending donation carries this checkout id.
	OutcomeUnmatched CallbackOutcome = "unmatched"
)

type CallbackResult struct {
	Outcome    CallbackOutcome
	DonationID *uuid.UUID
}

// fallbackCandidates caps the description scan used when the correlation id
// column was never written.
const fallbackCandidates = 5

// HandleCallback reconciles one STK callback. raw is the body as delivered and
// is only kept in the callback log. A returned error means nothing was
// committed and the provider should retry.
func (s *DonationService) HandleCallback(ctx context.Context, cb *mpesa.StkCallback, raw []byte) (*CallbackResult, error) {
	if cb == nil || strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return nil, &ValidationError{Field: "CheckoutRequestID", Message: "missing stkCallback.CheckoutRequestID"}
	}
	checkoutID := strings.TrimSpace(cb.CheckoutRequestID)

	evID := s.logCallback(ctx, cb, checkoutID, raw)

	d, byColumn, err := s.findForCallback(ctx, checkoutID)
	if err != nil {
		s.markCallback(ctx, evID, model.CallbackEventFailed, nil, err)
		return nil, err
	}
	if d == nil {
		outcome := s.unmatchedOutcome(ctx, checkoutID)
		s.markCallback(ctx, evID, string(outcome), nil, nil)
		s.metrics.callback(string(outcome))
		if outcome == OutcomeUnmatched {
			log.Printf("[ALERT] mpesa callback %s (result=%d) matches no pending donation", checkoutID, cb.ResultCode)
		} else {
			log.Printf("[INFO] mpesa callback %s already reconciled, ignoring", checkoutID)
		}
		return &CallbackResult{Outcome: outcome}, nil
	}

	guard := repository.TransitionGuard{}
	if byColumn {
		guard.CheckoutRequestID = checkoutID
	}

	var (
		to      string
		note    string
		outcome CallbackOutcome
	)
	if cb.Succeeded() {
		details := cb.Details()
		to, outcome = model.DonationStatusCompleted, OutcomeCompleted
		note = receiptNote(details)
		if details.Amount != nil && !details.Amount.Equal(d.Amount.Round(0)) && !details.Amount.Equal(d.Amount) {
			log.Printf("[WARN] donation %s: M-Pesa confirmed amount %s, expected %s", d.ID, details.Amount.String(), d.Amount.StringFixed(2))
		}
	} else {
		to, outcome = model.DonationStatusFailed, OutcomeFailed
		note = "Payment Failed: " + strings.TrimSpace(cb.ResultDesc)
	}

	changed, err := s.transition(ctx, d, to, note, SourceCallback, guard)
	if err != nil {
		s.markCallback(ctx, evID, model.CallbackEventFailed, &d.ID, err)
		return nil, err
	}
	if !changed {
		// Another delivery of the same callback won the conditional update.
		outcome = OutcomeDuplicate
		s.markCallback(ctx, evID, model.CallbackEventDuplicate, &d.ID, nil)
	} else {
		s.markCallback(ctx, evID, model.CallbackEventProcessed, &d.ID, nil)
	}

	s.metrics.callback(string(outcome))
	id := d.ID
	return &CallbackResult{Outcome: outcome, DonationID: &id}, nil
}

// findForCallback looks the donation up by correlation id and falls back to
// the audit trail. byColumn reports which path matched.
func (s *DonationService) findForCallback(ctx context.Context, checkoutID string) (*model.Donation, bool, error) {
	d, err := s.donations.FindPendingByCheckoutID(ctx, checkoutID)
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	// an id already stored on some row belongs to that row, whatever its status
	if owner, err := s.donations.FindByCheckoutID(ctx, checkoutID); err == nil && owner != nil {
		return nil, false, nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	candidates, err := s.donations.FindPendingByDescription(ctx, checkoutID, fallbackCandidates)
	if err != nil {
		return nil, false, err
	}

	token := checkoutNote(checkoutID)
	var matches []model.Donation
	for _, c := range candidates {
		if c.Description != nil && hasAuditToken(*c.Description, token) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		log.Printf("[WARN] mpesa callback %s matched donation %s through its description", checkoutID, matches[0].ID)
		return &matches[0], false, nil
	default:
		log.Printf("[ALERT] mpesa callback %s matches %d donations by description, refusing to guess", checkoutID, len(matches))
		return nil, false, nil
	}
}

// unmatchedOutcome separates replays of already-settled checkouts from
// callbacks nobody knows about.
func (s *DonationService) unmatchedOutcome(ctx context.Context, checkoutID string) CallbackOutcome {
	d, err := s.donations.FindByCheckoutID(ctx, checkoutID)
	if err == nil && d != nil && !d.IsPending() {
		return OutcomeDuplicate
	}
	return OutcomeUnmatched
}

func hasAuditToken(description, token string) bool {
	for _, part := range strings.Split(description, model.AuditSeparator) {
		if strings.TrimSpace(part) == token {
			return true
		}
	}
	return false
}

func receiptNote(p mpesa.PaymentDetails) string {
	receipt, phone := "N/A", "N/A"
	if p.ReceiptNumber != nil {
		receipt = *p.ReceiptNumber
	}
	if p.PhoneNumber != nil {
		phone = *p.PhoneNumber
	}
	return "M-Pesa Receipt: " + receipt + model.AuditSeparator + "Phone: " + phone
}

/* ===================== callback log ===================== */

func (s *DonationService) logCallback(ctx context.Context, cb *mpesa.StkCallback, checkoutID string, raw []byte) uuid.UUID {
	if s.callbacks == nil {
		return uuid.Nil
	}
	ev := &model.MpesaCallbackEvent{
		CheckoutRequestID: checkoutID,
		ResultCode:        cb.ResultCode,
		ReceivedAt:        s.nowUTC(),
		Status:            model.CallbackEventReceived,
	}
	if cb.MerchantRequestID != "" {
		m := cb.MerchantRequestID
		ev.MerchantRequestID = &m
	}
	if cb.ResultDesc != "" {
		r := cb.ResultDesc
		ev.ResultDesc = &r
	}
	if len(raw) > 0 {
		ev.Payload = datatypes.JSON(raw)
	}
	if err := s.callbacks.Create(ctx, ev); err != nil {
		log.Printf("[WARN] mpesa callback %s not logged: %v", checkoutID, err)
		return uuid.Nil
	}
	return ev.ID
}

func (s *DonationService) markCallback(ctx context.Context, id uuid.UUID, status string, donationID *uuid.UUID, cause error) {
	if s.callbacks == nil || id == uuid.Nil {
		return
	}
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	if err := s.callbacks.MarkStatus(context.WithoutCancel(ctx), id, status, donationID, msg); err != nil {
		log.Printf("[WARN] mpesa callback event %s not updated: %v", id, err)
	}
}
