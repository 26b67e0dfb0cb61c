package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"noorulfityan_backend/internals/features/payment/donations/events"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/mpesa"
)

type InitiationResult struct {
	CheckoutRequestID string `json:"checkoutRequestID"`
	MerchantRequestID string `json:"merchantRequestID,omitempty"`
	CustomerMessage   string `json:"customerMessage"`
}

// InitiatePayment sends an STK push for a pending donation owned by userID.
//
// The gateway is only called after this request holds the donation's
// initiation lease, and the correlation id is stored before returning, so two
// concurrent requests for the same donation cannot both reach Daraja.
func (s *DonationService) InitiatePayment(ctx context.Context, donationID, userID uuid.UUID, phone string) (*InitiationResult, error) {
	d, err := s.load(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		s.metrics.initiation("forbidden")
		return nil, ErrForbidden
	}

	now := s.nowUTC()
	if err := s.checkInitiable(d, now); err != nil {
		s.metrics.initiation("rejected")
		return nil, err
	}

	token := s.newToken()
	claimed, err := s.donations.ClaimPaymentAttempt(ctx, d.ID, token, now, now.Add(-s.claimLease))
	if err != nil {
		log.Printf("[ERROR] claim initiation for donation %s: %v", d.ID, err)
		return nil, err
	}
	if !claimed {
		// Lost the race; report why against the current row.
		s.metrics.initiation("rejected")
		fresh, err := s.load(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if err := s.checkInitiable(fresh, s.nowUTC()); err != nil {
			return nil, err
		}
		return nil, invalidState(ReasonPaymentInProgress)
	}

	start := time.Now()
	resp, err := s.gateway.InitiatePush(ctx, mpesa.PushRequest{
		PhoneNumber:      phone,
		Amount:           d.Amount,
		AccountReference: d.AccountReference(),
		TransactionDesc:  s.transactionDesc(d),
	})
	s.metrics.gatewayCall("stkpush", time.Since(start).Seconds())

	// From here on the outcome must be persisted even if the caller went away.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err != nil {
		if rerr := s.donations.ReleaseClaim(persistCtx, d.ID, token); rerr != nil {
			log.Printf("[ERROR] release initiation lease for donation %s: %v", d.ID, rerr)
		}
		log.Printf("[WARN] stk push for donation %s failed: %v", d.ID, err)
		s.metrics.initiation("gateway_error")
		return nil, err
	}

	note := checkoutNote(resp.CheckoutRequestID)
	recorded, err := s.donations.RecordCheckout(persistCtx, d.ID, token, resp.CheckoutRequestID, note)
	if err != nil || !recorded {
		cause := err
		if cause == nil {
			cause = errors.New("initiation lease expired")
		}
		if !s.adoptCheckout(persistCtx, d, token, resp.CheckoutRequestID, note, cause) {
			if err != nil {
				return nil, err
			}
			s.metrics.initiation("lease_lost")
			return nil, invalidState(ReasonPaymentInProgress)
		}
	}

	s.metrics.initiation("accepted")
	s.publish(persistCtx, events.DonationEvent{
		Type:              events.TypeCheckoutRecorded,
		DonationID:        d.ID.String(),
		UserID:            d.UserID.String(),
		Amount:            d.Amount.StringFixed(2),
		DonationType:      d.Type,
		CheckoutRequestID: resp.CheckoutRequestID,
		Source:            "initiation",
		OccurredAt:        s.nowUTC(),
	})

	return &InitiationResult{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// adoptCheckout retries storing a checkout M-Pesa already accepted, without
// the lease condition. When that fails too, the id is written to the callback
// log so an operator can reconcile it.
func (s *DonationService) adoptCheckout(ctx context.Context, d *model.Donation, token, checkoutID, note string, cause error) bool {
	log.Printf("[WARN] donation %s: checkout %s accepted by M-Pesa but not stored: %v", d.ID, checkoutID, cause)

	adopted, err := s.donations.AdoptCheckout(ctx, d.ID, token, checkoutID, note)
	if err == nil && adopted {
		log.Printf("[INFO] donation %s: checkout %s stored on retry", d.ID, checkoutID)
		return true
	}
	if err != nil {
		cause = err
	}

	log.Printf("[ALERT] donation %s: checkout %s is orphaned: %v", d.ID, checkoutID, cause)
	s.metrics.initiation("orphaned")
	if s.callbacks == nil {
		return false
	}
	msg := cause.Error()
	id := d.ID
	if err := s.callbacks.Create(ctx, &model.MpesaCallbackEvent{
		CheckoutRequestID: checkoutID,
		ResultCode:        model.OrphanResultCode,
		DonationID:        &id,
		Status:            model.CallbackEventOrphaned,
		Error:             &msg,
		ReceivedAt:        s.nowUTC(),
	}); err != nil {
		log.Printf("[ALERT] donation %s: orphaned checkout %s not logged: %v", d.ID, checkoutID, err)
	}
	return false
}

// checkInitiable evaluates the guards in order: terminal status, an attempt
// already in flight, then a manual payment commitment.
func (s *DonationService) checkInitiable(d *model.Donation, now time.Time) error {
	if !d.IsPending() {
		return invalidState(ReasonAlreadyProcessed)
	}
	if d.GatewayAttemptOutstanding() || d.ClaimLive(now, s.claimLease) {
		return invalidState(ReasonPaymentInProgress)
	}
	if d.UsesMethod(model.PaymentMethodManual) {
		return invalidState(ReasonManualSelected)
	}
	return nil
}

func (s *DonationService) transactionDesc(d *model.Donation) string {
	t := strings.TrimSpace(d.Type)
	if t == "" {
		t = "general"
	}
	return "Donation to " + s.orgName + " - " + t
}

// checkoutNotePrefix marks the audit note the callback fallback matches on.
const checkoutNotePrefix = "M-Pesa Checkout:"

func checkoutNote(checkoutID string) string { return checkoutNotePrefix + " " + checkoutID }
