package service

import (
	"context"
	"log"

	"github.com/google/uuid"

	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
)

// SetStatus is the administrative override. Any of pending, completed and
// failed may be set from any status, except while an STK push is in flight or
// awaiting its callback. Setting the current status is a no-op.
func (s *DonationService) SetStatus(ctx context.Context, donationID uuid.UUID, newStatus string) (*model.Donation, error) {
	switch newStatus {
	case model.DonationStatusPending, model.DonationStatusCompleted, model.DonationStatusFailed:
	default:
		return nil, &ValidationError{Field: "status", Message: "must be one of: pending completed failed"}
	}

	d, err := s.load(ctx, donationID)
	if err != nil {
		return nil, err
	}

	now := s.nowUTC()
	if d.GatewayAttemptOutstanding() || d.ClaimLive(now, s.claimLease) {
		return nil, ErrConflict
	}
	if d.Status == newStatus {
		return d, nil
	}

	cutoff := now.Add(-s.claimLease)
	changed, err := s.transition(ctx, d, newStatus, "Status set to "+newStatus+" by admin", SourceAdmin, repository.TransitionGuard{
		RejectOutstandingAttempt: true,
		LeaseCutoff:              &cutoff,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		// The row moved between the read and the write.
		fresh, err := s.load(ctx, donationID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == newStatus {
			return fresh, nil
		}
		log.Printf("[WARN] admin override of donation %s to %s lost a race (now %s)", donationID, newStatus, fresh.Status)
		return nil, ErrConflict
	}

	return s.load(ctx, donationID)
}
