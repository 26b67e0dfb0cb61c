package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueryPaymentStatus asks Daraja about a checkout that belongs to one of the
// caller's donations. The provider payload is returned as-is and nothing is
// written.
func (s *DonationService) QueryPaymentStatus(ctx context.Context, userID uuid.UUID, checkoutID string) (json.RawMessage, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, &ValidationError{Field: "checkoutRequestID", Message: "is required"}
	}

	d, err := s.donations.FindByCheckoutID(ctx, checkoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, ErrForbidden
	}

	start := time.Now()
	raw, err := s.gateway.QueryStatus(ctx, checkoutID)
	s.metrics.gatewayCall("stkquery", time.Since(start).Seconds())
	if err != nil {
		log.Printf("[WARN] stk query %s for donation %s failed: %v", checkoutID, d.ID, err)
		return nil, err
	}
	return raw, nil
}
