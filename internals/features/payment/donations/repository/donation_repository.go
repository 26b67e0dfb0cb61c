package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"noorulfityan_backend/internals/features/payment/donations/model"
)

/*
  Every write that can race (initiation, callback, admin override) is a single
  conditional UPDATE ... WHERE. Callers look at the returned bool to learn
  whether they won; no transaction is held across the gateway call.
*/

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

type ListFilter struct {
	UserID *uuid.UUID
	Status string
	Type   string
	// Search matches donor name, donor email or description, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// TransitionGuard narrows a status transition beyond "status = from".
type TransitionGuard struct {
	// CheckoutRequestID, when set, must match the stored correlation id.
	CheckoutRequestID string
	// RejectOutstandingAttempt refuses rows that are pending with a recorded mpesa checkout.
	RejectOutstandingAttempt bool
	// LeaseCutoff, when set, refuses rows holding an initiation lease newer than it.
	LeaseCutoff *time.Time
}

/* ====================== READ ====================== */

func (r *DonationRepository) Create(ctx context.Context, d *model.Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DonationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	var d model.Donation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (*model.Donation, error) {
	var d model.Donation
	if err := r.db.WithContext(ctx).
		Where("mpesa_checkout_request_id = ?", checkoutID).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) FindPendingByCheckoutID(ctx context.Context, checkoutID string) (*model.Donation, error) {
	var d model.Donation
	if err := r.db.WithContext(ctx).
		Where("mpesa_checkout_request_id = ? AND status = ?", checkoutID, model.DonationStatusPending).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// FindPendingByDescription returns pending donations without a stored
// correlation id whose audit trail mentions fragment.
func (r *DonationRepository) FindPendingByDescription(ctx context.Context, fragment string, limit int) ([]model.Donation, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []model.Donation
	err := r.db.WithContext(ctx).
		Where("status = ? AND mpesa_checkout_request_id IS NULL", model.DonationStatusPending).
		Where("description LIKE ? ESCAPE '\\'", "%"+escapeLike(fragment)+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *DonationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Donation, error) {
	var out []model.Donation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// FindWithDonor loads one donation together with its donor's name and email.
func (r *DonationRepository) FindWithDonor(ctx context.Context, id uuid.UUID) (*model.DonationWithDonor, error) {
	var out model.DonationWithDonor
	if err := r.withDonor(ctx).Select(donorColumns).Where("donations.id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *DonationRepository) List(ctx context.Context, f ListFilter) ([]model.DonationWithDonor, int64, error) {
	filtered := func() *gorm.DB {
		q := r.withDonor(ctx)
		if f.UserID != nil {
			q = q.Where("donations.user_id = ?", *f.UserID)
		}
		if f.Status != "" {
			q = q.Where("donations.status = ?", f.Status)
		}
		if f.Type != "" {
			q = q.Where("donations.type = ?", f.Type)
		}
		if term := strings.TrimSpace(f.Search); term != "" {
			like := "%" + escapeLike(strings.ToLower(term)) + "%"
			q = q.Where(`(LOWER(COALESCE(users.name, '')) LIKE ? ESCAPE '\'
				OR LOWER(COALESCE(users.email, '')) LIKE ? ESCAPE '\'
				OR LOWER(COALESCE(donations.description, '')) LIKE ? ESCAPE '\')`, like, like, like)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []model.DonationWithDonor
	q := filtered().
		Select(donorColumns).
		Order("donations.created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

const donorColumns = "donations.*, users.name AS donor_name, users.email AS donor_email"

func (r *DonationRepository) withDonor(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("donations").
		Joins("LEFT JOIN users ON users.id = donations.user_id")
}

/* ====================== INITIATION LEASE ====================== */

// ClaimPaymentAttempt takes the initiation lease for id. It succeeds only while
// the donation is pending, has no recorded checkout, is not committed to manual
// payment and holds no lease newer than staleBefore.
func (r *DonationRepository) ClaimPaymentAttempt(ctx context.Context, id uuid.UUID, token string, now, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ?", id).
		Where("status = ?", model.DonationStatusPending).
		Where("mpesa_checkout_request_id IS NULL").
		Where("(payment_method IS NULL OR payment_method = ?)", model.PaymentMethodMpesa).
		Where("(payment_claim_token IS NULL OR payment_claimed_at IS NULL OR payment_claimed_at < ?)", staleBefore).
		Updates(map[string]any{
			"payment_claim_token": token,
			"payment_claimed_at":  now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordCheckout stores the gateway correlation id and clears the lease, but
// only if the lease is still ours.
func (r *DonationRepository) RecordCheckout(ctx context.Context, id uuid.UUID, token, checkoutID, note string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ? AND payment_claim_token = ?", id, token).
		Updates(map[string]any{
			"payment_method":            model.PaymentMethodMpesa,
			"mpesa_checkout_request_id": checkoutID,
			"description":               appendNoteExpr(note),
			"payment_claim_token":       nil,
			"payment_claimed_at":        nil,
			"updated_at":                time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AdoptCheckout stores a correlation id whose lease-guarded write failed. It
// only succeeds while the donation is still pending without a checkout and no
// other request holds a lease on it.
func (r *DonationRepository) AdoptCheckout(ctx context.Context, id uuid.UUID, token, checkoutID, note string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ? AND status = ?", id, model.DonationStatusPending).
		Where("mpesa_checkout_request_id IS NULL").
		Where("(payment_claim_token IS NULL OR payment_claim_token = ?)", token).
		Updates(map[string]any{
			"payment_method":            model.PaymentMethodMpesa,
			"mpesa_checkout_request_id": checkoutID,
			"description":               appendNoteExpr(note),
			"payment_claim_token":       nil,
			"payment_claimed_at":        nil,
			"updated_at":                time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DonationRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, token string) error {
	return r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ? AND payment_claim_token = ?", id, token).
		Updates(map[string]any{
			"payment_claim_token": nil,
			"payment_claimed_at":  nil,
			"updated_at":          time.Now(),
		}).Error
}

/* ====================== STATUS ====================== */

// Transition moves id from one status to another and appends note to the
// audit trail. It reports false when the row no longer matched.
func (r *DonationRepository) Transition(ctx context.Context, id uuid.UUID, from, to, note string, g TransitionGuard) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ? AND status = ?", id, from)

	if g.CheckoutRequestID != "" {
		q = q.Where("mpesa_checkout_request_id = ?", g.CheckoutRequestID)
	}
	if g.RejectOutstandingAttempt {
		q = q.Where("NOT (status = ? AND COALESCE(payment_method, '') = ? AND mpesa_checkout_request_id IS NOT NULL)",
			model.DonationStatusPending, model.PaymentMethodMpesa)
	}
	if g.LeaseCutoff != nil {
		q = q.Where("(payment_claim_token IS NULL OR payment_claimed_at IS NULL OR payment_claimed_at < ?)", *g.LeaseCutoff)
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if note != "" {
		updates["description"] = appendNoteExpr(note)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

/* ====================== UTILS ====================== */

func appendNoteExpr(note string) clause.Expr {
	return gorm.Expr(
		"CASE WHEN description IS NULL OR description = '' THEN ? ELSE description || ? END",
		note, model.AuditSeparator+note,
	)
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
