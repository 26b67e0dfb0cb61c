package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/databases/dbtest"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/mpesa"
	userModel "noorulfityan_backend/internals/features/users/user/model"
	userRepo "noorulfityan_backend/internals/features/users/user/repository"
)

/* ===================== fakes ===================== */

type fakeGateway struct {
	mu        sync.Mutex
	pushCalls int
	lastPush  mpesa.PushRequest

	pushFn  func(ctx context.Context, r mpesa.PushRequest) (*mpesa.PushResponse, error)
	queryFn func(ctx context.Context, id string) (json.RawMessage, error)
}

func (g *fakeGateway) InitiatePush(ctx context.Context, r mpesa.PushRequest) (*mpesa.PushResponse, error) {
	g.mu.Lock()
	g.pushCalls++
	g.lastPush = r
	fn := g.pushFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, r)
	}
	return &mpesa.PushResponse{
		MerchantRequestID: "m-1",
		CheckoutRequestID: "ws_1",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, id string) (json.RawMessage, error) {
	if g.queryFn != nil {
		return g.queryFn(ctx, id)
	}
	return json.RawMessage(`{"ResultCode":"0"}`), nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pushCalls
}

type sentMail struct {
	To, Subject, HTML, Text string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html, Text: text})
	return m.err
}

func (m *fakeMailer) count(subjectPrefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if strings.HasPrefix(s.Subject, subjectPrefix) {
			n++
		}
	}
	return n
}

func (m *fakeMailer) receipts() int { return m.count("Donation Receipt") }

/* ===================== harness ===================== */

type harness struct {
	db        *gorm.DB
	svc       *DonationService
	gw        *fakeGateway
	mail      *fakeMailer
	donations *repository.DonationRepository
	callbacks *repository.CallbackEventRepository

	donor userModel.UserModel
	other userModel.UserModel
	admin userModel.UserModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()

	users := userRepo.NewUserRepository(db)
	mk := func(name, email, role string) userModel.UserModel {
		u := userModel.UserModel{Name: &name, Email: email, Role: role}
		if err := users.Create(ctx, &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u
	}

	h := &harness{
		db:        db,
		gw:        &fakeGateway{},
		mail:      &fakeMailer{},
		donations: repository.NewDonationRepository(db),
		callbacks: repository.NewCallbackEventRepository(db),
		donor:     mk("Amina", "amina@example.org", userModel.RoleUser),
		other:     mk("Yusuf", "yusuf@example.org", userModel.RoleUser),
		admin:     mk("Admin", "admin@example.org", userModel.RoleAdmin),
	}
	h.svc = New(Deps{
		Donations:  h.donations,
		Callbacks:  h.callbacks,
		Gateway:    h.gw,
		Users:      users,
		Mailer:     h.mail,
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		OrgName:    "Noor Ul Fityan",
		ClaimLease: 35 * time.Second,
	})
	return h
}

func (h *harness) createDonation(t *testing.T, method *string) *model.Donation {
	t.Helper()
	d, err := h.svc.CreateDonation(context.Background(), CreateDonationInput{
		UserID:        h.donor.ID,
		Amount:        decimal.NewFromInt(100),
		Type:          "charity",
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	return d
}

func (h *harness) reload(t *testing.T, d *model.Donation) *model.Donation {
	t.Helper()
	fresh, err := h.donations.FindByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return fresh
}

func (h *harness) initiate(t *testing.T, d *model.Donation) *InitiationResult {
	t.Helper()
	res, err := h.svc.InitiatePayment(context.Background(), d.ID, h.donor.ID, "0712345678")
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	return res
}

func strPtr(s string) *string { return &s }

func successCallback(checkoutID, receipt string) *mpesa.StkCallback {
	return &mpesa.StkCallback{
		MerchantRequestID: "m-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &mpesa.CallbackMetadata{Item: []mpesa.MetadataItem{
			{Name: "MpesaReceiptNumber", Value: mpesa.MetadataValue{Raw: receipt, Valid: true}},
		}},
	}
}

func failedCallback(checkoutID, desc string) *mpesa.StkCallback {
	return &mpesa.StkCallback{
		MerchantRequestID: "m-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        1,
		ResultDesc:        desc,
	}
}

func assertImmutable(t *testing.T, before, after *model.Donation) {
	t.Helper()
	if !after.Amount.Equal(before.Amount) {
		t.Errorf("amount changed: %s -> %s", before.Amount, after.Amount)
	}
	if after.Type != before.Type {
		t.Errorf("type changed: %s -> %s", before.Type, after.Type)
	}
	if after.UserID != before.UserID {
		t.Errorf("user changed")
	}
}
