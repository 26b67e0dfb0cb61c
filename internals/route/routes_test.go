package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"noorulfityan_backend/internals/databases/dbtest"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/features/payment/mpesa"
	userModel "noorulfityan_backend/internals/features/users/user/model"
	userRepo "noorulfityan_backend/internals/features/users/user/repository"
	helper "noorulfityan_backend/internals/helpers"
)

const testSecret = "test-secret"

type stubGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGateway) InitiatePush(_ context.Context, r mpesa.PushRequest) (*mpesa.PushResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return &mpesa.PushResponse{
		MerchantRequestID: "m-1",
		CheckoutRequestID: "ws_CO_1",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *stubGateway) QueryStatus(_ context.Context, id string) (json.RawMessage, error) {
	return json.RawMessage(`{"ResultCode":"0","CheckoutRequestID":"` + id + `"}`), nil
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string, string) error { return nil }

type testApp struct {
	app   *fiber.App
	db    *gorm.DB
	gw    *stubGateway
	donor userModel.UserModel
	other userModel.UserModel
	admin userModel.UserModel
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := dbtest.Open(t)
	users := userRepo.NewUserRepository(db)

	mk := func(email, role string) userModel.UserModel {
		u := userModel.UserModel{Email: email, Role: role}
		if err := users.Create(context.Background(), &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u
	}

	ta := &testApp{
		db:    db,
		gw:    &stubGateway{},
		donor: mk("donor@example.org", userModel.RoleUser),
		other: mk("other@example.org", userModel.RoleUser),
		admin: mk("admin@example.org", userModel.RoleAdmin),
	}

	reg := prometheus.NewRegistry()
	svc := service.New(service.Deps{
		Donations:  repository.NewDonationRepository(db),
		Callbacks:  repository.NewCallbackEventRepository(db),
		Gateway:    ta.gw,
		Users:      users,
		Mailer:     nopMailer{},
		Metrics:    service.NewMetrics(reg),
		ClaimLease: 35 * time.Second,
	})

	ta.app = fiber.New(fiber.Config{ErrorHandler: helper.ErrorHandler})
	SetupRoutes(ta.app, Options{DB: db, Donations: svc, JWTSecret: testSecret, Gatherer: reg})
	return ta
}

func tokenFor(t *testing.T, u userModel.UserModel) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   u.ID.String(),
		"role": u.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (ta *testApp) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func (ta *testApp) createDonation(t *testing.T) string {
	t.Helper()
	code, body := ta.do(t, http.MethodPost, "/api/donations", tokenFor(t, ta.donor),
		map[string]any{"amount": 250, "type": "zakat"})
	if code != http.StatusCreated {
		t.Fatalf("create donation: %d %v", code, body)
	}
	d := body["donation"].(map[string]any)
	if d["status"] != "pending" {
		t.Fatalf("new donation status = %v", d["status"])
	}
	return d["id"].(string)
}

func callbackBody(checkoutID string, resultCode int) string {
	meta := ""
	if resultCode == 0 {
		meta = `,"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":250},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20250301123015},
			{"Name":"PhoneNumber","Value":254712345678}]}`
	}
	return `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"` + checkoutID +
		`","ResultCode":` + jsonInt(resultCode) + `,"ResultDesc":"done"` + meta + `}}}`
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestDonationPaymentFlow(t *testing.T) {
	ta := newTestApp(t)
	donorTok := tokenFor(t, ta.donor)
	id := ta.createDonation(t)

	code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", donorTok,
		map[string]any{"donationId": id, "phoneNumber": "0712345678"})
	if code != http.StatusOK {
		t.Fatalf("initiate: %d %v", code, body)
	}
	if body["success"] != true || body["checkoutRequestID"] != "ws_CO_1" {
		t.Fatalf("initiate body = %v", body)
	}

	code, body = ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", donorTok,
		map[string]any{"donationId": id, "phoneNumber": "0712345678"})
	if code != http.StatusBadRequest {
		t.Fatalf("second initiate: %d %v", code, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "in progress") {
		t.Fatalf("second initiate error = %q", msg)
	}
	if ta.gw.calls != 1 {
		t.Fatalf("gateway calls = %d, want 1", ta.gw.calls)
	}

	code, body = ta.do(t, http.MethodPost, "/api/payments/mpesa/callback", "", callbackBody("ws_CO_1", 0))
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("callback: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodGet, "/api/user/donations", donorTok, nil)
	if code != http.StatusOK {
		t.Fatalf("list mine: %d %v", code, body)
	}
	rows := body["donations"].([]any)
	if len(rows) != 1 {
		t.Fatalf("donations = %d, want 1", len(rows))
	}
	d := rows[0].(map[string]any)
	if d["status"] != "completed" {
		t.Fatalf("status after callback = %v", d["status"])
	}
	if desc, _ := d["description"].(string); !strings.Contains(desc, "M-Pesa Receipt: NLJ7RT61SV") {
		t.Fatalf("description = %q", desc)
	}
	if _, leaked := d["paymentClaimToken"]; leaked {
		t.Fatal("claim token must not be serialized")
	}

	// replayed delivery is acknowledged and changes nothing
	code, body = ta.do(t, http.MethodPost, "/api/payments/mpesa/callback", "", callbackBody("ws_CO_1", 1))
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("replayed callback: %d %v", code, body)
	}
	_, body = ta.do(t, http.MethodGet, "/api/user/donations", donorTok, nil)
	if s := body["donations"].([]any)[0].(map[string]any)["status"]; s != "completed" {
		t.Fatalf("status after replay = %v", s)
	}

	code, body = ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", donorTok,
		map[string]any{"donationId": id, "phoneNumber": "0712345678"})
	if code != http.StatusBadRequest || body["error"] != "Donation already processed" {
		t.Fatalf("initiate after completion: %d %v", code, body)
	}
}

func TestAuthRequired(t *testing.T) {
	ta := newTestApp(t)

	code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", "",
		map[string]any{"donationId": uuid.NewString(), "phoneNumber": "0712345678"})
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: %d %v", code, body)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("error body = %v", body)
	}

	code, _ = ta.do(t, http.MethodGet, "/api/user/donations", "not-a-jwt", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", code)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  ta.donor.ID.String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	code, _ = ta.do(t, http.MethodGet, "/api/user/donations", expired, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", code)
	}
}

func TestInitiateValidationAndOwnership(t *testing.T) {
	ta := newTestApp(t)
	id := ta.createDonation(t)

	code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", tokenFor(t, ta.donor),
		map[string]any{"donationId": id, "phoneNumber": "0712"})
	if code != http.StatusBadRequest {
		t.Fatalf("short phone: %d %v", code, body)
	}
	details, _ := body["details"].(map[string]any)
	if _, ok := details["phoneNumber"]; !ok {
		t.Fatalf("details = %v", body)
	}

	code, body = ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", tokenFor(t, ta.other),
		map[string]any{"donationId": id, "phoneNumber": "0712345678"})
	if code != http.StatusForbidden {
		t.Fatalf("other user: %d %v", code, body)
	}

	code, _ = ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", tokenFor(t, ta.donor),
		map[string]any{"donationId": uuid.NewString(), "phoneNumber": "0712345678"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown donation: %d", code)
	}
	if ta.gw.calls != 0 {
		t.Fatalf("gateway calls = %d, want 0", ta.gw.calls)
	}
}

func TestCallbackPayloads(t *testing.T) {
	ta := newTestApp(t)

	code, _ := ta.do(t, http.MethodPost, "/api/payments/mpesa/callback", "", `{"Body":`)
	if code != http.StatusBadRequest {
		t.Fatalf("malformed: %d", code)
	}

	code, _ = ta.do(t, http.MethodPost, "/api/payments/mpesa/callback", "", `{"Body":{}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("missing stkCallback: %d", code)
	}

	code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/callback", "", callbackBody("ws_unknown", 0))
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("unmatched: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodGet, "/api/admin/mpesa-callback-events?status=unmatched", tokenFor(t, ta.admin), nil)
	if code != http.StatusOK {
		t.Fatalf("callback events: %d %v", code, body)
	}
	if evs := body["events"].([]any); len(evs) != 1 {
		t.Fatalf("unmatched events = %d, want 1", len(evs))
	}
}

func TestAdminRoutes(t *testing.T) {
	ta := newTestApp(t)
	id := ta.createDonation(t)
	adminTok := tokenFor(t, ta.admin)

	code, _ := ta.do(t, http.MethodGet, "/api/admin/donations", tokenFor(t, ta.donor), nil)
	if code != http.StatusForbidden {
		t.Fatalf("donor on admin route: %d", code)
	}

	code, body := ta.do(t, http.MethodGet, "/api/admin/donations?status=pending&per_page=10", adminTok, nil)
	if code != http.StatusOK {
		t.Fatalf("admin list: %d %v", code, body)
	}
	if p := body["pagination"].(map[string]any); p["total"] != float64(1) {
		t.Fatalf("pagination = %v", p)
	}

	code, body = ta.do(t, http.MethodGet, "/api/admin/donations?search=DONOR@example", adminTok, nil)
	if code != http.StatusOK {
		t.Fatalf("admin search: %d %v", code, body)
	}
	rows := body["donations"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["donorEmail"] != "donor@example.org" {
		t.Fatalf("search rows = %v", rows)
	}
	code, body = ta.do(t, http.MethodGet, "/api/admin/donations?search=other@", adminTok, nil)
	if code != http.StatusOK || len(body["donations"].([]any)) != 0 {
		t.Fatalf("search other donor: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodGet, "/api/admin/donations/"+id, adminTok, nil)
	if code != http.StatusOK || body["donation"].(map[string]any)["donorEmail"] != "donor@example.org" {
		t.Fatalf("admin get: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodPut, "/api/admin/donations/"+id, adminTok, map[string]any{"status": "refunded"})
	if code != http.StatusBadRequest || body["details"] == nil {
		t.Fatalf("invalid status: %d %v", code, body)
	}

	code, body = ta.do(t, http.MethodPut, "/api/admin/donations/"+id, adminTok, map[string]any{"status": "completed"})
	if code != http.StatusOK {
		t.Fatalf("set completed: %d %v", code, body)
	}
	if d := body["donation"].(map[string]any); d["status"] != "completed" {
		t.Fatalf("donation = %v", d)
	}

	for _, st := range []string{"failed", "pending"} {
		code, body = ta.do(t, http.MethodPut, "/api/admin/donations/"+id, adminTok, map[string]any{"status": st})
		if code != http.StatusOK {
			t.Fatalf("set %s: %d %v", st, code, body)
		}
		if d := body["donation"].(map[string]any); d["status"] != st {
			t.Fatalf("donation = %v", d)
		}
	}

	code, _ = ta.do(t, http.MethodGet, "/api/admin/donations/not-a-uuid", adminTok, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", code)
	}

	code, _ = ta.do(t, http.MethodGet, "/api/admin/donations/"+uuid.NewString(), adminTok, nil)
	if code != http.StatusNotFound {
		t.Fatalf("missing donation: %d", code)
	}
}

func TestStatusQuery(t *testing.T) {
	ta := newTestApp(t)
	id := ta.createDonation(t)
	donorTok := tokenFor(t, ta.donor)

	if code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/initiate", donorTok,
		map[string]any{"donationId": id, "phoneNumber": "0712345678"}); code != http.StatusOK {
		t.Fatalf("initiate: %d %v", code, body)
	}

	code, body := ta.do(t, http.MethodPost, "/api/payments/mpesa/status", donorTok,
		map[string]any{"checkoutRequestID": "ws_CO_1"})
	if code != http.StatusOK {
		t.Fatalf("status: %d %v", code, body)
	}
	if st := body["status"].(map[string]any); st["CheckoutRequestID"] != "ws_CO_1" {
		t.Fatalf("status body = %v", body)
	}

	code, _ = ta.do(t, http.MethodPost, "/api/payments/mpesa/status", tokenFor(t, ta.other),
		map[string]any{"checkoutRequestID": "ws_CO_1"})
	if code != http.StatusForbidden {
		t.Fatalf("other user status: %d", code)
	}

	code, _ = ta.do(t, http.MethodPost, "/api/payments/mpesa/status", donorTok, map[string]any{})
	if code != http.StatusBadRequest {
		t.Fatalf("blank id: %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestApp(t)

	code, body := ta.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || body["status"] != "OK" {
		t.Fatalf("health: %d %v", code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}
