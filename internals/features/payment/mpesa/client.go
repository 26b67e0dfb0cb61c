package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
	timestampLayout = "20060102150405"
	tokenExpirySkew = 60 * time.Second
)

/* =========================================================
   Config
========================================================= */

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	CallbackURL    string
	BaseURL        string
	Timeout        time.Duration

	// HTTPClient and Now are optional, tests swap them.
	HTTPClient *http.Client
	Now        func() time.Time
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

/* =========================================================
   Client
========================================================= */

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
	loc  *time.Location

	mu    sync.Mutex
	token cachedToken
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	// Daraja validates the timestamp against East Africa Time.
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.FixedZone("EAT", 3*60*60)
	}

	return &Client{cfg: cfg, http: hc, now: now, loc: loc}
}

// AccessToken returns a bearer token, reusing the cached one until shortly
// before it expires.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.value != "" && now.Before(c.token.expiresAt) {
		return c.token.value, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{StatusCode: resp.StatusCode, Message: providerMessage(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Message: "malformed token response"}
	}

	c.token = cachedToken{}
	if secs, err := strconv.Atoi(strings.TrimSpace(tr.ExpiresIn)); err == nil && secs > 0 {
		ttl := time.Duration(secs)*time.Second - tokenExpirySkew
		if ttl > 0 {
			c.token = cachedToken{value: tr.AccessToken, expiresAt: now.Add(ttl)}
		}
	}
	return tr.AccessToken, nil
}

// InitiatePush sends an STK push. ResponseCode "0" only means the prompt was
// accepted by Safaricom; the payment result arrives later on the callback.
func (c *Client) InitiatePush(ctx context.Context, r PushRequest) (*PushResponse, error) {
	phone, err := NormalizePhone(r.PhoneNumber)
	if err != nil {
		return nil, &GatewayError{Op: "stkpush", Message: "Invalid phone number", Err: err}
	}
	amount := r.Amount.Round(0).IntPart()
	if amount < 1 {
		return nil, &GatewayError{Op: "stkpush", Message: "Amount must be at least 1", Err: ErrInvalidAmount}
	}

	timestamp := c.timestamp()
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  r.AccountReference,
		TransactionDesc:   r.TransactionDesc,
	}

	status, body, err := c.post(ctx, "stkpush", stkPushPath, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, Message: providerMessage(body)}
	}

	var out PushResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, Message: "malformed provider response", Err: err}
	}
	if out.ResponseCode != "0" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = providerMessage(body)
		}
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, ResponseCode: out.ResponseCode, Message: msg}
	}
	if out.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, ResponseCode: out.ResponseCode, Message: "provider returned no CheckoutRequestID"}
	}

	log.Printf("[INFO] mpesa stk push accepted checkout=%s merchant=%s", out.CheckoutRequestID, out.MerchantRequestID)
	return &out, nil
}

// QueryStatus polls Daraja for a checkout and returns the provider payload untouched.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (json.RawMessage, error) {
	timestamp := c.timestamp()
	payload := stkQueryPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	status, body, err := c.post(ctx, "stkquery", stkQueryPath, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &GatewayError{Op: "stkquery", StatusCode: status, Message: providerMessage(body)}
	}
	if !json.Valid(body) {
		return nil, &GatewayError{Op: "stkquery", StatusCode: status, Message: "malformed provider response"}
	}
	return json.RawMessage(body), nil
}

/* =========================================================
   Utils
========================================================= */

func (c *Client) post(ctx context.Context, op, path string, payload any) (int, []byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		log.Printf("[ERROR] mpesa %s: %v", op, err)
		return 0, nil, &GatewayError{Op: op, Message: "M-Pesa authentication failed", Err: err}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[ERROR] mpesa %s transport error: %v", op, err)
		return 0, nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return resp.StatusCode, body, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = cachedToken{}
	c.mu.Unlock()
}

func (c *Client) timestamp() string {
	return c.now().In(c.loc).Format(timestampLayout)
}

func (c *Client) password(timestamp string) string {
	return Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp)
}

// Password = base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func providerMessage(body []byte) string {
	var pe providerError
	if err := json.Unmarshal(body, &pe); err == nil && pe.ErrorMessage != "" {
		return pe.ErrorMessage
	}
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err == nil {
		for _, k := range []string{"ResponseDescription", "CustomerMessage", "error_description", "message"} {
			if s, ok := generic[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// IsGatewayError reports whether err came from the provider side.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	var ae *AuthError
	return errors.As(err, &ge) || errors.As(err, &ae)
}
