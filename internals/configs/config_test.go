package configs

import (
	"testing"
	"time"
)

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("MPESA_CALLBACK_URL", "")
	t.Setenv("MPESA_TIMEOUT", "20s")
	t.Setenv("MPESA_CLAIM_LEASE", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if len(cfg.CorsOrigins) != 2 || cfg.CorsOrigins[1] != "https://b.example" {
		t.Errorf("CorsOrigins = %v", cfg.CorsOrigins)
	}
	if cfg.Mpesa.CallbackURL != "http://localhost:8081/api/payments/mpesa/callback" {
		t.Errorf("CallbackURL = %q", cfg.Mpesa.CallbackURL)
	}
	if got := cfg.Mpesa.EffectiveClaimLease(); got != 35*time.Second {
		t.Errorf("EffectiveClaimLease = %s, want 35s", got)
	}
}

func TestEffectiveClaimLease(t *testing.T) {
	cases := []struct {
		timeout, lease, want time.Duration
	}{
		{20 * time.Second, 0, 35 * time.Second},
		{20 * time.Second, 20 * time.Second, 35 * time.Second},
		{20 * time.Second, time.Minute, time.Minute},
	}
	for _, c := range cases {
		m := MpesaConfig{Timeout: c.timeout, ClaimLease: c.lease}
		if got := m.EffectiveClaimLease(); got != c.want {
			t.Errorf("timeout=%s lease=%s: got %s, want %s", c.timeout, c.lease, got, c.want)
		}
	}
}
