package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/platform/db"
)

func throttleRequest(t *testing.T, mw echo.MiddlewareFunc, tenantID string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/encounters", nil)
	if tenantID != "" {
		req = req.WithContext(context.WithValue(req.Context(), db.TenantIDKey, tenantID))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, h(c)
}

func TestThrottle_AllowsWithinBurst(t *testing.T) {
	mw := NewThrottle(ThrottleConfig{RefillPerSecond: 1, Burst: 3}).Middleware()
	for i := 0; i < 3; i++ {
		rec, err := throttleRequest(t, mw, "acme")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") == "" {
			t.Error("expected X-RateLimit-Limit header")
		}
	}
}

func TestThrottle_RejectsOverBurst(t *testing.T) {
	mw := NewThrottle(ThrottleConfig{RefillPerSecond: 1, Burst: 2}).Middleware()
	throttleRequest(t, mw, "acme")
	throttleRequest(t, mw, "acme")

	rec, err := throttleRequest(t, mw, "acme")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over burst, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on rejection")
	}
}

func TestThrottle_TenantsDoNotShareBuckets(t *testing.T) {
	mw := NewThrottle(ThrottleConfig{RefillPerSecond: 1, Burst: 1}).Middleware()
	if _, err := throttleRequest(t, mw, "acme"); err != nil {
		t.Fatalf("first tenant: %v", err)
	}
	if _, err := throttleRequest(t, mw, "other"); err != nil {
		t.Errorf("draining one tenant's bucket must not affect another: %v", err)
	}
	if _, err := throttleRequest(t, mw, "acme"); err == nil {
		t.Error("expected the drained tenant to stay rejected")
	}
}

func TestThrottle_FallsBackToClientIP(t *testing.T) {
	// No tenant in context: the bucket keys on the client address, so
	// repeated anonymous requests still drain a single bucket.
	mw := NewThrottle(ThrottleConfig{RefillPerSecond: 0.001, Burst: 1}).Middleware()
	if _, err := throttleRequest(t, mw, ""); err != nil {
		t.Fatalf("first anonymous request: %v", err)
	}
	if _, err := throttleRequest(t, mw, ""); err == nil {
		t.Error("expected second anonymous request from the same address rejected")
	}
}

func TestThrottle_RefillsOverTime(t *testing.T) {
	th := NewThrottle(ThrottleConfig{RefillPerSecond: 1000, Burst: 1})
	if ok, _ := th.take("tenant:acme"); !ok {
		t.Fatal("first take must pass")
	}
	if ok, _ := th.take("tenant:acme"); ok {
		t.Fatal("bucket must be empty immediately after the burst")
	}
	// At 1000 tokens/s the bucket refills within a few milliseconds.
	time.Sleep(5 * time.Millisecond)
	if ok, _ := th.take("tenant:acme"); !ok {
		t.Error("bucket never refilled")
	}
}

func TestThrottle_ZeroConfigUsesDefaults(t *testing.T) {
	th := NewThrottle(ThrottleConfig{})
	if th.cfg.RefillPerSecond != 100 || th.cfg.Burst != 200 {
		t.Errorf("expected default config, got %+v", th.cfg)
	}
}
