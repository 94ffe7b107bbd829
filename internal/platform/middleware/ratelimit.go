package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/platform/db"
)

// ThrottleConfig sizes the per-tenant token buckets.
type ThrottleConfig struct {
	// RefillPerSecond is the sustained request rate granted to a tenant.
	RefillPerSecond float64
	// Burst is the bucket capacity: how many requests a tenant may issue
	// back to back after sitting idle.
	Burst int
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{RefillPerSecond: 100, Burst: 200}
}

// Throttle smooths request bursts with one token bucket per tenant.
// Requests arriving before tenant resolution share a bucket per client IP.
type Throttle struct {
	cfg     ThrottleConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu       sync.Mutex
	tokens   float64
	filledAt time.Time
	lastSeen time.Time
}

func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.RefillPerSecond <= 0 || cfg.Burst <= 0 {
		cfg = DefaultThrottleConfig()
	}
	return &Throttle{cfg: cfg, buckets: make(map[string]*bucket)}
}

// take consumes one token from the bucket for key. When the bucket is
// empty it reports how many seconds until a token is available again.
func (t *Throttle) take(key string) (ok bool, retryAfter int) {
	t.mu.Lock()
	b, found := t.buckets[key]
	if !found {
		b = &bucket{tokens: float64(t.cfg.Burst), filledAt: time.Now()}
		t.buckets[key] = b
	}
	t.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.tokens += now.Sub(b.filledAt).Seconds() * t.cfg.RefillPerSecond
	if full := float64(t.cfg.Burst); b.tokens > full {
		b.tokens = full
	}
	b.filledAt = now
	b.lastSeen = now
	if b.tokens < 1 {
		return false, int((1-b.tokens)/t.cfg.RefillPerSecond) + 1
	}
	b.tokens--
	return true, 0
}

// Sweep drops buckets idle for over an hour. It blocks until ctx is done,
// so run it in a goroutine.
func (t *Throttle) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Hour)
			t.mu.Lock()
			for key, b := range t.buckets {
				b.mu.Lock()
				idle := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(t.buckets, key)
				}
			}
			t.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the tenant's sustained rate with 429.
func (t *Throttle) Middleware() echo.MiddlewareFunc {
	limit := strconv.Itoa(int(t.cfg.RefillPerSecond))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := throttleKey(c)
			ok, retryAfter := t.take(key)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !ok {
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func throttleKey(c echo.Context) string {
	if tenantID := db.TenantFromContext(c.Request().Context()); tenantID != "" {
		return "tenant:" + tenantID
	}
	return "ip:" + c.RealIP()
}
