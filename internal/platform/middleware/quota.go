package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/platform/db"
)

// Where Throttle smooths short bursts, quotas cap sustained volume per
// tenant over minute and day windows, so one busy lab cannot starve the
// rest of the cluster.

// QuotaTier is a named volume allowance. A zero limit means uncapped.
type QuotaTier struct {
	Name      string `json:"name"`
	PerMinute int    `json:"per_minute"`
	PerDay    int    `json:"per_day"`
	InFlight  int    `json:"in_flight"`
}

// DefaultQuotaTiers returns the built-in allowances. Every tenant starts
// on "standard" until reassigned.
func DefaultQuotaTiers() []QuotaTier {
	return []QuotaTier{
		{Name: "standard", PerMinute: 600, PerDay: 50000, InFlight: 25},
		{Name: "high_volume", PerMinute: 3000, PerDay: 500000, InFlight: 100},
		{Name: "unlimited"},
	}
}

// QuotaUsage is the snapshot a tenant sees of its own consumption.
type QuotaUsage struct {
	TenantID      string    `json:"tenant_id"`
	Tier          string    `json:"tier"`
	MinuteUsed    int       `json:"minute_used"`
	MinuteLimit   int       `json:"minute_limit"`
	DayUsed       int       `json:"day_used"`
	DayLimit      int       `json:"day_limit"`
	InFlight      int       `json:"in_flight"`
	InFlightLimit int       `json:"in_flight_limit"`
	MinuteResets  time.Time `json:"minute_resets"`
}

type quotaWindow struct {
	minute     int
	day        int
	inFlight   int
	minuteEnds time.Time
	dayEnds    time.Time
	lastSeen   time.Time
}

// TenantQuotas tracks per-tenant consumption against the assigned tier.
// A single mutex guards everything; the counters are touched once per
// request and never on a hot loop.
type TenantQuotas struct {
	mu       sync.Mutex
	tiers    map[string]QuotaTier
	assigned map[string]string
	usage    map[string]*quotaWindow
}

func NewTenantQuotas() *TenantQuotas {
	q := &TenantQuotas{
		tiers:    make(map[string]QuotaTier),
		assigned: make(map[string]string),
		usage:    make(map[string]*quotaWindow),
	}
	for _, tier := range DefaultQuotaTiers() {
		q.tiers[tier.Name] = tier
	}
	return q
}

// SetTier moves a tenant onto the named tier.
func (q *TenantQuotas) SetTier(tenantID, tierName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tiers[tierName]; !ok {
		return fmt.Errorf("quota tier %q not found", tierName)
	}
	q.assigned[tenantID] = tierName
	return nil
}

// TierFor returns the tenant's tier, defaulting to "standard".
func (q *TenantQuotas) TierFor(tenantID string) QuotaTier {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tierLocked(tenantID)
}

func (q *TenantQuotas) tierLocked(tenantID string) QuotaTier {
	name, ok := q.assigned[tenantID]
	if !ok {
		name = "standard"
	}
	tier, ok := q.tiers[name]
	if !ok {
		tier = q.tiers["standard"]
	}
	return tier
}

func (q *TenantQuotas) windowLocked(tenantID string) *quotaWindow {
	w, ok := q.usage[tenantID]
	now := time.Now()
	if !ok {
		w = &quotaWindow{minuteEnds: now.Add(time.Minute), dayEnds: now.Add(24 * time.Hour)}
		q.usage[tenantID] = w
	}
	if now.After(w.minuteEnds) {
		w.minute = 0
		w.minuteEnds = now.Add(time.Minute)
	}
	if now.After(w.dayEnds) {
		w.day = 0
		w.dayEnds = now.Add(24 * time.Hour)
	}
	w.lastSeen = now
	return w
}

// Admit charges one request against the tenant's quota. Admitted requests
// hold an in-flight slot until Done is called.
func (q *TenantQuotas) Admit(tenantID string) (bool, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tier := q.tierLocked(tenantID)
	w := q.windowLocked(tenantID)

	switch {
	case tier.InFlight > 0 && w.inFlight >= tier.InFlight:
		return false, 1
	case tier.PerMinute > 0 && w.minute >= tier.PerMinute:
		return false, secondsUntil(w.minuteEnds)
	case tier.PerDay > 0 && w.day >= tier.PerDay:
		return false, secondsUntil(w.dayEnds)
	}

	w.minute++
	w.day++
	w.inFlight++
	return true, 0
}

// Done releases the in-flight slot taken by Admit.
func (q *TenantQuotas) Done(tenantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.usage[tenantID]; ok && w.inFlight > 0 {
		w.inFlight--
	}
}

// Usage reports the tenant's current consumption.
func (q *TenantQuotas) Usage(tenantID string) QuotaUsage {
	q.mu.Lock()
	defer q.mu.Unlock()
	tier := q.tierLocked(tenantID)
	w := q.windowLocked(tenantID)
	return QuotaUsage{
		TenantID:      tenantID,
		Tier:          tier.Name,
		MinuteUsed:    w.minute,
		MinuteLimit:   tier.PerMinute,
		DayUsed:       w.day,
		DayLimit:      tier.PerDay,
		InFlight:      w.inFlight,
		InFlightLimit: tier.InFlight,
		MinuteResets:  w.minuteEnds,
	}
}

// Sweep drops usage windows whose day has lapsed with nothing in flight.
// It blocks until ctx is done, so run it in a goroutine.
func (q *TenantQuotas) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			q.mu.Lock()
			for tenantID, w := range q.usage {
				if now.After(w.dayEnds) && w.inFlight == 0 {
					delete(q.usage, tenantID)
				}
			}
			q.mu.Unlock()
		}
	}
}

// Quota enforces the calling tenant's volume allowance. Requests without
// a resolved tenant are charged to the client IP on the standard tier.
func Quota(quotas *TenantQuotas) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := db.TenantFromContext(c.Request().Context())
			if key == "" {
				key = c.RealIP()
			}

			ok, retryAfter := quotas.Admit(key)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "quota exceeded")
			}
			err := next(c)
			quotas.Done(key)
			return err
		}
	}
}

// QuotaHandler lets a tenant inspect its own allowance. There is no
// mutation surface here; tier assignment stays server-side.
type QuotaHandler struct {
	quotas *TenantQuotas
}

func NewQuotaHandler(quotas *TenantQuotas) *QuotaHandler {
	return &QuotaHandler{quotas: quotas}
}

func (h *QuotaHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/quota", h.Current)
	g.GET("/quota/tiers", h.Tiers)
}

// Current returns the calling tenant's usage snapshot.
func (h *QuotaHandler) Current(c echo.Context) error {
	tenantID := db.TenantFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.quotas.Usage(tenantID))
}

// Tiers lists the available allowances.
func (h *QuotaHandler) Tiers(c echo.Context) error {
	h.quotas.mu.Lock()
	tiers := make([]QuotaTier, 0, len(h.quotas.tiers))
	for _, tier := range h.quotas.tiers {
		tiers = append(tiers, tier)
	}
	h.quotas.mu.Unlock()
	return c.JSON(http.StatusOK, tiers)
}

// secondsUntil returns whole seconds from now until t, minimum 1.
func secondsUntil(t time.Time) int {
	s := int(time.Until(t).Seconds())
	if s < 1 {
		return 1
	}
	return s
}
