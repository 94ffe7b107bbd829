package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolHealth is the connection pool snapshot attached to the readiness
// response.
type PoolHealth struct {
	Open      int32  `json:"open"`
	Idle      int32  `json:"idle"`
	InUse     int32  `json:"in_use"`
	Max       int32  `json:"max"`
	WaitedFor string `json:"waited_for"`
}

func snapshotPool(pool *pgxpool.Pool) PoolHealth {
	s := pool.Stat()
	return PoolHealth{
		Open:      s.TotalConns(),
		Idle:      s.IdleConns(),
		InUse:     s.AcquiredConns(),
		Max:       s.MaxConns(),
		WaitedFor: s.AcquireDuration().String(),
	}
}

// HealthHandler answers readiness probes with a live database ping, its
// round-trip time, and the pool snapshot.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		pingMillis := time.Since(start).Milliseconds()

		body := map[string]interface{}{
			"status":  "ok",
			"ping_ms": pingMillis,
			"pool":    snapshotPool(pool),
		}
		if err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
