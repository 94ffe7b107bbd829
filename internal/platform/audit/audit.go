// Package audit records workflow state transitions. Sinks are best-effort:
// a failing sink is logged and never surfaces into the command that emitted
// the event.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event is one append-only audit record.
type Event struct {
	TenantID   string                 `json:"tenant_id"`
	ActorID    string                 `json:"actor_id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	FromStatus string                 `json:"from_status,omitempty"`
	ToStatus   string                 `json:"to_status,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	At         time.Time              `json:"at"`
}

// Sink consumes audit events. Implementations must not return control-flow
// errors to callers; failures are their own to log.
type Sink interface {
	Log(ctx context.Context, e Event)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Log(ctx context.Context, e Event) { f(ctx, e) }

// LogSink writes audit events as structured log lines. It is the fallback
// sink when no persistent store is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Log(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	evt := s.logger.Info().
		Str("tenant_id", e.TenantID).
		Str("actor_id", e.ActorID).
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID).
		Time("at", e.At)
	if e.FromStatus != "" || e.ToStatus != "" {
		evt = evt.Str("from_status", e.FromStatus).Str("to_status", e.ToStatus)
	}
	if len(e.Detail) > 0 {
		evt = evt.Interface("detail", e.Detail)
	}
	evt.Msg("audit")
}

// Nop discards every event. Used in tests that do not assert on auditing.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}
