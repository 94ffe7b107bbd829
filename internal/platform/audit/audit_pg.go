package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGSink appends audit events to the audit_log table. Insert failures are
// logged and swallowed so a broken audit store can never block a clinical
// transition.
type PGSink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPGSink(pool *pgxpool.Pool, logger zerolog.Logger) *PGSink {
	return &PGSink{pool: pool, logger: logger.With().Str("component", "audit_pg").Logger()}
}

func (s *PGSink) Log(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	var detail []byte
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			s.logger.Warn().Err(err).Str("action", e.Action).Msg("drop unmarshalable audit detail")
		} else {
			detail = b
		}
	}

	// Audit rows are written outside the command's transaction on purpose:
	// a rolled-back command keeps its audit trail of the attempt.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, actor_id, action, entity_type, entity_id, from_status, to_status, detail, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		uuid.New(), e.TenantID, e.ActorID, e.Action, e.EntityType, e.EntityID,
		nullable(e.FromStatus), nullable(e.ToStatus), detail, e.At,
	)
	if err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", e.TenantID).
			Str("action", e.Action).
			Str("entity_id", e.EntityID).
			Msg("audit insert failed")
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
