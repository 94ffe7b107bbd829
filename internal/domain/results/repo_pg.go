package results

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/limshq/lims/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const resultCols = `id, tenant_id, lab_order_id, parameter_id, value, unit, reference_range, flag,
	locked, entered_at, entered_by, verified_at, verified_by, created_at, updated_at`

func (r *repoPG) Upsert(ctx context.Context, res *LabResult) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_result (id, tenant_id, lab_order_id, parameter_id, value, unit, reference_range, flag, entered_at, entered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (tenant_id, lab_order_id, parameter_id) DO UPDATE
		SET value = EXCLUDED.value, unit = EXCLUDED.unit, reference_range = EXCLUDED.reference_range,
			flag = EXCLUDED.flag, entered_at = EXCLUDED.entered_at, entered_by = EXCLUDED.entered_by,
			updated_at = NOW()
		WHERE NOT lab_result.locked
		RETURNING `+resultCols,
		res.ID, res.TenantID, res.LabOrderID, res.ParameterID, res.Value,
		res.Unit, res.ReferenceRange, res.Flag, res.EnteredAt, res.EnteredBy,
	).Scan(&res.ID, &res.TenantID, &res.LabOrderID, &res.ParameterID, &res.Value,
		&res.Unit, &res.ReferenceRange, &res.Flag, &res.Locked,
		&res.EnteredAt, &res.EnteredBy, &res.VerifiedAt, &res.VerifiedBy,
		&res.CreatedAt, &res.UpdatedAt)
	// A locked row skips the update and returns nothing; the write is a no-op.
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (r *repoPG) ListByOrder(ctx context.Context, tenantID string, labOrderID uuid.UUID) ([]*LabResult, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+resultCols+` FROM lab_result WHERE tenant_id = $1 AND lab_order_id = $2 ORDER BY created_at`,
		tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LabResult
	for rows.Next() {
		var res LabResult
		if err := rows.Scan(&res.ID, &res.TenantID, &res.LabOrderID, &res.ParameterID, &res.Value,
			&res.Unit, &res.ReferenceRange, &res.Flag, &res.Locked,
			&res.EnteredAt, &res.EnteredBy, &res.VerifiedAt, &res.VerifiedBy,
			&res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (r *repoPG) LockNonEmpty(ctx context.Context, tenantID string, labOrderID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET locked = TRUE, updated_at = NOW()
		WHERE tenant_id = $1 AND lab_order_id = $2 AND value <> '' AND NOT locked`,
		tenantID, labOrderID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) VerifyByOrder(ctx context.Context, tenantID string, labOrderID uuid.UUID, at time.Time, by string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET verified_at = $3, verified_by = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND lab_order_id = $2 AND value <> ''`,
		tenantID, labOrderID, at, by)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
