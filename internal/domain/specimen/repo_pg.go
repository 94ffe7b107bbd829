package specimen

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
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

const itemCols = `id, tenant_id, encounter_id, specimen_type, status, collected_at, collected_by,
	received_at, received_by, postpone_reason, created_at, updated_at`

func (r *repoPG) Upsert(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	if item.Status == "" {
		item.Status = StatusPending
	}
	// The unique index on (tenant_id, encounter_id, specimen_type) makes the
	// insert a no-op when the sample already exists; the RETURNING clause
	// reflects the surviving row either way.
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specimen_item (id, tenant_id, encounter_id, specimen_type, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id, encounter_id, specimen_type) DO UPDATE SET updated_at = NOW()
		RETURNING `+itemCols,
		item.ID, item.TenantID, item.EncounterID, item.SpecimenType, item.Status,
	)
	got, err := scanItem(row)
	if err != nil {
		return err
	}
	*item = *got
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Item, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM specimen_item WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("specimen item %s not found", id)
	}
	return item, err
}

func (r *repoPG) ListByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM specimen_item WHERE tenant_id = $1 AND encounter_id = $2 ORDER BY specimen_type`,
		tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkCollected(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE specimen_item
		SET status = $4, collected_at = $5, collected_by = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = ANY($2) AND status = $3`,
		tenantID, ids, StatusPending, StatusCollected, at, by,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) MarkReceived(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE specimen_item
		SET status = $4, received_at = $5, received_by = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = ANY($2) AND status = $3`,
		tenantID, ids, StatusCollected, StatusReceived, at, by,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) MarkPostponed(ctx context.Context, tenantID string, id uuid.UUID, reason string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE specimen_item
		SET status = $4, postpone_reason = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, id, StatusPending, StatusPostponed, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.Conflict("specimen item %s is not pending", id)
	}
	return nil
}

func (r *repoPG) CountInStatus(ctx context.Context, tenantID string, encounterID uuid.UUID, status string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM specimen_item WHERE tenant_id = $1 AND encounter_id = $2 AND status = $3`,
		tenantID, encounterID, status).Scan(&n)
	return n, err
}

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.TenantID, &i.EncounterID, &i.SpecimenType, &i.Status,
		&i.CollectedAt, &i.CollectedBy, &i.ReceivedAt, &i.ReceivedBy,
		&i.PostponeReason, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanItemRows(rows pgx.Rows) (*Item, error) {
	var i Item
	err := rows.Scan(&i.ID, &i.TenantID, &i.EncounterID, &i.SpecimenType, &i.Status,
		&i.CollectedAt, &i.CollectedBy, &i.ReceivedAt, &i.ReceivedBy,
		&i.PostponeReason, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
