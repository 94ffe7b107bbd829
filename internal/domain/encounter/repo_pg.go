package encounter

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

const encCols = `id, tenant_id, patient_id, status, encounter_code, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	if enc.Status == "" {
		enc.Status = StatusRegistered
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (id, tenant_id, patient_id, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		enc.ID, enc.TenantID, enc.PatientID, enc.Status,
	).Scan(&enc.CreatedAt, &enc.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	enc, err := scanEncounter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("encounter %s not found", id)
	}
	return enc, err
}

func (r *repoPG) List(ctx context.Context, tenantID string, status string, limit, offset int) ([]*Encounter, int, error) {
	q := r.conn(ctx)

	where := `WHERE tenant_id = $1 AND ($2 = '' OR status = $2)`

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM encounter `+where, tenantID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `SELECT `+encCols+` FROM encounter `+where+
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var encs []*Encounter
	for rows.Next() {
		enc, err := scanEncounter(rows)
		if err != nil {
			return nil, 0, err
		}
		encs = append(encs, enc)
	}
	return encs, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE encounter SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("encounter %s not found", id)
	}
	return nil
}

func (r *repoPG) SetCode(ctx context.Context, tenantID string, id uuid.UUID, code string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET encounter_code = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND encounter_code IS NULL`,
		tenantID, id, code)
	return err
}

func (r *repoPG) NextCodeSeq(ctx context.Context, tenantID, period string) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter_code_seq (tenant_id, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, period) DO UPDATE SET seq = encounter_code_seq.seq + 1
		RETURNING seq`,
		tenantID, period).Scan(&seq)
	return seq, err
}

const orderCols = `id, tenant_id, encounter_id, test_id, test_code, test_name, specimen_type, price,
	status, result_status, submitted_at, submitted_by, verified_at, verified_by, created_at, updated_at`

func (r *repoPG) CreateOrder(ctx context.Context, order *LabOrder) error {
	order.ID = uuid.New()
	if order.Status == "" {
		order.Status = OrderStatusOrdered
	}
	if order.ResultStatus == "" {
		order.ResultStatus = ResultStatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_order (id, tenant_id, encounter_id, test_id, test_code, test_name, specimen_type, price, status, result_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		order.ID, order.TenantID, order.EncounterID, order.TestID, order.TestCode,
		order.TestName, order.SpecimenType, order.Price, order.Status, order.ResultStatus,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

func (r *repoPG) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*LabOrder, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_order WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("lab order %s not found", id)
	}
	return order, err
}

func (r *repoPG) ListOrdersByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*LabOrder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM lab_order WHERE tenant_id = $1 AND encounter_id = $2 ORDER BY created_at`,
		tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*LabOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *repoPG) AdvanceOrders(ctx context.Context, tenantID string, encounterID uuid.UUID, from, to string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_order SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND encounter_id = $2 AND status = $3`,
		tenantID, encounterID, from, to)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) MarkOrderSubmitted(ctx context.Context, tenantID string, id uuid.UUID, at time.Time, by string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_order
		SET status = $3, result_status = $4, submitted_at = $5, submitted_by = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, OrderStatusResulted, ResultStatusSubmitted, at, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("lab order %s not found", id)
	}
	return nil
}

func (r *repoPG) MarkOrdersVerified(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_order
		SET status = $3, verified_at = $4, verified_by = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = ANY($2) AND result_status = $6`,
		tenantID, ids, OrderStatusVerified, at, by, ResultStatusSubmitted)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) CountOrdersByResultStatus(ctx context.Context, tenantID string, encounterID uuid.UUID, resultStatus string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_order WHERE tenant_id = $1 AND encounter_id = $2 AND result_status = $3`,
		tenantID, encounterID, resultStatus).Scan(&n)
	return n, err
}

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &e.Status, &e.EncounterCode, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.TenantID, &o.EncounterID, &o.TestID, &o.TestCode, &o.TestName,
		&o.SpecimenType, &o.Price, &o.Status, &o.ResultStatus,
		&o.SubmittedAt, &o.SubmittedBy, &o.VerifiedAt, &o.VerifiedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
