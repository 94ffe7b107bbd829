package catalog

import (
	"context"
	"errors"

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

const testCols = `id, tenant_id, code, name, specimen_type, price, active, created_at, updated_at`

func (r *repoPG) CreateTest(ctx context.Context, t *Test) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test (id, tenant_id, code, name, specimen_type, price, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.TenantID, t.Code, t.Name, t.SpecimenType, t.Price, t.Active,
	)
	if isUniqueViolation(err) {
		return fault.Conflict("test code %s already exists", t.Code)
	}
	return err
}

func (r *repoPG) GetTestByID(ctx context.Context, tenantID string, id uuid.UUID) (*Test, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_test WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanTest(row)
}

func (r *repoPG) GetTestByCode(ctx context.Context, tenantID, code string) (*Test, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_test WHERE tenant_id = $1 AND code = $2`, tenantID, code)
	return scanTest(row)
}

func (r *repoPG) ListTests(ctx context.Context, tenantID string, limit, offset int) ([]*Test, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_test WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM lab_test WHERE tenant_id = $1 ORDER BY code LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []*Test
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Code, &t.Name, &t.SpecimenType,
			&t.Price, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tests = append(tests, &t)
	}
	return tests, total, rows.Err()
}

const paramCols = `id, tenant_id, test_id, code, name, unit, reference_range, critical_low, critical_high, sort_order`

func (r *repoPG) CreateParameter(ctx context.Context, p *Parameter) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test_parameter (id, tenant_id, test_id, code, name, unit, reference_range, critical_low, critical_high, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.TenantID, p.TestID, p.Code, p.Name, p.Unit, p.ReferenceRange,
		p.CriticalLow, p.CriticalHigh, p.SortOrder,
	)
	return err
}

func (r *repoPG) GetParameter(ctx context.Context, tenantID string, id uuid.UUID) (*Parameter, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+paramCols+` FROM lab_test_parameter WHERE tenant_id = $1 AND id = $2`, tenantID, id)

	var p Parameter
	err := row.Scan(&p.ID, &p.TenantID, &p.TestID, &p.Code, &p.Name, &p.Unit,
		&p.ReferenceRange, &p.CriticalLow, &p.CriticalHigh, &p.SortOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("parameter %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) ListParameters(ctx context.Context, tenantID string, testID uuid.UUID) ([]*Parameter, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paramCols+` FROM lab_test_parameter WHERE tenant_id = $1 AND test_id = $2 ORDER BY sort_order`,
		tenantID, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []*Parameter
	for rows.Next() {
		var p Parameter
		if err := rows.Scan(&p.ID, &p.TenantID, &p.TestID, &p.Code, &p.Name, &p.Unit,
			&p.ReferenceRange, &p.CriticalLow, &p.CriticalHigh, &p.SortOrder); err != nil {
			return nil, err
		}
		params = append(params, &p)
	}
	return params, rows.Err()
}

func scanTest(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.TenantID, &t.Code, &t.Name, &t.SpecimenType,
		&t.Price, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("test not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
