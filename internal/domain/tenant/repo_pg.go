package tenant

import (
	"context"
	"errors"

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

const tenantCols = `id, name, active, display_name, logo_url, header_text, footer_text, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, t *Tenant) error {
	if t.Branding.DisplayName == "" {
		t.Branding.DisplayName = t.Name
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tenant (id, name, active, display_name, logo_url, header_text, footer_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Name, t.Active, t.Branding.DisplayName, t.Branding.LogoURL,
		t.Branding.HeaderText, t.Branding.FooterText,
	)
	if isUniqueViolation(err) {
		return fault.Conflict("tenant %s already exists", t.ID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Tenant, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+tenantCols+` FROM tenant WHERE id = $1`, id)
	return scanTenant(row, id)
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tenant`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tenantCols+` FROM tenant ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Active,
			&t.Branding.DisplayName, &t.Branding.LogoURL, &t.Branding.HeaderText, &t.Branding.FooterText,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, &t)
	}
	return tenants, total, rows.Err()
}

func (r *repoPG) UpdateBranding(ctx context.Context, id string, b Branding) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tenant SET display_name=$2, logo_url=$3, header_text=$4, footer_text=$5, updated_at=NOW()
		WHERE id = $1`,
		id, b.DisplayName, b.LogoURL, b.HeaderText, b.FooterText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("tenant %s not found", id)
	}
	return nil
}

func (r *repoPG) ModuleFlags(ctx context.Context, tenantID string) (map[string]bool, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT module_key, enabled FROM tenant_module WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make(map[string]bool)
	for rows.Next() {
		var key string
		var enabled bool
		if err := rows.Scan(&key, &enabled); err != nil {
			return nil, err
		}
		flags[key] = enabled
	}
	return flags, rows.Err()
}

func (r *repoPG) SetModuleFlag(ctx context.Context, tenantID, moduleKey string, enabled bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tenant_module (tenant_id, module_key, enabled)
		VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id, module_key) DO UPDATE SET enabled = $3, updated_at = NOW()`,
		tenantID, moduleKey, enabled,
	)
	return err
}

func scanTenant(row pgx.Row, id string) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Active,
		&t.Branding.DisplayName, &t.Branding.LogoURL, &t.Branding.HeaderText, &t.Branding.FooterText,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("tenant %s not found", id)
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
