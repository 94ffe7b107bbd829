package document

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

const docCols = `id, tenant_id, doc_type, template_id, payload, payload_hash, status,
	source_ref, source_type, pdf_hash, error_message, published_at, created_at, updated_at`

func (r *repoPG) Insert(ctx context.Context, doc *Document) error {
	doc.ID = uuid.New()
	if doc.Status == "" {
		doc.Status = StatusDraft
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO document (id, tenant_id, doc_type, template_id, payload, payload_hash, status, source_ref, source_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		doc.ID, doc.TenantID, doc.DocType, doc.TemplateID, doc.Payload,
		doc.PayloadHash, doc.Status, doc.SourceRef, doc.SourceType,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if isUniqueViolation(err) {
		return fault.Conflict("document with hash %s already exists", doc.PayloadHash)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Document, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+docCols+` FROM document WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("document %s not found", id)
	}
	return doc, err
}

func (r *repoPG) FindByHash(ctx context.Context, tenantID, docType, payloadHash string) (*Document, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+docCols+` FROM document WHERE tenant_id = $1 AND doc_type = $2 AND payload_hash = $3`,
		tenantID, docType, payloadHash)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("no %s document with hash %s", docType, payloadHash)
	}
	return doc, err
}

func (r *repoPG) List(ctx context.Context, tenantID, docType string, limit, offset int) ([]*Document, int, error) {
	q := r.conn(ctx)
	where := `WHERE tenant_id = $1 AND ($2 = '' OR doc_type = $2)`

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM document `+where, tenantID, docType).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `SELECT `+docCols+` FROM document `+where+
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, docType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (r *repoPG) SetStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE document SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("document %s not found", id)
	}
	return nil
}

func (r *repoPG) ResetForRetry(ctx context.Context, tenantID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE document SET status = $3, error_message = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $4`,
		tenantID, id, StatusDraft, StatusFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.Conflict("document %s is not failed", id)
	}
	return nil
}

func (r *repoPG) MarkRendered(ctx context.Context, tenantID string, id uuid.UUID, pdfHash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE document SET status = $3, pdf_hash = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		tenantID, id, StatusRendered, pdfHash, StatusRendering)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.Conflict("document %s is not rendering", id)
	}
	return nil
}

func (r *repoPG) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errorMessage string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE document SET status = $3, error_message = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		tenantID, id, StatusFailed, errorMessage, StatusRendering)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.Conflict("document %s is not rendering", id)
	}
	return nil
}

func (r *repoPG) Publish(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE document SET status = $3, published_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		tenantID, id, StatusPublished, at, StatusRendered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.Conflict("document %s is not rendered", id)
	}
	return nil
}

func (r *repoPG) CreateTemplate(ctx context.Context, tmpl *Template) error {
	tmpl.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO document_template (id, tenant_id, doc_type, name, body, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		tmpl.ID, tmpl.TenantID, tmpl.DocType, tmpl.Name, tmpl.Body, tmpl.Active,
	).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)
	if isUniqueViolation(err) {
		return fault.Conflict("active %s template already exists for tenant %s", tmpl.DocType, tmpl.TenantID)
	}
	return err
}

func (r *repoPG) GetActiveTemplate(ctx context.Context, tenantID, docType string) (*Template, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, doc_type, name, body, active, created_at, updated_at
		FROM document_template WHERE tenant_id = $1 AND doc_type = $2 AND active`,
		tenantID, docType)
	var tmpl Template
	err := row.Scan(&tmpl.ID, &tmpl.TenantID, &tmpl.DocType, &tmpl.Name, &tmpl.Body,
		&tmpl.Active, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("no active %s template for tenant %s", docType, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (r *repoPG) ListTemplates(ctx context.Context, tenantID string) ([]*Template, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, tenant_id, doc_type, name, body, active, created_at, updated_at
		FROM document_template WHERE tenant_id = $1 ORDER BY doc_type, created_at`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		var tmpl Template
		if err := rows.Scan(&tmpl.ID, &tmpl.TenantID, &tmpl.DocType, &tmpl.Name, &tmpl.Body,
			&tmpl.Active, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tmpl)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.DocType, &d.TemplateID, &d.Payload, &d.PayloadHash,
		&d.Status, &d.SourceRef, &d.SourceType, &d.PDFHash, &d.ErrorMessage,
		&d.PublishedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
