package document

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert writes a new document row. A (tenant, type, hash) collision
	// surfaces as a Conflict fault.
	Insert(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Document, error)
	FindByHash(ctx context.Context, tenantID, docType, payloadHash string) (*Document, error)
	List(ctx context.Context, tenantID, docType string, limit, offset int) ([]*Document, int, error)
	SetStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error
	// ResetForRetry moves a FAILED document back to DRAFT and clears its
	// error message.
	ResetForRetry(ctx context.Context, tenantID string, id uuid.UUID) error
	// MarkRendered and MarkFailed are the render worker's terminal writes;
	// both require the document to be RENDERING.
	MarkRendered(ctx context.Context, tenantID string, id uuid.UUID, pdfHash string) error
	MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errorMessage string) error
	Publish(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error

	CreateTemplate(ctx context.Context, tmpl *Template) error
	GetActiveTemplate(ctx context.Context, tenantID, docType string) (*Template, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*Template, error)
}
