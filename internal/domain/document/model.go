package document

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/state"
)

// Document maps to the document table: one generated artifact. The unique
// key (tenant_id, doc_type, payload_hash) is what makes generation
// idempotent.
type Document struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	DocType      string          `db:"doc_type" json:"doc_type"`
	TemplateID   uuid.UUID       `db:"template_id" json:"template_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	PayloadHash  string          `db:"payload_hash" json:"payload_hash"`
	Status       string          `db:"status" json:"status"`
	SourceRef    *string         `db:"source_ref" json:"source_ref,omitempty"`
	SourceType   *string         `db:"source_type" json:"source_type,omitempty"`
	PDFHash      *string         `db:"pdf_hash" json:"pdf_hash,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	PublishedAt  *time.Time      `db:"published_at" json:"published_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Template maps to the document_template table. At most one active template
// per (tenant, doc type) is resolvable for generation.
type Template struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	DocType   string    `db:"doc_type" json:"doc_type"`
	Name      string    `db:"name" json:"name"`
	Body      string    `db:"body" json:"body"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Document statuses.
const (
	StatusDraft     = "DRAFT"
	StatusRendering = "RENDERING"
	StatusRendered  = "RENDERED"
	StatusPublished = "PUBLISHED"
	StatusFailed    = "FAILED"
)

// Document types.
const (
	TypeReceipt   = "RECEIPT"
	TypeLabReport = "LAB_REPORT"
)

// typeModules names the tenant module that owns each document type.
var typeModules = map[string]string{
	TypeReceipt:   tenant.ModuleReceipt,
	TypeLabReport: tenant.ModuleLabReport,
}

// Transitions is the render-status state machine. FAILED loops back to DRAFT
// on retry; PUBLISHED is terminal.
var Transitions = state.Table{
	StatusDraft:     {StatusRendering},
	StatusRendering: {StatusRendered, StatusFailed},
	StatusRendered:  {StatusPublished},
	StatusFailed:    {StatusDraft},
	StatusPublished: nil,
}
