package document

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/canonical"
	"github.com/limshq/lims/internal/platform/fault"
	"github.com/limshq/lims/internal/platform/renderqueue"
)

// ModuleGuard answers whether a tenant module is effectively enabled.
type ModuleGuard interface {
	ModuleEnabled(ctx context.Context, tenantID, moduleKey string) (bool, error)
}

// BrandingSource supplies the tenant branding merged into every payload.
type BrandingSource interface {
	Branding(ctx context.Context, tenantID string) (tenant.Branding, error)
}

type Service struct {
	repo     Repository
	guard    ModuleGuard
	branding BrandingSource
	queue    renderqueue.Queue
	audit    audit.Sink
	log      zerolog.Logger
}

func NewService(repo Repository, guard ModuleGuard, branding BrandingSource, queue renderqueue.Queue, sink audit.Sink, logger zerolog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		repo:     repo,
		guard:    guard,
		branding: branding,
		queue:    queue,
		audit:    sink,
		log:      logger,
	}
}

// Generate creates the artifact for the payload, or returns the existing one
// when the same content was generated before. created reports which of the
// two happened. Callers normalize volatile payload fields themselves; two
// payloads hash equal exactly when their canonical forms match.
func (s *Service) Generate(ctx context.Context, tenantID, docType string, payload map[string]interface{}, sourceRef, sourceType, actorID string) (*Document, bool, error) {
	moduleKey, ok := typeModules[docType]
	if !ok {
		return nil, false, fault.BadRequest("unknown document type %s", docType)
	}
	enabled, err := s.guard.ModuleEnabled(ctx, tenantID, moduleKey)
	if err != nil {
		return nil, false, err
	}
	if !enabled {
		return nil, false, fault.BadRequest("module %s is not enabled for tenant %s", moduleKey, tenantID)
	}

	tmpl, err := s.repo.GetActiveTemplate(ctx, tenantID, docType)
	if err != nil {
		return nil, false, err
	}

	enriched, err := s.enrich(ctx, tenantID, payload)
	if err != nil {
		return nil, false, err
	}
	hash, err := canonical.Hash(enriched)
	if err != nil {
		return nil, false, fault.BadRequest("payload cannot be hashed: %v", err)
	}

	existing, err := s.repo.FindByHash(ctx, tenantID, docType, hash)
	if err == nil {
		switch existing.Status {
		case StatusFailed:
			return s.retry(ctx, existing, actorID)
		case StatusDraft:
			// The row exists but its render job never made it onto the
			// queue (enqueue failed after insert). Without a new job the
			// document stays DRAFT forever, so enqueue one now.
			if err := s.startRender(ctx, existing, actorID); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		default:
			return existing, false, nil
		}
	}
	if !fault.IsNotFound(err) {
		return nil, false, err
	}

	raw, err := json.Marshal(enriched)
	if err != nil {
		return nil, false, err
	}
	doc := &Document{
		TenantID:    tenantID,
		DocType:     docType,
		TemplateID:  tmpl.ID,
		Payload:     raw,
		PayloadHash: hash,
		Status:      StatusDraft,
	}
	if sourceRef != "" {
		doc.SourceRef = &sourceRef
	}
	if sourceType != "" {
		doc.SourceType = &sourceType
	}

	if err := s.repo.Insert(ctx, doc); err != nil {
		// A concurrent generate with the same content won the insert; hand
		// back its row instead of an error.
		if fault.IsConflict(err) {
			winner, ferr := s.repo.FindByHash(ctx, tenantID, docType, hash)
			if ferr != nil {
				return nil, false, ferr
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	if err := s.startRender(ctx, doc, actorID); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *Service) enrich(ctx context.Context, tenantID string, payload map[string]interface{}) (map[string]interface{}, error) {
	b, err := s.branding.Branding(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	enriched := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["branding"] = map[string]interface{}{
		"displayName": b.DisplayName,
		"logoUrl":     b.LogoURL,
		"headerText":  b.HeaderText,
		"footerText":  b.FooterText,
	}
	return enriched, nil
}

// retry reactivates a FAILED document as if it had never been generated.
func (s *Service) retry(ctx context.Context, doc *Document, actorID string) (*Document, bool, error) {
	if err := s.repo.ResetForRetry(ctx, doc.TenantID, doc.ID); err != nil {
		// Lost the retry race; whoever won has the row moving again.
		if fault.IsConflict(err) {
			current, ferr := s.repo.GetByID(ctx, doc.TenantID, doc.ID)
			if ferr != nil {
				return nil, false, ferr
			}
			return current, false, nil
		}
		return nil, false, err
	}
	doc.Status = StatusDraft
	doc.ErrorMessage = nil
	if err := s.startRender(ctx, doc, actorID); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *Service) startRender(ctx context.Context, doc *Document, actorID string) error {
	job := renderqueue.Job{
		DocumentID:    doc.ID,
		TenantID:      doc.TenantID,
		CorrelationID: uuid.New().String(),
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, doc.TenantID, doc.ID, StatusRendering); err != nil {
		return err
	}
	doc.Status = StatusRendering

	s.audit.Log(ctx, audit.Event{
		TenantID: doc.TenantID, ActorID: actorID, Action: "document.generate",
		EntityType: "document", EntityID: doc.ID.String(),
		FromStatus: StatusDraft, ToStatus: StatusRendering,
		Detail: map[string]interface{}{"doc_type": doc.DocType, "correlation_id": job.CorrelationID},
		At:     time.Now().UTC(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID, docType string, limit, offset int) ([]*Document, int, error) {
	return s.repo.List(ctx, tenantID, docType, limit, offset)
}

// Publish releases a rendered document. Publishing twice is a no-op.
func (s *Service) Publish(ctx context.Context, tenantID string, id uuid.UUID, actorID string) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusPublished {
		return doc, nil
	}
	if err := Transitions.Step("document", doc.Status, StatusPublished); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.repo.Publish(ctx, tenantID, id, now); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "document.publish",
		EntityType: "document", EntityID: id.String(),
		FromStatus: doc.Status, ToStatus: StatusPublished, At: now,
	})
	return s.repo.GetByID(ctx, tenantID, id)
}

// MarkRendered is called by the render worker when a PDF is ready.
func (s *Service) MarkRendered(ctx context.Context, tenantID string, id uuid.UUID, pdfHash string) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("document", doc.Status, StatusRendered); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRendered(ctx, tenantID, id, pdfHash); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, Action: "document.rendered",
		EntityType: "document", EntityID: id.String(),
		FromStatus: StatusRendering, ToStatus: StatusRendered, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, id)
}

// MarkFailed is called by the render worker when rendering gave up.
func (s *Service) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errorMessage string) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("document", doc.Status, StatusFailed); err != nil {
		return nil, err
	}
	if err := s.repo.MarkFailed(ctx, tenantID, id, errorMessage); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, Action: "document.failed",
		EntityType: "document", EntityID: id.String(),
		FromStatus: StatusRendering, ToStatus: StatusFailed,
		Detail: map[string]interface{}{"error": errorMessage}, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) CreateTemplate(ctx context.Context, tmpl *Template) error {
	if _, ok := typeModules[tmpl.DocType]; !ok {
		return fault.BadRequest("unknown document type %s", tmpl.DocType)
	}
	if tmpl.Name == "" {
		return fault.BadRequest("template name is required")
	}
	if tmpl.Body == "" {
		return fault.BadRequest("template body is required")
	}
	return s.repo.CreateTemplate(ctx, tmpl)
}

func (s *Service) ListTemplates(ctx context.Context, tenantID string) ([]*Template, error) {
	return s.repo.ListTemplates(ctx, tenantID)
}
