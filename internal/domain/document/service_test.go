package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/fault"
	"github.com/limshq/lims/internal/platform/renderqueue"
)

type mockRepo struct {
	docs      map[uuid.UUID]*Document
	templates map[string]*Template

	// findMisses makes the next n FindByHash calls miss, so a test can
	// steer Generate into the insert-conflict path.
	findMisses int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		docs:      map[uuid.UUID]*Document{},
		templates: map[string]*Template{},
	}
}

func tmplKey(tenantID, docType string) string {
	return tenantID + "/" + docType
}

func (m *mockRepo) Insert(ctx context.Context, doc *Document) error {
	for _, existing := range m.docs {
		if existing.TenantID == doc.TenantID && existing.DocType == doc.DocType && existing.PayloadHash == doc.PayloadHash {
			return fault.Conflict("document with hash %s already exists", doc.PayloadHash)
		}
	}
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now()
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Document, error) {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, fault.NotFound("document %s not found", id)
	}
	cp := *doc
	return &cp, nil
}

func (m *mockRepo) FindByHash(ctx context.Context, tenantID, docType, payloadHash string) (*Document, error) {
	if m.findMisses > 0 {
		m.findMisses--
		return nil, fault.NotFound("no %s document with hash %s", docType, payloadHash)
	}
	for _, doc := range m.docs {
		if doc.TenantID == tenantID && doc.DocType == docType && doc.PayloadHash == payloadHash {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, fault.NotFound("no %s document with hash %s", docType, payloadHash)
}

func (m *mockRepo) List(ctx context.Context, tenantID, docType string, limit, offset int) ([]*Document, int, error) {
	var out []*Document
	for _, doc := range m.docs {
		if doc.TenantID == tenantID && (docType == "" || doc.DocType == docType) {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) SetStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID {
		return fault.NotFound("document %s not found", id)
	}
	doc.Status = status
	return nil
}

func (m *mockRepo) ResetForRetry(ctx context.Context, tenantID string, id uuid.UUID) error {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID || doc.Status != StatusFailed {
		return fault.Conflict("document %s is not failed", id)
	}
	doc.Status = StatusDraft
	doc.ErrorMessage = nil
	return nil
}

func (m *mockRepo) MarkRendered(ctx context.Context, tenantID string, id uuid.UUID, pdfHash string) error {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID || doc.Status != StatusRendering {
		return fault.Conflict("document %s is not rendering", id)
	}
	doc.Status = StatusRendered
	doc.PDFHash = &pdfHash
	return nil
}

func (m *mockRepo) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, errorMessage string) error {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID || doc.Status != StatusRendering {
		return fault.Conflict("document %s is not rendering", id)
	}
	doc.Status = StatusFailed
	doc.ErrorMessage = &errorMessage
	return nil
}

func (m *mockRepo) Publish(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	doc, ok := m.docs[id]
	if !ok || doc.TenantID != tenantID || doc.Status != StatusRendered {
		return fault.Conflict("document %s is not rendered", id)
	}
	doc.Status = StatusPublished
	doc.PublishedAt = &at
	return nil
}

func (m *mockRepo) CreateTemplate(ctx context.Context, tmpl *Template) error {
	tmpl.ID = uuid.New()
	cp := *tmpl
	m.templates[tmplKey(tmpl.TenantID, tmpl.DocType)] = &cp
	return nil
}

func (m *mockRepo) GetActiveTemplate(ctx context.Context, tenantID, docType string) (*Template, error) {
	tmpl, ok := m.templates[tmplKey(tenantID, docType)]
	if !ok || !tmpl.Active {
		return nil, fault.NotFound("no active %s template for tenant %s", docType, tenantID)
	}
	cp := *tmpl
	return &cp, nil
}

func (m *mockRepo) ListTemplates(ctx context.Context, tenantID string) ([]*Template, error) {
	var out []*Template
	for _, tmpl := range m.templates {
		if tmpl.TenantID == tenantID {
			cp := *tmpl
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockGuard struct {
	enabled map[string]bool
}

func (g *mockGuard) ModuleEnabled(ctx context.Context, tenantID, moduleKey string) (bool, error) {
	return g.enabled[moduleKey], nil
}

type mockBranding struct {
	branding map[string]tenant.Branding
}

func (m *mockBranding) Branding(ctx context.Context, tenantID string) (tenant.Branding, error) {
	return m.branding[tenantID], nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	guard    *mockGuard
	branding *mockBranding
	queue    *renderqueue.MemoryQueue
	audits   []audit.Event
}

func newFixture() *fixture {
	repo := newMockRepo()
	guard := &mockGuard{enabled: map[string]bool{
		tenant.ModuleReceipt:   true,
		tenant.ModuleLabReport: true,
	}}
	branding := &mockBranding{branding: map[string]tenant.Branding{
		"acme": {DisplayName: "Acme Diagnostics"},
	}}
	queue := renderqueue.NewMemoryQueue(16)
	f := &fixture{repo: repo, guard: guard, branding: branding, queue: queue}
	sink := audit.SinkFunc(func(_ context.Context, e audit.Event) {
		f.audits = append(f.audits, e)
	})
	f.svc = NewService(repo, guard, branding, queue, sink, zerolog.Nop())
	return f
}

func (f *fixture) auditCount(action string) int {
	n := 0
	for _, e := range f.audits {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (f *fixture) seedTemplate(tenantID, docType string) *Template {
	tmpl := &Template{TenantID: tenantID, DocType: docType, Name: docType + " default", Body: "{{.}}", Active: true}
	f.repo.templates[tmplKey(tenantID, docType)] = tmpl
	tmpl.ID = uuid.New()
	return tmpl
}

func samplePayload() map[string]interface{} {
	return map[string]interface{}{
		"encounterId": "e-1",
		"total":       "42.00",
		"items":       []interface{}{map[string]interface{}{"testCode": "CBC", "price": "42.00"}},
	}
}

func TestGenerate_CreatesAndEnqueues(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)

	doc, created, err := f.svc.Generate(context.Background(), "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !created {
		t.Error("expected created=true for first generation")
	}
	if doc.Status != StatusRendering {
		t.Errorf("expected RENDERING after enqueue, got %s", doc.Status)
	}
	if f.queue.Len() != 1 {
		t.Errorf("expected 1 render job, got %d", f.queue.Len())
	}
	job, ok, err := f.queue.Dequeue(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("Dequeue: ok=%v err=%v", ok, err)
	}
	if job.DocumentID != doc.ID || job.TenantID != "acme" {
		t.Errorf("job does not reference document: %+v", job)
	}
	if job.CorrelationID == "" {
		t.Error("expected a correlation id")
	}
}

func TestGenerate_SameContentDeduplicates(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	first, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil || !created {
		t.Fatalf("first Generate: created=%v err=%v", created, err)
	}
	second, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-2")
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if created {
		t.Error("expected created=false for identical content")
	}
	if second.ID != first.ID {
		t.Errorf("expected same document, got %s and %s", first.ID, second.ID)
	}
	if f.queue.Len() != 1 {
		t.Errorf("duplicate generation must not enqueue again, queue has %d", f.queue.Len())
	}
}

func TestGenerate_BrandingChangesHash(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	first, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	f.branding.branding["acme"] = tenant.Branding{DisplayName: "Acme Labs", FooterText: "new footer"}
	second, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate after rebrand: %v", err)
	}
	if !created {
		t.Error("branding change must produce a new artifact")
	}
	if second.ID == first.ID {
		t.Error("expected a distinct document after rebrand")
	}
}

func TestGenerate_ModuleDisabled(t *testing.T) {
	f := newFixture()
	f.guard.enabled[tenant.ModuleReceipt] = false
	f.seedTemplate("acme", TypeReceipt)

	_, _, err := f.svc.Generate(context.Background(), "acme", TypeReceipt, samplePayload(), "", "", "op-1")
	if !fault.IsBadRequest(err) {
		t.Errorf("expected bad request, got %v", err)
	}
}

func TestGenerate_UnknownType(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Generate(context.Background(), "acme", "INVOICE", samplePayload(), "", "", "op-1")
	if !fault.IsBadRequest(err) {
		t.Errorf("expected bad request, got %v", err)
	}
}

func TestGenerate_NoActiveTemplate(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Generate(context.Background(), "acme", TypeReceipt, samplePayload(), "", "", "op-1")
	if !fault.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGenerate_FailedIsRetried(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	doc, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := f.svc.MarkFailed(ctx, "acme", doc.ID, "renderer crashed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	retried, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("retry Generate: %v", err)
	}
	if !created {
		t.Error("a failed document must be retried as if absent")
	}
	if retried.ID != doc.ID {
		t.Errorf("retry must reuse the row, got %s and %s", doc.ID, retried.ID)
	}
	if retried.Status != StatusRendering {
		t.Errorf("expected RENDERING after retry, got %s", retried.Status)
	}
	if retried.ErrorMessage != nil {
		t.Error("error message must be cleared on retry")
	}
}

func TestGenerate_LosingInsertRaceReturnsWinner(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	winner, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Simulate losing the unique-index race: the pre-insert lookup misses,
	// the insert collides with the winner's row.
	f.repo.findMisses = 1

	got, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-2")
	if err != nil {
		t.Fatalf("racing Generate must not error: %v", err)
	}
	if created {
		t.Error("race loser must report created=false")
	}
	if got.ID != winner.ID {
		t.Errorf("race loser must return the winning row, got %s want %s", got.ID, winner.ID)
	}
}

// flakyQueue fails a fixed number of enqueues before delegating.
type flakyQueue struct {
	inner    *renderqueue.MemoryQueue
	failures int
}

func (q *flakyQueue) Enqueue(ctx context.Context, job renderqueue.Job) error {
	if q.failures > 0 {
		q.failures--
		return errors.New("queue unavailable")
	}
	return q.inner.Enqueue(ctx, job)
}

func (q *flakyQueue) Dequeue(ctx context.Context, timeout time.Duration) (renderqueue.Job, bool, error) {
	return q.inner.Dequeue(ctx, timeout)
}

func TestGenerate_ReenqueuesWhenFirstEnqueueFailed(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	f.svc.queue = &flakyQueue{inner: f.queue, failures: 1}
	ctx := context.Background()

	if _, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1"); err == nil {
		t.Fatal("expected error while the queue is down")
	}

	// The row now sits at DRAFT with no job on the queue. A repeat of the
	// same content must get a render job enqueued, not just the dedup hit.
	doc, created, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate after queue recovery: %v", err)
	}
	if created {
		t.Error("recovered generate must report created=false")
	}
	if doc.Status != StatusRendering {
		t.Errorf("expected RENDERING after recovery, got %s", doc.Status)
	}
	if f.queue.Len() != 1 {
		t.Errorf("expected exactly 1 render job after recovery, got %d", f.queue.Len())
	}
}

func TestPublish_Lifecycle(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	doc, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := f.svc.Publish(ctx, "acme", doc.ID, "op-1"); !fault.IsConflict(err) {
		t.Errorf("publishing a rendering document must conflict, got %v", err)
	}

	if _, err := f.svc.MarkRendered(ctx, "acme", doc.ID, "abc123"); err != nil {
		t.Fatalf("MarkRendered: %v", err)
	}
	published, err := f.svc.Publish(ctx, "acme", doc.ID, "op-1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.Status != StatusPublished || published.PublishedAt == nil {
		t.Errorf("expected published with timestamp, got %+v", published)
	}

	again, err := f.svc.Publish(ctx, "acme", doc.ID, "op-2")
	if err != nil {
		t.Fatalf("second Publish must be a no-op: %v", err)
	}
	if !again.PublishedAt.Equal(*published.PublishedAt) {
		t.Error("republish must not move the publish timestamp")
	}
	if got := f.auditCount("document.publish"); got != 1 {
		t.Errorf("republish must not emit a second audit event, got %d", got)
	}
}

func TestMarkRendered_RequiresRendering(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	ctx := context.Background()

	doc, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := f.svc.MarkRendered(ctx, "acme", doc.ID, "h1"); err != nil {
		t.Fatalf("MarkRendered: %v", err)
	}
	if _, err := f.svc.MarkRendered(ctx, "acme", doc.ID, "h2"); !fault.IsConflict(err) {
		t.Errorf("expected conflict rendering twice, got %v", err)
	}
}

func TestGenerate_TenantIsolation(t *testing.T) {
	f := newFixture()
	f.seedTemplate("acme", TypeReceipt)
	f.seedTemplate("globex", TypeReceipt)
	f.branding.branding["globex"] = tenant.Branding{DisplayName: "Acme Diagnostics"}
	ctx := context.Background()

	first, _, err := f.svc.Generate(ctx, "acme", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, created, err := f.svc.Generate(ctx, "globex", TypeReceipt, samplePayload(), "e-1", "encounter", "op-1")
	if err != nil {
		t.Fatalf("Generate for other tenant: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Error("equal content in different tenants must create distinct documents")
	}
}
