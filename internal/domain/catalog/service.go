package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/fault"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateTest(ctx context.Context, t *Test) error {
	if t.TenantID == "" || t.Code == "" || t.Name == "" {
		return fault.BadRequest("tenant_id, code and name are required")
	}
	if t.SpecimenType == "" {
		return fault.BadRequest("specimen_type is required")
	}
	if t.Price < 0 {
		return fault.BadRequest("price must not be negative")
	}
	t.Active = true
	return s.repo.CreateTest(ctx, t)
}

// FindTestByIDOrCode resolves a test reference: a parseable UUID is an id
// lookup, anything else a catalog-code lookup.
func (s *Service) FindTestByIDOrCode(ctx context.Context, tenantID, ref string) (*Test, error) {
	if ref == "" {
		return nil, fault.BadRequest("test reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetTestByID(ctx, tenantID, id)
	}
	return s.repo.GetTestByCode(ctx, tenantID, ref)
}

func (s *Service) GetTest(ctx context.Context, tenantID string, id uuid.UUID) (*Test, error) {
	return s.repo.GetTestByID(ctx, tenantID, id)
}

func (s *Service) ListTests(ctx context.Context, tenantID string, limit, offset int) ([]*Test, int, error) {
	return s.repo.ListTests(ctx, tenantID, limit, offset)
}

func (s *Service) CreateParameter(ctx context.Context, p *Parameter) error {
	if p.TenantID == "" || p.TestID == uuid.Nil {
		return fault.BadRequest("tenant_id and test_id are required")
	}
	if p.Code == "" || p.Name == "" {
		return fault.BadRequest("code and name are required")
	}
	if _, err := s.repo.GetTestByID(ctx, p.TenantID, p.TestID); err != nil {
		return err
	}
	return s.repo.CreateParameter(ctx, p)
}

func (s *Service) GetParameter(ctx context.Context, tenantID string, id uuid.UUID) (*Parameter, error) {
	return s.repo.GetParameter(ctx, tenantID, id)
}

func (s *Service) ListParameters(ctx context.Context, tenantID string, testID uuid.UUID) ([]*Parameter, error) {
	return s.repo.ListParameters(ctx, tenantID, testID)
}
