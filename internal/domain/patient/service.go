package patient

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

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.TenantID == "" {
		return fault.BadRequest("tenant_id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fault.BadRequest("first_name and last_name are required")
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) ListPatients(ctx context.Context, tenantID string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}
