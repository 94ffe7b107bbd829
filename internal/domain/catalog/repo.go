package catalog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateTest(ctx context.Context, t *Test) error
	GetTestByID(ctx context.Context, tenantID string, id uuid.UUID) (*Test, error)
	GetTestByCode(ctx context.Context, tenantID, code string) (*Test, error)
	ListTests(ctx context.Context, tenantID string, limit, offset int) ([]*Test, int, error)

	CreateParameter(ctx context.Context, p *Parameter) error
	GetParameter(ctx context.Context, tenantID string, id uuid.UUID) (*Parameter, error)
	ListParameters(ctx context.Context, tenantID string, testID uuid.UUID) ([]*Parameter, error)
}
