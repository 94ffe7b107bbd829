package tenant

import (
	"context"
)

// Repository is the persistence interface for tenants and module flags.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	UpdateBranding(ctx context.Context, id string, b Branding) error

	// ModuleFlags returns the explicit flag rows for a tenant keyed by
	// module key. Modules without a row are disabled.
	ModuleFlags(ctx context.Context, tenantID string) (map[string]bool, error)
	SetModuleFlag(ctx context.Context, tenantID, moduleKey string, enabled bool) error
}
