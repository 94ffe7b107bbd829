package tenant

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
)

// flagCacheTTL bounds how stale a guard decision may be after a flag flip.
const flagCacheTTL = 30 * time.Second

type Service struct {
	repo  Repository
	flags *ttlcache.Cache[string, map[string]bool]
}

func NewService(repo Repository) *Service {
	cache := ttlcache.New[string, map[string]bool](
		ttlcache.WithTTL[string, map[string]bool](flagCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, map[string]bool](),
	)
	go cache.Start()
	return &Service{repo: repo, flags: cache}
}

func (s *Service) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" || t.Name == "" {
		return fault.BadRequest("tenant id and name are required")
	}
	if !db.ValidTenantID(t.ID) {
		return fault.BadRequest("invalid tenant identifier: %s", t.ID)
	}
	t.Active = true
	return s.repo.Create(ctx, t)
}

func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) UpdateBranding(ctx context.Context, id string, b Branding) error {
	if b.DisplayName == "" {
		return fault.BadRequest("display_name is required")
	}
	if err := s.repo.UpdateBranding(ctx, id, b); err != nil {
		return err
	}
	s.flags.Delete(id)
	return nil
}

// Branding returns the tenant's document branding fields.
func (s *Service) Branding(ctx context.Context, id string) (Branding, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Branding{}, err
	}
	return t.Branding, nil
}

func (s *Service) SetModuleFlag(ctx context.Context, tenantID, moduleKey string, enabled bool) error {
	if !KnownModule(moduleKey) {
		return fault.BadRequest("unknown module: %s", moduleKey)
	}
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return err
	}
	if err := s.repo.SetModuleFlag(ctx, tenantID, moduleKey, enabled); err != nil {
		return err
	}
	s.flags.Delete(tenantID)
	return nil
}

// ModuleEnabled reports whether a module is effective for the tenant: the
// flag itself and every transitive dependency must be enabled.
func (s *Service) ModuleEnabled(ctx context.Context, tenantID, moduleKey string) (bool, error) {
	if !KnownModule(moduleKey) {
		return false, fault.BadRequest("unknown module: %s", moduleKey)
	}
	flags, err := s.tenantFlags(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return effective(moduleKey, flags, make(map[string]bool)), nil
}

// RequireModule is the guard every state-mutating command calls first.
func (s *Service) RequireModule(ctx context.Context, tenantID, moduleKey string) error {
	enabled, err := s.ModuleEnabled(ctx, tenantID, moduleKey)
	if err != nil {
		return err
	}
	if !enabled {
		return fault.Forbidden("module %s is not enabled for this tenant", moduleKey)
	}
	return nil
}

func (s *Service) tenantFlags(ctx context.Context, tenantID string) (map[string]bool, error) {
	if item := s.flags.Get(tenantID); item != nil {
		return item.Value(), nil
	}
	flags, err := s.repo.ModuleFlags(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.flags.Set(tenantID, flags, ttlcache.DefaultTTL)
	return flags, nil
}

// effective walks the dependency graph bottom-up. visiting guards against
// version skew introducing a cycle; a revisited node counts as satisfied.
func effective(key string, flags map[string]bool, visiting map[string]bool) bool {
	if visiting[key] {
		return true
	}
	if !flags[key] {
		return false
	}
	visiting[key] = true
	for _, dep := range moduleDependencies[key] {
		if !effective(dep, flags, visiting) {
			return false
		}
	}
	return true
}
