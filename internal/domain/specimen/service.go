package specimen

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/fault"
)

type Service struct {
	repo  Repository
	audit audit.Sink
}

func NewService(repo Repository, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, audit: sink}
}

// EnsureItem creates the tracking row for the encounter's specimen type if it
// does not exist yet. Ordering two tests that share a specimen type yields a
// single physical sample.
func (s *Service) EnsureItem(ctx context.Context, tenantID string, encounterID uuid.UUID, specimenType string) (*Item, error) {
	if specimenType == "" {
		return nil, fault.BadRequest("specimen type is required")
	}
	item := &Item{
		TenantID:     tenantID,
		EncounterID:  encounterID,
		SpecimenType: specimenType,
		Status:       StatusPending,
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*Item, error) {
	return s.repo.ListByEncounter(ctx, tenantID, encounterID)
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Item, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// Collect moves items from PENDING to COLLECTED. With no explicit ids every
// pending item of the encounter is targeted. Returns how many items changed
// and how many remain PENDING so the caller can decide whether the encounter
// advances.
func (s *Service) Collect(ctx context.Context, tenantID string, encounterID uuid.UUID, ids []uuid.UUID, actorID string) (changed, remaining int, err error) {
	return s.bulkMove(ctx, tenantID, encounterID, ids, actorID, StatusPending, "specimen.collect", s.repo.MarkCollected)
}

// Receive moves items from COLLECTED to RECEIVED, mirroring Collect.
func (s *Service) Receive(ctx context.Context, tenantID string, encounterID uuid.UUID, ids []uuid.UUID, actorID string) (changed, remaining int, err error) {
	return s.bulkMove(ctx, tenantID, encounterID, ids, actorID, StatusCollected, "specimen.receive", s.repo.MarkReceived)
}

type markFn func(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error)

func (s *Service) bulkMove(ctx context.Context, tenantID string, encounterID uuid.UUID, ids []uuid.UUID, actorID, fromStatus, action string, mark markFn) (int, int, error) {
	if len(ids) == 0 {
		items, err := s.repo.ListByEncounter(ctx, tenantID, encounterID)
		if err != nil {
			return 0, 0, err
		}
		for _, item := range items {
			if item.Status == fromStatus {
				ids = append(ids, item.ID)
			}
		}
		if len(ids) == 0 {
			return 0, 0, fault.Conflict("encounter %s has no %s specimen items", encounterID, strings.ToLower(fromStatus))
		}
	}

	changed, err := mark(ctx, tenantID, ids, time.Now().UTC(), actorID)
	if err != nil {
		return 0, 0, err
	}
	if changed == 0 {
		return 0, 0, fault.Conflict("no specimen item was in status %s", fromStatus)
	}

	remaining, err := s.repo.CountInStatus(ctx, tenantID, encounterID, fromStatus)
	if err != nil {
		return 0, 0, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: "specimen_item",
		EntityID:   encounterID.String(),
		FromStatus: fromStatus,
		Detail:     map[string]interface{}{"changed": changed, "remaining": remaining},
		At:         time.Now().UTC(),
	})
	return changed, remaining, nil
}

// Postpone parks a pending item with a reason. Postponed items never rejoin
// the collection flow.
func (s *Service) Postpone(ctx context.Context, tenantID string, id uuid.UUID, reason, actorID string) (*Item, error) {
	if len(strings.TrimSpace(reason)) < 3 {
		return nil, fault.BadRequest("postpone reason must be at least 3 characters")
	}
	item, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("specimen item", item.Status, StatusPostponed); err != nil {
		return nil, err
	}
	if err := s.repo.MarkPostponed(ctx, tenantID, id, reason); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     "specimen.postpone",
		EntityType: "specimen_item",
		EntityID:   id.String(),
		FromStatus: item.Status,
		ToStatus:   StatusPostponed,
		Detail:     map[string]interface{}{"reason": reason},
		At:         time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, id)
}
