package specimen

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert creates the item for (tenant, encounter, specimenType) or
	// returns the existing row unchanged.
	Upsert(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Item, error)
	ListByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*Item, error)

	// MarkCollected moves the given PENDING items to COLLECTED and returns
	// how many rows changed.
	MarkCollected(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error)
	// MarkReceived moves the given COLLECTED items to RECEIVED.
	MarkReceived(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error)
	MarkPostponed(ctx context.Context, tenantID string, id uuid.UUID, reason string) error

	// CountInStatus returns how many of the encounter's items are in status.
	CountInStatus(ctx context.Context, tenantID string, encounterID uuid.UUID, status string) (int, error)
}
