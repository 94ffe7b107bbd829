package encounter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error)
	List(ctx context.Context, tenantID string, status string, limit, offset int) ([]*Encounter, int, error)
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error
	// SetCode assigns the human encounter code once; a row that already has
	// one keeps it.
	SetCode(ctx context.Context, tenantID string, id uuid.UUID, code string) error
	// NextCodeSeq returns the next sequence number for the tenant+period
	// counter, starting at 1.
	NextCodeSeq(ctx context.Context, tenantID, period string) (int, error)

	CreateOrder(ctx context.Context, order *LabOrder) error
	GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*LabOrder, error)
	ListOrdersByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*LabOrder, error)
	// AdvanceOrders moves every order of the encounter in status from to
	// status to, returning how many rows changed.
	AdvanceOrders(ctx context.Context, tenantID string, encounterID uuid.UUID, from, to string) (int, error)
	MarkOrderSubmitted(ctx context.Context, tenantID string, id uuid.UUID, at time.Time, by string) error
	// MarkOrdersVerified verifies the given orders; only SUBMITTED orders
	// qualify.
	MarkOrdersVerified(ctx context.Context, tenantID string, ids []uuid.UUID, at time.Time, by string) (int, error)
	CountOrdersByResultStatus(ctx context.Context, tenantID string, encounterID uuid.UUID, resultStatus string) (int, error)
}
