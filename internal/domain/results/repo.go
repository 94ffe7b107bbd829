package results

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert writes one result row, keyed on (tenant, labOrder, parameter).
	// Locked rows are left untouched.
	Upsert(ctx context.Context, res *LabResult) error
	ListByOrder(ctx context.Context, tenantID string, labOrderID uuid.UUID) ([]*LabResult, error)
	// LockNonEmpty locks every result of the order that carries a value,
	// returning how many rows changed.
	LockNonEmpty(ctx context.Context, tenantID string, labOrderID uuid.UUID) (int, error)
	// VerifyByOrder stamps every non-empty result of the order as verified.
	VerifyByOrder(ctx context.Context, tenantID string, labOrderID uuid.UUID, at time.Time, by string) (int, error)
}
