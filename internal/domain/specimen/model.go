package specimen

import (
	"time"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/state"
)

// Item maps to the specimen_item table. One row per
// (tenant_id, encounter_id, specimen_type): a single physical sample can
// serve every order that needs that specimen type.
type Item struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	EncounterID    uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	SpecimenType   string     `db:"specimen_type" json:"specimen_type"`
	Status         string     `db:"status" json:"status"`
	CollectedAt    *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	CollectedBy    *string    `db:"collected_by" json:"collected_by,omitempty"`
	ReceivedAt     *time.Time `db:"received_at" json:"received_at,omitempty"`
	ReceivedBy     *string    `db:"received_by" json:"received_by,omitempty"`
	PostponeReason *string    `db:"postpone_reason" json:"postpone_reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	StatusPending   = "PENDING"
	StatusCollected = "COLLECTED"
	StatusReceived  = "RECEIVED"
	StatusPostponed = "POSTPONED"
)

// Transitions is the specimen sub-state machine. POSTPONED and RECEIVED are
// terminal for a given item.
var Transitions = state.Table{
	StatusPending:   {StatusCollected, StatusPostponed},
	StatusCollected: {StatusReceived},
	StatusReceived:  nil,
	StatusPostponed: nil,
}
