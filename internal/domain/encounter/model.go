package encounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/state"
)

// Encounter maps to the encounter table: one lab visit for one patient.
// Encounters are never deleted; cancellation is a terminal status.
type Encounter struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	Status        string    `db:"status" json:"status"`
	EncounterCode *string   `db:"encounter_code" json:"encounter_code,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// LabOrder maps to the lab_order table: one ordered catalog test within an
// encounter. Code, name and price are snapshotted at order time so later
// catalog edits do not rewrite history.
type LabOrder struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TenantID     string     `db:"tenant_id" json:"tenant_id"`
	EncounterID  uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	TestID       uuid.UUID  `db:"test_id" json:"test_id"`
	TestCode     string     `db:"test_code" json:"test_code"`
	TestName     string     `db:"test_name" json:"test_name"`
	SpecimenType string     `db:"specimen_type" json:"specimen_type"`
	Price        float64    `db:"price" json:"price"`
	Status       string     `db:"status" json:"status"`
	ResultStatus string     `db:"result_status" json:"result_status"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmittedBy  *string    `db:"submitted_by" json:"submitted_by,omitempty"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy   *string    `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Encounter statuses.
const (
	StatusRegistered        = "registered"
	StatusLabOrdered        = "lab_ordered"
	StatusSpecimenCollected = "specimen_collected"
	StatusSpecimenReceived  = "specimen_received"
	StatusResulted          = "resulted"
	StatusPartialResulted   = "partial_resulted"
	StatusVerified          = "verified"
	StatusCancelled         = "cancelled"
)

// LabOrder statuses.
const (
	OrderStatusOrdered           = "ordered"
	OrderStatusSpecimenCollected = "specimen_collected"
	OrderStatusResulted          = "resulted"
	OrderStatusVerified          = "verified"
)

// LabOrder result statuses. SUBMITTED is never undone.
const (
	ResultStatusPending   = "PENDING"
	ResultStatusSubmitted = "SUBMITTED"
)

// Transitions governs operator-driven encounter moves. partial_resulted has
// no inbound edge here: only result submission aggregation writes it.
var Transitions = state.Table{
	StatusRegistered:        {StatusLabOrdered, StatusCancelled},
	StatusLabOrdered:        {StatusSpecimenCollected, StatusCancelled},
	StatusSpecimenCollected: {StatusSpecimenReceived, StatusResulted, StatusCancelled},
	StatusSpecimenReceived:  {StatusResulted, StatusCancelled},
	StatusResulted:          {StatusVerified, StatusCancelled},
	StatusPartialResulted:   {StatusResulted, StatusVerified, StatusCancelled},
	StatusVerified:          nil,
	StatusCancelled:         nil,
}

// SpecimenReady reports whether results may be entered for an encounter in
// the given status.
func SpecimenReady(status string) bool {
	switch status {
	case StatusSpecimenCollected, StatusSpecimenReceived, StatusResulted, StatusPartialResulted, StatusVerified:
		return true
	}
	return false
}
