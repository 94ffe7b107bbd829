package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/domain/encounter"
)

// LabResult maps to the lab_result table: one parameter's value for one lab
// order. Unit and reference range are snapshotted at entry time. Once locked
// the value never changes.
type LabResult struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	LabOrderID     uuid.UUID  `db:"lab_order_id" json:"lab_order_id"`
	ParameterID    uuid.UUID  `db:"parameter_id" json:"parameter_id"`
	Value          string     `db:"value" json:"value"`
	Unit           *string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange *string    `db:"reference_range" json:"reference_range,omitempty"`
	Flag           *string    `db:"flag" json:"flag,omitempty"`
	Locked         bool       `db:"locked" json:"locked"`
	EnteredAt      time.Time  `db:"entered_at" json:"entered_at"`
	EnteredBy      string     `db:"entered_by" json:"entered_by"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy     *string    `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Result flags.
const (
	FlagNormal   = "normal"
	FlagHigh     = "high"
	FlagLow      = "low"
	FlagCritical = "critical"
)

// ResultValue is one entered parameter value.
type ResultValue struct {
	ParameterID uuid.UUID `json:"parameter_id"`
	Value       string    `json:"value"`
}

// OrderDetail is the lab order read model: the order plus its result rows.
type OrderDetail struct {
	Order   *encounter.LabOrder `json:"order"`
	Results []*LabResult        `json:"results"`
}

// VerifyOutcome is what a verification command returns. DocumentJobID stays
// nil when report generation is still in flight or failed.
type VerifyOutcome struct {
	Status        string     `json:"status"`
	DocumentJobID *uuid.UUID `json:"document_job_id"`
}
