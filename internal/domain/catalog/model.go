package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Test maps to the lab_test table: one orderable catalog entry.
type Test struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	SpecimenType string    `db:"specimen_type" json:"specimen_type"`
	Price        float64   `db:"price" json:"price"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Parameter maps to the lab_test_parameter table: one reportable value
// within a test, with its unit and reference range.
type Parameter struct {
	ID             uuid.UUID `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	TestID         uuid.UUID `db:"test_id" json:"test_id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	Unit           *string   `db:"unit" json:"unit,omitempty"`
	ReferenceRange *string   `db:"reference_range" json:"reference_range,omitempty"`
	CriticalLow    *float64  `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh   *float64  `db:"critical_high" json:"critical_high,omitempty"`
	SortOrder      int       `db:"sort_order" json:"sort_order"`
}
