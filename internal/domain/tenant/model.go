package tenant

import (
	"time"
)

// Tenant maps to the tenant table. The ID doubles as the row-level
// partition key on every other table.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Branding Branding `db:"-" json:"branding"`
}

// Branding is stamped into generated document payloads before hashing, so a
// branding change naturally yields a new artifact.
type Branding struct {
	DisplayName string `db:"display_name" json:"display_name"`
	LogoURL     string `db:"logo_url" json:"logo_url,omitempty"`
	HeaderText  string `db:"header_text" json:"header_text,omitempty"`
	FooterText  string `db:"footer_text" json:"footer_text,omitempty"`
}

// ModuleFlag maps to the tenant_module table: one row per enabled or
// disabled module per tenant. Absent rows count as disabled.
type ModuleFlag struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	ModuleKey string    `db:"module_key" json:"module_key"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Module keys known to the workflow engine.
const (
	ModuleLab             = "lab"
	ModuleBilling         = "billing"
	ModuleDocuments       = "documents"
	ModuleReceipt         = "receipt"
	ModuleLabReport       = "lab_report"
	ModuleSeparateReceive = "separate_receive"
)

// moduleDependencies is the module dependency graph: a module is effective
// only when it and every transitive dependency is enabled for the tenant.
var moduleDependencies = map[string][]string{
	ModuleLab:             nil,
	ModuleBilling:         nil,
	ModuleDocuments:       nil,
	ModuleReceipt:         {ModuleDocuments, ModuleBilling},
	ModuleLabReport:       {ModuleDocuments, ModuleLab},
	ModuleSeparateReceive: {ModuleLab},
}

// KnownModule reports whether key is a module the engine understands.
func KnownModule(key string) bool {
	_, ok := moduleDependencies[key]
	return ok
}
