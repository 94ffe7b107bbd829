package integration

import (
	"context"
	"testing"

	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/fault"
)

func TestMultitenant_RowsNeverLeak(t *testing.T) {
	ctx := context.Background()
	svcs := newServices(t)

	tenantA := createTestTenant(t, ctx, tenant.ModuleLab)
	tenantB := createTestTenant(t, ctx, tenant.ModuleLab)

	pA := createTestPatient(t, ctx, tenantA, "Ama", "Boateng")
	testA, _ := createTestCatalog(t, ctx, tenantA, "CBC")

	enc, err := svcs.encounters.Register(ctx, tenantA, pA.ID, "clerk")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svcs.encounters.OrderLab(ctx, tenantA, enc.ID, testA.Code, "clerk"); err != nil {
		t.Fatalf("order: %v", err)
	}

	// Tenant B sees none of tenant A's rows, by id or by listing.
	if _, err := svcs.encounters.Get(ctx, tenantB, enc.ID); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for cross-tenant get, got %v", err)
	}
	if _, err := svcs.patients.GetPatient(ctx, tenantB, pA.ID); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for cross-tenant patient, got %v", err)
	}
	if _, err := svcs.catalog.FindTestByIDOrCode(ctx, tenantB, testA.Code); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for cross-tenant test code, got %v", err)
	}

	encs, total, err := svcs.encounters.List(ctx, tenantB, "", 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 || len(encs) != 0 {
		t.Errorf("expected empty listing for tenant B, got %d rows", total)
	}

	// Tenant B cannot act on tenant A's encounter either.
	if _, err := svcs.encounters.CollectSpecimens(ctx, tenantB, enc.ID, nil, "tech"); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for cross-tenant collect, got %v", err)
	}
}

func TestMultitenant_CodesCountPerTenant(t *testing.T) {
	ctx := context.Background()
	svcs := newServices(t)

	tenantA := createTestTenant(t, ctx, tenant.ModuleLab)
	tenantB := createTestTenant(t, ctx, tenant.ModuleLab)

	testA, _ := createTestCatalog(t, ctx, tenantA, "LIPID")
	testB, _ := createTestCatalog(t, ctx, tenantB, "LIPID")

	pA := createTestPatient(t, ctx, tenantA, "Yaw", "Asante")
	pB := createTestPatient(t, ctx, tenantB, "Efua", "Sarpong")

	encA, err := svcs.encounters.Register(ctx, tenantA, pA.ID, "clerk")
	if err != nil {
		t.Fatalf("register A: %v", err)
	}
	encB, err := svcs.encounters.Register(ctx, tenantB, pB.ID, "clerk")
	if err != nil {
		t.Fatalf("register B: %v", err)
	}

	if encA, err = svcs.encounters.OrderLab(ctx, tenantA, encA.ID, testA.Code, "clerk"); err != nil {
		t.Fatalf("order A: %v", err)
	}
	if encB, err = svcs.encounters.OrderLab(ctx, tenantB, encB.ID, testB.Code, "clerk"); err != nil {
		t.Fatalf("order B: %v", err)
	}

	// Each tenant starts its own monthly sequence.
	if encA.EncounterCode == nil || encB.EncounterCode == nil {
		t.Fatal("expected both encounters to get codes")
	}
	if *encA.EncounterCode != *encB.EncounterCode {
		t.Errorf("expected both fresh tenants to start at the same sequence, got %s and %s",
			*encA.EncounterCode, *encB.EncounterCode)
	}
}
