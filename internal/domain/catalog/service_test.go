package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/fault"
)

type mockRepo struct {
	tests      map[uuid.UUID]*Test
	parameters map[uuid.UUID]*Parameter
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tests:      make(map[uuid.UUID]*Test),
		parameters: make(map[uuid.UUID]*Parameter),
	}
}

func (m *mockRepo) CreateTest(_ context.Context, t *Test) error {
	for _, existing := range m.tests {
		if existing.TenantID == t.TenantID && existing.Code == t.Code {
			return fault.Conflict("test code %s already exists", t.Code)
		}
	}
	t.ID = uuid.New()
	m.tests[t.ID] = t
	return nil
}

func (m *mockRepo) GetTestByID(_ context.Context, tenantID string, id uuid.UUID) (*Test, error) {
	t, ok := m.tests[id]
	if !ok || t.TenantID != tenantID {
		return nil, fault.NotFound("test not found")
	}
	return t, nil
}

func (m *mockRepo) GetTestByCode(_ context.Context, tenantID, code string) (*Test, error) {
	for _, t := range m.tests {
		if t.TenantID == tenantID && t.Code == code {
			return t, nil
		}
	}
	return nil, fault.NotFound("test not found")
}

func (m *mockRepo) ListTests(_ context.Context, tenantID string, limit, offset int) ([]*Test, int, error) {
	var result []*Test
	for _, t := range m.tests {
		if t.TenantID == tenantID {
			result = append(result, t)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) CreateParameter(_ context.Context, p *Parameter) error {
	p.ID = uuid.New()
	m.parameters[p.ID] = p
	return nil
}

func (m *mockRepo) GetParameter(_ context.Context, tenantID string, id uuid.UUID) (*Parameter, error) {
	p, ok := m.parameters[id]
	if !ok || p.TenantID != tenantID {
		return nil, fault.NotFound("parameter %s not found", id)
	}
	return p, nil
}

func (m *mockRepo) ListParameters(_ context.Context, tenantID string, testID uuid.UUID) ([]*Parameter, error) {
	var result []*Parameter
	for _, p := range m.parameters {
		if p.TenantID == tenantID && p.TestID == testID {
			result = append(result, p)
		}
	}
	return result, nil
}

func TestCreateTest_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.CreateTest(context.Background(), &Test{TenantID: "t1", Code: "GLU"})
	if !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for missing name, got %v", err)
	}
	err = svc.CreateTest(context.Background(), &Test{TenantID: "t1", Code: "GLU", Name: "Glucose"})
	if !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for missing specimen type, got %v", err)
	}
	err = svc.CreateTest(context.Background(), &Test{
		TenantID: "t1", Code: "GLU", Name: "Glucose", SpecimenType: "serum", Price: -1,
	})
	if !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for negative price, got %v", err)
	}
}

func TestFindTestByIDOrCode(t *testing.T) {
	svc := NewService(newMockRepo())

	test := &Test{TenantID: "t1", Code: "GLU", Name: "Glucose", SpecimenType: "serum", Price: 120}
	if err := svc.CreateTest(context.Background(), test); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID, err := svc.FindTestByIDOrCode(context.Background(), "t1", test.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byID.ID != test.ID {
		t.Error("id lookup returned wrong test")
	}

	byCode, err := svc.FindTestByIDOrCode(context.Background(), "t1", "GLU")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byCode.ID != test.ID {
		t.Error("code lookup returned wrong test")
	}

	if _, err := svc.FindTestByIDOrCode(context.Background(), "t1", ""); !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for empty ref, got %v", err)
	}
	if _, err := svc.FindTestByIDOrCode(context.Background(), "t1", "NOPE"); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown code, got %v", err)
	}
}

func TestFindTest_TenantIsolation(t *testing.T) {
	svc := NewService(newMockRepo())

	test := &Test{TenantID: "t1", Code: "GLU", Name: "Glucose", SpecimenType: "serum"}
	_ = svc.CreateTest(context.Background(), test)

	if _, err := svc.FindTestByIDOrCode(context.Background(), "t2", test.ID.String()); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound across tenants, got %v", err)
	}
	if _, err := svc.FindTestByIDOrCode(context.Background(), "t2", "GLU"); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound across tenants by code, got %v", err)
	}
}

func TestCreateParameter_TestMustExist(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.CreateParameter(context.Background(), &Parameter{
		TenantID: "t1", TestID: uuid.New(), Code: "p1", Name: "Fasting glucose",
	})
	if !fault.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown test, got %v", err)
	}
}
