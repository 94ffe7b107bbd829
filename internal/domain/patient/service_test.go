package patient

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/limshq/lims/internal/platform/fault"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, fault.NotFound("patient %s not found", id)
	}
	return p, nil
}

func (m *mockRepo) List(_ context.Context, tenantID string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if p.TenantID == tenantID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func TestCreatePatient(t *testing.T) {
	svc := NewService(newMockRepo())

	p := &Patient{TenantID: "t1", FirstName: "Asha", LastName: "Rao"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	if err := svc.CreatePatient(context.Background(), &Patient{FirstName: "A", LastName: "B"}); !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for missing tenant, got %v", err)
	}
	if err := svc.CreatePatient(context.Background(), &Patient{TenantID: "t1"}); !fault.IsBadRequest(err) {
		t.Errorf("expected BadRequest for missing name, got %v", err)
	}
}

func TestGetPatient_TenantIsolation(t *testing.T) {
	svc := NewService(newMockRepo())

	p := &Patient{TenantID: "t1", FirstName: "Asha", LastName: "Rao"}
	_ = svc.CreatePatient(context.Background(), p)

	// Same ID under another tenant must be indistinguishable from absent.
	if _, err := svc.GetPatient(context.Background(), "t2", p.ID); !fault.IsNotFound(err) {
		t.Errorf("expected NotFound across tenants, got %v", err)
	}
	if _, err := svc.GetPatient(context.Background(), "t1", p.ID); err != nil {
		t.Errorf("unexpected error in owning tenant: %v", err)
	}
}
