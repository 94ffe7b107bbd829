package encounter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limshq/lims/internal/domain/catalog"
	"github.com/limshq/lims/internal/domain/patient"
	"github.com/limshq/lims/internal/domain/specimen"
	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
)

// PatientDirectory is the slice of the patient service the workflow needs.
type PatientDirectory interface {
	GetPatient(ctx context.Context, tenantID string, id uuid.UUID) (*patient.Patient, error)
}

// CatalogLookup resolves an orderable test by id or catalog code.
type CatalogLookup interface {
	FindTestByIDOrCode(ctx context.Context, tenantID, ref string) (*catalog.Test, error)
}

// ModuleGuard gates workflow commands on tenant module flags.
type ModuleGuard interface {
	RequireModule(ctx context.Context, tenantID, moduleKey string) error
	ModuleEnabled(ctx context.Context, tenantID, moduleKey string) (bool, error)
}

// DocumentTrigger kicks off artifact generation. Failures stay with the
// trigger; the workflow never depends on them.
type DocumentTrigger interface {
	Generate(ctx context.Context, tenantID, docType string, payload map[string]interface{}, sourceRef, sourceType, actorID string) error
}

type Service struct {
	repo      Repository
	specimens *specimen.Service
	patients  PatientDirectory
	catalog   CatalogLookup
	guard     ModuleGuard
	docs      DocumentTrigger
	audit     audit.Sink
	runTx     db.TxRunner
	log       zerolog.Logger
}

func NewService(repo Repository, specimens *specimen.Service, patients PatientDirectory, cat CatalogLookup, guard ModuleGuard, docs DocumentTrigger, sink audit.Sink, runTx db.TxRunner, logger zerolog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if runTx == nil {
		runTx = db.PassthroughTx
	}
	return &Service{
		repo:      repo,
		specimens: specimens,
		patients:  patients,
		catalog:   cat,
		guard:     guard,
		docs:      docs,
		audit:     sink,
		runTx:     runTx,
		log:       logger,
	}
}

// Detail is the encounter read model: the visit plus its orders and tracked
// specimen items.
type Detail struct {
	Encounter *Encounter       `json:"encounter"`
	Orders    []*LabOrder      `json:"orders"`
	Specimens []*specimen.Item `json:"specimens"`
}

func (s *Service) Register(ctx context.Context, tenantID string, patientID uuid.UUID, actorID string) (*Encounter, error) {
	if _, err := s.patients.GetPatient(ctx, tenantID, patientID); err != nil {
		return nil, err
	}
	enc := &Encounter{TenantID: tenantID, PatientID: patientID, Status: StatusRegistered}
	if err := s.repo.Create(ctx, enc); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "encounter.register",
		EntityType: "encounter", EntityID: enc.ID.String(),
		ToStatus: StatusRegistered, At: time.Now().UTC(),
	})
	return enc, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID, status string, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.List(ctx, tenantID, status, limit, offset)
}

func (s *Service) GetDetail(ctx context.Context, tenantID string, id uuid.UUID) (*Detail, error) {
	enc, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersByEncounter(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	items, err := s.specimens.List(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Encounter: enc, Orders: orders, Specimens: items}, nil
}

// OrderLab adds a catalog test to the encounter. The order row, the specimen
// item and the status move commit together; encounter code assignment and
// receipt generation run afterwards and may fail without undoing the order.
func (s *Service) OrderLab(ctx context.Context, tenantID string, encounterID uuid.UUID, testRef, actorID string) (*Encounter, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	enc, err := s.repo.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	if enc.Status != StatusRegistered && enc.Status != StatusLabOrdered {
		return nil, fault.Conflict("encounter cannot move from %s to %s", enc.Status, StatusLabOrdered)
	}
	test, err := s.catalog.FindTestByIDOrCode(ctx, tenantID, testRef)
	if err != nil {
		return nil, err
	}

	order := &LabOrder{
		TenantID:     tenantID,
		EncounterID:  encounterID,
		TestID:       test.ID,
		TestCode:     test.Code,
		TestName:     test.Name,
		SpecimenType: test.SpecimenType,
		Price:        test.Price,
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if _, err := s.specimens.EnsureItem(ctx, tenantID, encounterID, test.SpecimenType); err != nil {
			return err
		}
		if enc.Status == StatusRegistered {
			return s.repo.UpdateStatus(ctx, tenantID, encounterID, StatusLabOrdered)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.assignCode(ctx, enc)
	s.generateReceipt(ctx, tenantID, encounterID, actorID)

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "encounter.order_lab",
		EntityType: "lab_order", EntityID: order.ID.String(),
		FromStatus: enc.Status, ToStatus: StatusLabOrdered,
		Detail: map[string]interface{}{"test_code": test.Code}, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, encounterID)
}

// assignCode gives the encounter its human code on the first order. The
// sequence is scoped to tenant and calendar month.
func (s *Service) assignCode(ctx context.Context, enc *Encounter) {
	if enc.EncounterCode != nil {
		return
	}
	period := time.Now().UTC().Format("200601")
	seq, err := s.repo.NextCodeSeq(ctx, enc.TenantID, period)
	if err != nil {
		s.log.Warn().Err(err).Str("encounter_id", enc.ID.String()).Msg("encounter code sequence failed")
		return
	}
	code := fmt.Sprintf("LAB-%s-%04d", period, seq)
	if err := s.repo.SetCode(ctx, enc.TenantID, enc.ID, code); err != nil {
		s.log.Warn().Err(err).Str("encounter_id", enc.ID.String()).Msg("encounter code assignment failed")
	}
}

func (s *Service) generateReceipt(ctx context.Context, tenantID string, encounterID uuid.UUID, actorID string) {
	if s.docs == nil {
		return
	}
	enabled, err := s.guard.ModuleEnabled(ctx, tenantID, tenant.ModuleReceipt)
	if err != nil || !enabled {
		return
	}
	enc, err := s.repo.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		s.log.Warn().Err(err).Msg("receipt generation skipped")
		return
	}
	orders, err := s.repo.ListOrdersByEncounter(ctx, tenantID, encounterID)
	if err != nil {
		s.log.Warn().Err(err).Msg("receipt generation skipped")
		return
	}

	var total float64
	items := make([]map[string]interface{}, 0, len(orders))
	for _, o := range orders {
		total += o.Price
		items = append(items, map[string]interface{}{
			"testCode": o.TestCode,
			"testName": o.TestName,
			"price":    fmt.Sprintf("%.2f", o.Price),
		})
	}
	code := ""
	if enc.EncounterCode != nil {
		code = *enc.EncounterCode
	}
	payload := map[string]interface{}{
		"encounterId":   enc.ID.String(),
		"encounterCode": code,
		"patientId":     enc.PatientID.String(),
		"items":         items,
		"total":         fmt.Sprintf("%.2f", total),
	}
	if err := s.docs.Generate(ctx, tenantID, "RECEIPT", payload, enc.ID.String(), "encounter", actorID); err != nil {
		s.log.Warn().Err(err).Str("encounter_id", encounterID.String()).Msg("receipt generation failed")
	}
}

// CollectSpecimens marks items collected and advances the encounter once
// nothing is pending. When the separate receive step is disabled for the
// tenant, collection receives the samples in the same command.
func (s *Service) CollectSpecimens(ctx context.Context, tenantID string, encounterID uuid.UUID, itemIDs []uuid.UUID, actorID string) (*Encounter, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	enc, err := s.repo.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("encounter", enc.Status, StatusSpecimenCollected); err != nil {
		return nil, err
	}
	separate, err := s.guard.ModuleEnabled(ctx, tenantID, tenant.ModuleSeparateReceive)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		_, remaining, err := s.specimens.Collect(ctx, tenantID, encounterID, itemIDs, actorID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if _, err := s.repo.AdvanceOrders(ctx, tenantID, encounterID, OrderStatusOrdered, OrderStatusSpecimenCollected); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, tenantID, encounterID, StatusSpecimenCollected); err != nil {
			return err
		}
		if separate {
			return nil
		}
		_, left, err := s.specimens.Receive(ctx, tenantID, encounterID, nil, actorID)
		if err != nil {
			return err
		}
		if left == 0 {
			return s.repo.UpdateStatus(ctx, tenantID, encounterID, StatusSpecimenReceived)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "encounter.collect",
		EntityType: "encounter", EntityID: encounterID.String(),
		FromStatus: enc.Status, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, encounterID)
}

// ReceiveSpecimens is the second half of the split collection flow and is
// only available when the tenant runs with the separate receive step.
func (s *Service) ReceiveSpecimens(ctx context.Context, tenantID string, encounterID uuid.UUID, itemIDs []uuid.UUID, actorID string) (*Encounter, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleSeparateReceive); err != nil {
		return nil, err
	}
	enc, err := s.repo.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("encounter", enc.Status, StatusSpecimenReceived); err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		_, remaining, err := s.specimens.Receive(ctx, tenantID, encounterID, itemIDs, actorID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return s.repo.UpdateStatus(ctx, tenantID, encounterID, StatusSpecimenReceived)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "encounter.receive",
		EntityType: "encounter", EntityID: encounterID.String(),
		FromStatus: enc.Status, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, encounterID)
}

// Cancel is terminal and allowed from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, tenantID string, encounterID uuid.UUID, actorID string) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Step("encounter", enc.Status, StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, encounterID, StatusCancelled); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "encounter.cancel",
		EntityType: "encounter", EntityID: encounterID.String(),
		FromStatus: enc.Status, ToStatus: StatusCancelled, At: time.Now().UTC(),
	})
	return s.repo.GetByID(ctx, tenantID, encounterID)
}
