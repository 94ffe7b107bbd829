package results

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limshq/lims/internal/domain/catalog"
	"github.com/limshq/lims/internal/domain/encounter"
	"github.com/limshq/lims/internal/domain/tenant"
	"github.com/limshq/lims/internal/platform/audit"
	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
)

// ParameterSource resolves catalog parameters for flag computation.
type ParameterSource interface {
	GetParameter(ctx context.Context, tenantID string, id uuid.UUID) (*catalog.Parameter, error)
}

// ModuleGuard gates result commands on tenant module flags.
type ModuleGuard interface {
	RequireModule(ctx context.Context, tenantID, moduleKey string) error
}

// DocumentTrigger kicks off report generation after verification.
type DocumentTrigger interface {
	Generate(ctx context.Context, tenantID, docType string, payload map[string]interface{}, sourceRef, sourceType, actorID string) error
}

type Service struct {
	repo       Repository
	encounters encounter.Repository
	params     ParameterSource
	guard      ModuleGuard
	docs       DocumentTrigger
	audit      audit.Sink
	runTx      db.TxRunner
	log        zerolog.Logger
}

func NewService(repo Repository, encounters encounter.Repository, params ParameterSource, guard ModuleGuard, docs DocumentTrigger, sink audit.Sink, runTx db.TxRunner, logger zerolog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if runTx == nil {
		runTx = db.PassthroughTx
	}
	return &Service{
		repo:       repo,
		encounters: encounters,
		params:     params,
		guard:      guard,
		docs:       docs,
		audit:      sink,
		runTx:      runTx,
		log:        logger,
	}
}

func (s *Service) GetOrderDetail(ctx context.Context, tenantID string, labOrderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.encounters.GetOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: order, Results: rows}, nil
}

// SaveResults upserts entered values for an order. Locked results are
// skipped, never overwritten.
func (s *Service) SaveResults(ctx context.Context, tenantID string, labOrderID uuid.UUID, values []ResultValue, actorID string) (*OrderDetail, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fault.BadRequest("no result values given")
	}
	order, err := s.encounters.GetOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	enc, err := s.encounters.GetByID(ctx, tenantID, order.EncounterID)
	if err != nil {
		return nil, err
	}
	if !encounter.SpecimenReady(enc.Status) {
		return nil, fault.Forbidden("sample not collected")
	}

	existing, err := s.repo.ListByOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	locked := map[uuid.UUID]bool{}
	for _, res := range existing {
		if res.Locked {
			locked[res.ParameterID] = true
		}
	}

	now := time.Now().UTC()
	err = s.runTx(ctx, func(ctx context.Context) error {
		for _, v := range values {
			if locked[v.ParameterID] {
				continue
			}
			param, err := s.params.GetParameter(ctx, tenantID, v.ParameterID)
			if err != nil {
				return err
			}
			res := &LabResult{
				TenantID:       tenantID,
				LabOrderID:     labOrderID,
				ParameterID:    v.ParameterID,
				Value:          strings.TrimSpace(v.Value),
				Unit:           param.Unit,
				ReferenceRange: param.ReferenceRange,
				Flag:           ComputeFlag(v.Value, param.ReferenceRange, param.CriticalLow, param.CriticalHigh),
				EnteredAt:      now,
				EnteredBy:      actorID,
			}
			if err := s.repo.Upsert(ctx, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "results.save",
		EntityType: "lab_order", EntityID: labOrderID.String(),
		Detail: map[string]interface{}{"values": len(values)}, At: now,
	})
	return s.GetOrderDetail(ctx, tenantID, labOrderID)
}

// SubmitResults finalizes entry for one order. Submitting an already
// submitted order is a no-op.
func (s *Service) SubmitResults(ctx context.Context, tenantID string, labOrderID uuid.UUID, actorID string) (*OrderDetail, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	order, err := s.encounters.GetOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}
	if order.ResultStatus == encounter.ResultStatusSubmitted {
		return s.GetOrderDetail(ctx, tenantID, labOrderID)
	}

	now := time.Now().UTC()
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.submitOrder(ctx, tenantID, labOrderID, now, actorID); err != nil {
			return err
		}
		return s.aggregateEncounterStatus(ctx, tenantID, order.EncounterID)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "results.submit",
		EntityType: "lab_order", EntityID: labOrderID.String(),
		FromStatus: encounter.ResultStatusPending, ToStatus: encounter.ResultStatusSubmitted, At: now,
	})
	return s.GetOrderDetail(ctx, tenantID, labOrderID)
}

func (s *Service) submitOrder(ctx context.Context, tenantID string, labOrderID uuid.UUID, now time.Time, actorID string) error {
	if err := s.encounters.MarkOrderSubmitted(ctx, tenantID, labOrderID, now, actorID); err != nil {
		return err
	}
	_, err := s.repo.LockNonEmpty(ctx, tenantID, labOrderID)
	return err
}

// aggregateEncounterStatus recomputes the encounter status after a submit.
// A verified encounter is never downgraded.
func (s *Service) aggregateEncounterStatus(ctx context.Context, tenantID string, encounterID uuid.UUID) error {
	enc, err := s.encounters.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return err
	}
	if enc.Status == encounter.StatusVerified {
		return nil
	}
	pending, err := s.encounters.CountOrdersByResultStatus(ctx, tenantID, encounterID, encounter.ResultStatusPending)
	if err != nil {
		return err
	}
	status := encounter.StatusResulted
	if pending > 0 {
		status = encounter.StatusPartialResulted
	}
	return s.encounters.UpdateStatus(ctx, tenantID, encounterID, status)
}

// SubmitAndVerify submits if needed, then verifies the single order and its
// results and marks the encounter verified. Report generation runs in the
// background and never fails the command.
func (s *Service) SubmitAndVerify(ctx context.Context, tenantID string, labOrderID uuid.UUID, actorID string) (*VerifyOutcome, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	order, err := s.encounters.GetOrder(ctx, tenantID, labOrderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.runTx(ctx, func(ctx context.Context) error {
		if order.ResultStatus != encounter.ResultStatusSubmitted {
			if err := s.submitOrder(ctx, tenantID, labOrderID, now, actorID); err != nil {
				return err
			}
		}
		if _, err := s.repo.VerifyByOrder(ctx, tenantID, labOrderID, now, actorID); err != nil {
			return err
		}
		if _, err := s.encounters.MarkOrdersVerified(ctx, tenantID, []uuid.UUID{labOrderID}, now, actorID); err != nil {
			return err
		}
		return s.encounters.UpdateStatus(ctx, tenantID, order.EncounterID, encounter.StatusVerified)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "results.submit_and_verify",
		EntityType: "lab_order", EntityID: labOrderID.String(),
		ToStatus: encounter.StatusVerified, At: now,
	})
	s.dispatchLabReport(ctx, tenantID, order.EncounterID, actorID)
	return &VerifyOutcome{Status: encounter.StatusVerified}, nil
}

// VerifyEncounter verifies every submitted, not yet verified order of the
// encounter in one transaction.
func (s *Service) VerifyEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID, actorID string) (*VerifyOutcome, error) {
	if err := s.guard.RequireModule(ctx, tenantID, tenant.ModuleLab); err != nil {
		return nil, err
	}
	if _, err := s.encounters.GetByID(ctx, tenantID, encounterID); err != nil {
		return nil, err
	}
	orders, err := s.encounters.ListOrdersByEncounter(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}

	var eligible []uuid.UUID
	for _, o := range orders {
		if o.ResultStatus == encounter.ResultStatusSubmitted && o.Status != encounter.OrderStatusVerified {
			eligible = append(eligible, o.ID)
		}
	}
	if len(eligible) == 0 {
		return nil, fault.Conflict("encounter %s has no submitted orders to verify", encounterID)
	}

	now := time.Now().UTC()
	var status string
	err = s.runTx(ctx, func(ctx context.Context) error {
		if _, err := s.encounters.MarkOrdersVerified(ctx, tenantID, eligible, now, actorID); err != nil {
			return err
		}
		for _, id := range eligible {
			if _, err := s.repo.VerifyByOrder(ctx, tenantID, id, now, actorID); err != nil {
				return err
			}
		}
		pending, err := s.encounters.CountOrdersByResultStatus(ctx, tenantID, encounterID, encounter.ResultStatusPending)
		if err != nil {
			return err
		}
		status = encounter.StatusVerified
		if pending > 0 {
			status = encounter.StatusResulted
		}
		return s.encounters.UpdateStatus(ctx, tenantID, encounterID, status)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID: tenantID, ActorID: actorID, Action: "results.verify_encounter",
		EntityType: "encounter", EntityID: encounterID.String(),
		ToStatus: status, Detail: map[string]interface{}{"orders": len(eligible)}, At: now,
	})
	s.dispatchLabReport(ctx, tenantID, encounterID, actorID)
	return &VerifyOutcome{Status: status}, nil
}

// dispatchLabReport fires report generation without blocking the caller. The
// detached context keeps tenant and actor values but outlives the request.
func (s *Service) dispatchLabReport(ctx context.Context, tenantID string, encounterID uuid.UUID, actorID string) {
	if s.docs == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		payload, err := s.buildReportPayload(bg, tenantID, encounterID)
		if err != nil {
			s.log.Warn().Err(err).Str("encounter_id", encounterID.String()).Msg("lab report payload failed")
			return
		}
		if err := s.docs.Generate(bg, tenantID, "LAB_REPORT", payload, encounterID.String(), "encounter", actorID); err != nil {
			s.log.Warn().Err(err).Str("encounter_id", encounterID.String()).Msg("lab report generation failed")
		}
	}()
}

func (s *Service) buildReportPayload(ctx context.Context, tenantID string, encounterID uuid.UUID) (map[string]interface{}, error) {
	enc, err := s.encounters.GetByID(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	orders, err := s.encounters.ListOrdersByEncounter(ctx, tenantID, encounterID)
	if err != nil {
		return nil, err
	}

	orderEntries := make([]map[string]interface{}, 0, len(orders))
	for _, o := range orders {
		rows, err := s.repo.ListByOrder(ctx, tenantID, o.ID)
		if err != nil {
			return nil, err
		}
		resultEntries := make([]map[string]interface{}, 0, len(rows))
		for _, res := range rows {
			if res.Value == "" {
				continue
			}
			entry := map[string]interface{}{
				"parameterId": res.ParameterID.String(),
				"value":       res.Value,
			}
			if res.Unit != nil {
				entry["unit"] = *res.Unit
			}
			if res.ReferenceRange != nil {
				entry["referenceRange"] = *res.ReferenceRange
			}
			if res.Flag != nil {
				entry["flag"] = *res.Flag
			}
			resultEntries = append(resultEntries, entry)
		}
		orderEntries = append(orderEntries, map[string]interface{}{
			"testCode": o.TestCode,
			"testName": o.TestName,
			"results":  resultEntries,
		})
	}

	code := ""
	if enc.EncounterCode != nil {
		code = *enc.EncounterCode
	}
	return map[string]interface{}{
		"encounterId":   enc.ID.String(),
		"encounterCode": code,
		"patientId":     enc.PatientID.String(),
		"orders":        orderEntries,
	}, nil
}
