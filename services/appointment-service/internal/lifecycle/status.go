package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

type UpdateStatusInput struct {
	Status model.Status
	Reason string
	// Force skips the transition table. Staff use it to correct mistakes, e.g. reopening
	// a finalized appointment.
	Force bool
}

// UpdateStatus moves an appointment to a new status. Setting the current status again
// is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, id string, in UpdateStatusInput) (model.Appointment, error) {
	if !caller.Staff {
		return model.Appointment{}, ErrForbidden
	}
	if !in.Status.Valid() {
		return model.Appointment{}, invalid("status inválido")
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id, false)
		if err != nil {
			return err
		}
		if appt.Status == in.Status {
			return nil
		}
		if !in.Force && !model.CanTransition(appt.Status, in.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, in.Status)
		}
		return s.changeStatus(ctx, tx, &appt, in.Status, in.Reason, caller.actor())
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment status changed", "appointment_id", id, "status", appt.Status, "forced", in.Force)
	return appt, nil
}

type UpdateLogisticsInput struct {
	Status model.LogisticsStatus
	Reason string
}

// UpdateLogisticsStatus records the outcome of the transport leg and derives the main
// status from it:
//
//	EXECUTED                 credit pickup and dropoff; LOGISTICA becomes FINALIZADO
//	CANCELED_WITH_TRAVEL     credit the pickup leg (departure fee); CANCELADO
//	CANCELED_WITHOUT_TRAVEL  CANCELADO
//	RESCHEDULE               PENDENTE
//	DELAYED                  no side effect
func (s *Service) UpdateLogisticsStatus(ctx context.Context, caller Caller, id string, in UpdateLogisticsInput) (model.Appointment, error) {
	if !caller.Staff {
		return model.Appointment{}, ErrForbidden
	}
	if !in.Status.Valid() {
		return model.Appointment{}, invalid("status de logística inválido")
	}
	reason := strings.TrimSpace(in.Reason)

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id, false)
		if err != nil {
			return err
		}
		if !appt.HasLogistics() {
			return ErrNoTransport
		}

		previous := appt.LogisticsStatus
		now := s.now().UTC()
		if err := tx.UpdateLogisticsStatus(ctx, appt.ID, in.Status, now); err != nil {
			return fmt.Errorf("update logistics status: %w", err)
		}
		appt.LogisticsStatus = in.Status
		appt.UpdatedAt = now
		if err := s.emit(ctx, tx, outbox.AppointmentLogisticsChange, appt, map[string]any{
			"old_logistics_status": string(previous),
			"new_logistics_status": string(in.Status),
			"reason":               reason,
			"changed_by":           caller.actor(),
		}); err != nil {
			return err
		}

		switch in.Status {
		case model.LogisticsExecuted:
			if err := s.recordLegs(ctx, tx, appt, true, true); err != nil {
				return err
			}
			if appt.Category == model.CategoryLogistics {
				return s.changeStatus(ctx, tx, &appt, model.StatusDone, reasonOr(reason, "transporte executado"), caller.actor())
			}
		case model.LogisticsCanceledWithTravel:
			if err := s.recordLegs(ctx, tx, appt, true, false); err != nil {
				return err
			}
			return s.changeStatus(ctx, tx, &appt, model.StatusCancelled, reasonOr(reason, "cancelado com deslocamento"), caller.actor())
		case model.LogisticsCanceledWithoutTravel:
			return s.changeStatus(ctx, tx, &appt, model.StatusCancelled, reasonOr(reason, "cancelado sem deslocamento"), caller.actor())
		case model.LogisticsReschedule:
			return s.changeStatus(ctx, tx, &appt, model.StatusPending, reasonOr(reason, "reagendamento solicitado"), caller.actor())
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment logistics status changed",
		"appointment_id", id,
		"logistics_status", appt.LogisticsStatus,
		"status", appt.Status,
	)
	return appt, nil
}

// recordCompletion credits the work of a finalized appointment. SPA work produces one
// record per linked service (a generic one when none is linked) for the performer;
// LOGISTICA produces the pickup and dropoff legs. Existing records are not duplicated.
func (s *Service) recordCompletion(ctx context.Context, tx Tx, appt model.Appointment) error {
	if appt.Category == model.CategoryLogistics {
		return s.recordLegs(ctx, tx, appt, true, true)
	}

	performer, ok, err := s.activeStaff(ctx, tx, appt.PerformerID)
	if err != nil || !ok {
		return err
	}
	serviceIDs := appt.ServiceIDs
	if len(serviceIDs) == 0 {
		serviceIDs = []string{""}
	}
	for _, serviceID := range serviceIDs {
		if err := s.produce(ctx, tx, appt, performer.ID, model.ProductionService, serviceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordLegs(ctx context.Context, tx Tx, appt model.Appointment, pickup, dropoff bool) error {
	legs := []struct {
		enabled bool
		kind    model.ProductionKind
		staffID string
	}{
		{pickup, model.ProductionPickup, appt.PickupResponsible()},
		{dropoff, model.ProductionDropoff, appt.DropoffResponsible()},
	}
	for _, leg := range legs {
		if !leg.enabled {
			continue
		}
		staff, ok, err := s.activeStaff(ctx, tx, leg.staffID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.produce(ctx, tx, appt, staff.ID, leg.kind, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) produce(ctx context.Context, tx Tx, appt model.Appointment, staffID string, kind model.ProductionKind, serviceID string) error {
	exists, err := tx.HasProduction(ctx, appt.ID, kind, serviceID)
	if err != nil {
		return fmt.Errorf("check production: %w", err)
	}
	if exists {
		return nil
	}
	err = tx.InsertProduction(ctx, model.ProductionRecord{
		ID:            s.newID(),
		StaffID:       staffID,
		AppointmentID: appt.ID,
		Kind:          kind,
		ServiceID:     serviceID,
		Reference:     reference(appt),
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert production: %w", err)
	}
	return nil
}

// activeStaff loads a staff member, reporting false when the id is empty, unknown or
// inactive.
func (s *Service) activeStaff(ctx context.Context, tx Tx, id string) (model.StaffMember, bool, error) {
	if id == "" {
		return model.StaffMember{}, false, nil
	}
	staff, err := tx.GetStaff(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("production skipped: unknown staff", "staff_id", id)
			return model.StaffMember{}, false, nil
		}
		return model.StaffMember{}, false, fmt.Errorf("load staff: %w", err)
	}
	if !staff.Active {
		return model.StaffMember{}, false, nil
	}
	return staff, true, nil
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
