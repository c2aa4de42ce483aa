package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

// AssignInput changes who performs the appointment. Unset fields keep their value,
// fields set to null are cleared.
type AssignInput struct {
	PerformerID     model.Optional[string]
	PickupDriverID  model.Optional[string]
	DropoffDriverID model.Optional[string]
}

func (in AssignInput) empty() bool {
	return !in.PerformerID.Set && !in.PickupDriverID.Set && !in.DropoffDriverID.Set
}

func (s *Service) Assign(ctx context.Context, caller Caller, id string, in AssignInput) (model.Appointment, error) {
	if !caller.Staff {
		return model.Appointment{}, ErrForbidden
	}
	if in.empty() {
		return model.Appointment{}, invalid("nenhuma alteração informada")
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id, false)
		if err != nil {
			return err
		}

		performer := strings.TrimSpace(in.PerformerID.Apply(appt.PerformerID, ""))
		pickup := strings.TrimSpace(in.PickupDriverID.Apply(appt.PickupDriverID, ""))
		dropoff := strings.TrimSpace(in.DropoffDriverID.Apply(appt.DropoffDriverID, ""))

		if appt.HasLogistics() && (pickup == "" || dropoff == "") {
			return ErrDriversRequired
		}
		for _, staffID := range []string{performer, pickup, dropoff} {
			if staffID == "" {
				continue
			}
			staff, err := tx.GetStaff(ctx, staffID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return invalid("colaborador não encontrado")
				}
				return fmt.Errorf("load staff: %w", err)
			}
			if !staff.Active {
				return invalid("colaborador inativo")
			}
		}

		now := s.now().UTC()
		if err := tx.UpdateAssignment(ctx, appt.ID, performer, pickup, dropoff, now); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		appt.PerformerID = performer
		appt.PickupDriverID = pickup
		appt.DropoffDriverID = dropoff
		appt.UpdatedAt = now

		return s.audit(ctx, tx, "appointment.assigned", caller, appt.ID, map[string]any{
			"performer_id":      performer,
			"pickup_driver_id":  pickup,
			"dropoff_driver_id": dropoff,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment assigned", "appointment_id", id, "performer_id", appt.PerformerID)
	return appt, nil
}

type RescheduleInput struct {
	StartAt          time.Time
	Reason           string
	OverridePastDate bool
}

// Reschedule moves an appointment to a new start time. The date rules of Create apply
// to the new time, and a customer reschedule puts the appointment back to PENDENTE for
// staff confirmation.
func (s *Service) Reschedule(ctx context.Context, caller Caller, id string, in RescheduleInput) (model.Appointment, error) {
	if err := caller.scoped(); err != nil {
		return model.Appointment{}, err
	}
	if in.StartAt.IsZero() {
		return model.Appointment{}, invalid("nova data é obrigatória")
	}
	now := s.now().UTC()
	if err := checkStartAt(caller, in.StartAt, in.OverridePastDate, now); err != nil {
		return model.Appointment{}, err
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id, false)
		if err != nil {
			return err
		}
		if !caller.Staff && appt.CustomerID != caller.CustomerID {
			return ErrNotFound
		}
		if appt.Status.Terminal() {
			return fmt.Errorf("%w: agendamento %s", ErrInvalidTransition, appt.Status)
		}
		if !caller.Staff {
			if err := s.ensureSlotFree(ctx, tx, appt.Category, in.StartAt.UTC(), appt.ID); err != nil {
				return err
			}
		}

		previous := appt.StartAt
		status := appt.Status
		if !caller.Staff {
			status = model.StatusPending
		}
		if err := tx.UpdateSchedule(ctx, appt.ID, in.StartAt.UTC(), now); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		appt.StartAt = in.StartAt.UTC()
		appt.UpdatedAt = now

		reason := reasonOr(strings.TrimSpace(in.Reason), "reagendado")
		if err := s.changeStatus(ctx, tx, &appt, status, reason, caller.actor()); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, "appointment.rescheduled", caller, appt.ID, map[string]any{
			"previous_start_at": previous.UTC().Format(time.RFC3339),
			"start_at":          appt.StartAt.Format(time.RFC3339),
			"reason":            reason,
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.AppointmentRescheduled, appt, map[string]any{
			"previous_start_at": previous.UTC().Format(time.RFC3339),
			"changed_by":        caller.actor(),
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "start_at", appt.StartAt)
	return appt, nil
}
