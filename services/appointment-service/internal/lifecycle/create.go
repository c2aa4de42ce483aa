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

type TransportInput struct {
	Origin      string
	Destination string
	Period      string
}

type CreateInput struct {
	CustomerID      string
	PetID           string
	ServiceIDs      []string
	StartAt         time.Time
	Category        model.Category
	Transport       *TransportInput
	PerformerID     string
	PickupDriverID  string
	DropoffDriverID string
	QuoteID         string
	// OverridePastDate confirms a staff booking in the past after a PastDateWarning.
	OverridePastDate bool
}

func (in *CreateInput) normalize() {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.PetID = strings.TrimSpace(in.PetID)
	in.PerformerID = strings.TrimSpace(in.PerformerID)
	in.PickupDriverID = strings.TrimSpace(in.PickupDriverID)
	in.DropoffDriverID = strings.TrimSpace(in.DropoffDriverID)
	in.QuoteID = strings.TrimSpace(in.QuoteID)
	in.ServiceIDs = normalizeIDs(in.ServiceIDs)
}

// Create validates a booking against the scheduling rules and persists it.
//
// Rules are checked in order: past date, minimum lead time (customers), drivers for
// transport legs (staff), blocked customer (customers) and double booking (customers).
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (model.Appointment, error) {
	in.normalize()
	if err := caller.scoped(); err != nil {
		return model.Appointment{}, err
	}
	if in.CustomerID == "" || in.PetID == "" {
		return model.Appointment{}, invalid("cliente e pet são obrigatórios")
	}
	if !in.Category.Valid() {
		return model.Appointment{}, invalid("categoria inválida")
	}
	if in.StartAt.IsZero() {
		return model.Appointment{}, invalid("data do agendamento é obrigatória")
	}
	if !caller.Staff && in.CustomerID != caller.CustomerID {
		return model.Appointment{}, ErrForbidden
	}

	now := s.now().UTC()
	if err := checkStartAt(caller, in.StartAt, in.OverridePastDate, now); err != nil {
		return model.Appointment{}, err
	}

	withTransport := in.Transport != nil
	if caller.Staff && model.ImpliesLogistics(in.Category, withTransport) {
		if in.PickupDriverID == "" || in.DropoffDriverID == "" {
			return model.Appointment{}, ErrDriversRequired
		}
	}

	appt := model.Appointment{
		ID:              s.newID(),
		CustomerID:      in.CustomerID,
		PetID:           in.PetID,
		StartAt:         in.StartAt.UTC(),
		Category:        in.Category,
		Status:          model.StatusPending,
		PerformerID:     in.PerformerID,
		PickupDriverID:  in.PickupDriverID,
		DropoffDriverID: in.DropoffDriverID,
		ServiceIDs:      in.ServiceIDs,
		QuoteID:         in.QuoteID,
		CreatedByStaff:  caller.Staff,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if caller.Staff {
		appt.Status = model.StatusConfirmed
	}
	if withTransport {
		appt.Transport = &model.TransportDetails{
			Origin:      strings.TrimSpace(in.Transport.Origin),
			Destination: strings.TrimSpace(in.Transport.Destination),
			Period:      strings.TrimSpace(in.Transport.Period),
		}
	}
	if appt.HasLogistics() {
		appt.LogisticsStatus = model.LogisticsPending
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		customer, err := tx.GetCustomer(ctx, appt.CustomerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("cliente não encontrado")
			}
			return fmt.Errorf("load customer: %w", err)
		}
		if !caller.Staff {
			if customer.Blocked {
				return ErrCustomerBlocked
			}
			if err := s.ensureSlotFree(ctx, tx, appt.Category, appt.StartAt, ""); err != nil {
				return err
			}
		}

		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := tx.InsertStatusHistory(ctx, model.StatusHistory{
			ID:            s.newID(),
			AppointmentID: appt.ID,
			NewStatus:     appt.Status,
			Reason:        "agendamento criado",
			ChangedBy:     caller.actor(),
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		if appt.QuoteID != "" {
			if err := tx.AdvanceQuote(ctx, appt.QuoteID, model.QuoteStatusScheduled, caller.actor()); err != nil {
				if errors.Is(err, ErrNotFound) {
					return invalid("orçamento não encontrado")
				}
				return fmt.Errorf("advance quote: %w", err)
			}
		}
		if err := s.audit(ctx, tx, "appointment.created", caller, appt.ID, map[string]any{
			"category":  string(appt.Category),
			"start_at":  appt.StartAt.Format(time.RFC3339),
			"status":    string(appt.Status),
			"by_staff":  caller.Staff,
			"past_date": in.OverridePastDate && appt.StartAt.Before(now),
			"quote_id":  appt.QuoteID,
			"services":  len(appt.ServiceIDs),
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.AppointmentCreated, appt, map[string]any{
			"service_ids": appt.ServiceIDs,
			"by_staff":    caller.Staff,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"customer_id", appt.CustomerID,
		"category", appt.Category,
		"status", appt.Status,
		"by_staff", caller.Staff,
	)
	return appt, nil
}

// checkStartAt applies the past-date and lead-time rules.
func checkStartAt(caller Caller, startAt time.Time, override bool, now time.Time) error {
	if startAt.Before(now) {
		if !caller.Staff {
			return ErrPastDate
		}
		if !override {
			return &PastDateWarning{StartAt: startAt.UTC()}
		}
		return nil
	}
	if !caller.Staff && startAt.Sub(now) < MinLeadTime {
		return ErrLeadTime
	}
	return nil
}

func (s *Service) ensureSlotFree(ctx context.Context, tx Tx, category model.Category, startAt time.Time, excludeID string) error {
	if err := tx.LockSlot(ctx, category, startAt); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	taken, err := tx.ExistsActiveAt(ctx, category, startAt, excludeID)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return ErrSlotTaken
	}
	return nil
}
