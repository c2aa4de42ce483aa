package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

const sweepBatchSize = 500

type SweepResult struct {
	Marked  int `json:"marked"`
	Blocked int `json:"blocked"`
}

// SweepNoShows marks open appointments whose start is more than NoShowGrace in the
// past as NO_SHOW and counts the no-show against the customer. A customer reaching
// NoShowBlockThreshold is blocked and must prepay from then on.
//
// Each appointment is handled in its own transaction so one failure does not undo the
// rest; failures are joined into the returned error.
func (s *Service) SweepNoShows(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().UTC().Add(-NoShowGrace)

	var overdue []model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		overdue, err = tx.ListOverdue(ctx, []model.Status{model.StatusPending, model.StatusConfirmed}, cutoff, sweepBatchSize)
		return err
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list overdue: %w", err)
	}

	var (
		res  SweepResult
		errs []error
	)
	for _, candidate := range overdue {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		blocked, marked, err := s.markNoShow(ctx, candidate.ID, cutoff)
		if err != nil {
			s.logger.Error("no-show mark failed", "appointment_id", candidate.ID, "err", err)
			errs = append(errs, fmt.Errorf("appointment %s: %w", candidate.ID, err))
			continue
		}
		if marked {
			res.Marked++
		}
		if blocked {
			res.Blocked++
		}
	}

	s.logger.Info("no-show sweep finished", "marked", res.Marked, "blocked", res.Blocked, "failed", len(errs))
	return res, errors.Join(errs...)
}

// markNoShow re-reads the appointment under lock, since it may have moved on since the
// listing.
func (s *Service) markNoShow(ctx context.Context, id string, cutoff time.Time) (blocked, marked bool, err error) {
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointment(ctx, id, false)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
			return nil
		}
		if !appt.StartAt.Before(cutoff) {
			return nil
		}
		if err := s.changeStatus(ctx, tx, &appt, model.StatusNoShow, "não compareceu", systemActor); err != nil {
			return err
		}
		marked = true

		customer, err := tx.GetCustomer(ctx, appt.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		customer.NoShowCount++
		if customer.NoShowCount >= NoShowBlockThreshold {
			blocked = !customer.Blocked
			customer.Blocked = true
			customer.RequiresPrepayment = true
		}
		if err := tx.UpdateCustomerNoShow(ctx, customer); err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
		return s.emit(ctx, tx, outbox.AppointmentNoShow, appt, map[string]any{
			"no_show_count":       customer.NoShowCount,
			"customer_blocked":    customer.Blocked,
			"requires_prepayment": customer.RequiresPrepayment,
		})
	})
	if err != nil {
		return false, false, err
	}
	return blocked, marked, nil
}
