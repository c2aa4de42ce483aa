package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/availability"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
)

// WithBusinessHours sets the opening hours used by Slots.
func WithBusinessHours(h availability.Hours) Option {
	return func(s *Service) { s.hours = h }
}

// Slots lists the free start times of a category on the given day. Customers only
// see times that satisfy the minimum lead time.
func (s *Service) Slots(ctx context.Context, caller Caller, category model.Category, day time.Time) ([]time.Time, error) {
	if err := caller.scoped(); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, invalid("categoria inválida")
	}
	open, closing := s.hours.Window(day)

	notBefore := s.now().UTC()
	if !caller.Staff {
		notBefore = notBefore.Add(MinLeadTime)
	}

	var booked []model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		booked, err = tx.ListAppointments(ctx, ListFilter{Category: category, From: open, To: closing, Limit: 500})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list booked: %w", err)
	}

	taken := make([]time.Time, 0, len(booked))
	for _, a := range booked {
		if a.Status != model.StatusCancelled {
			taken = append(taken, a.StartAt)
		}
	}
	return availability.FreeStarts(open, closing, s.hours.Step, taken, notBefore), nil
}
