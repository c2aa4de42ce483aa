package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/availability"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotsExcludeBookedAndRespectLeadTime(t *testing.T) {
	f := newFixture(t)
	hours := availability.Hours{Open: 8 * time.Hour, Close: 12 * time.Hour, Step: time.Hour, Location: time.UTC}
	f.svc = lifecycle.NewService(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		lifecycle.WithClock(func() time.Time { return f.now }),
		lifecycle.WithBusinessHours(hours),
	)
	ctx := context.Background()

	// now is 2026-06-01 10:00; the next day is fully outside the lead time
	tomorrow := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	f.createSpa(t, customer, "c1", tomorrow.Add(9*time.Hour))
	cancelled := f.createSpa(t, customer, "c1", tomorrow.Add(10*time.Hour))
	_, err := f.svc.UpdateStatus(ctx, staff, cancelled.ID, lifecycle.UpdateStatusInput{Status: model.StatusCancelled})
	require.NoError(t, err)

	slots, err := f.svc.Slots(ctx, customer, model.CategorySpa, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{tomorrow.Add(8 * time.Hour), tomorrow.Add(10 * time.Hour), tomorrow.Add(11 * time.Hour)}, slots)

	// other categories are independent
	slots, err = f.svc.Slots(ctx, customer, model.CategoryLogistics, tomorrow)
	require.NoError(t, err)
	assert.Len(t, slots, 4)

	// today: customers need 12h notice, staff only need the time to be in the future
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	slots, err = f.svc.Slots(ctx, customer, model.CategorySpa, today)
	require.NoError(t, err)
	assert.Empty(t, slots)

	slots, err = f.svc.Slots(ctx, staff, model.CategorySpa, today)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{today.Add(10 * time.Hour), today.Add(11 * time.Hour)}, slots)

	_, err = f.svc.Slots(ctx, staff, "HOTEL", today)
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)
}
