package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCustomerRejectsPastDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), customer, lifecycle.CreateInput{
		CustomerID: "c1",
		PetID:      "pet-1",
		StartAt:    f.now.Add(-time.Hour),
		Category:   model.CategorySpa,
	})
	require.ErrorIs(t, err, lifecycle.ErrPastDate)
}

func TestCreateStaffPastDateWarningThenOverride(t *testing.T) {
	f := newFixture(t)
	in := lifecycle.CreateInput{
		CustomerID: "c1",
		PetID:      "pet-1",
		StartAt:    f.now.Add(-3 * time.Hour),
		Category:   model.CategorySpa,
	}

	_, err := f.svc.Create(context.Background(), staff, in)
	var warning *lifecycle.PastDateWarning
	require.True(t, errors.As(err, &warning), "got %v", err)
	assert.Equal(t, lifecycle.PastDateWarningCode, warning.Code())
	assert.True(t, warning.StartAt.Equal(in.StartAt))

	in.OverridePastDate = true
	appt, err := f.svc.Create(context.Background(), staff, in)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
}

func TestCreateCustomerLeadTime(t *testing.T) {
	f := newFixture(t)
	base := lifecycle.CreateInput{CustomerID: "c1", PetID: "pet-1", Category: model.CategorySpa}

	in := base
	in.StartAt = f.now.Add(11*time.Hour + 59*time.Minute)
	_, err := f.svc.Create(context.Background(), customer, in)
	require.ErrorIs(t, err, lifecycle.ErrLeadTime)

	in.StartAt = f.now.Add(lifecycle.MinLeadTime)
	appt, err := f.svc.Create(context.Background(), customer, in)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)

	// staff are not bound by the lead time
	in.StartAt = f.now.Add(time.Hour)
	_, err = f.svc.Create(context.Background(), staff, in)
	require.NoError(t, err)
}

func TestCreateStaffLogisticsRequiresDrivers(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(48 * time.Hour)

	cases := []struct {
		name      string
		category  model.Category
		transport *lifecycle.TransportInput
		pickup    string
		dropoff   string
		wantErr   error
	}{
		{name: "logistics without drivers", category: model.CategoryLogistics, wantErr: lifecycle.ErrDriversRequired},
		{name: "logistics missing dropoff", category: model.CategoryLogistics, pickup: "s2", wantErr: lifecycle.ErrDriversRequired},
		{name: "spa with transport", category: model.CategorySpa, transport: &lifecycle.TransportInput{Origin: "Casa"}, pickup: "s2", wantErr: lifecycle.ErrDriversRequired},
		{name: "spa without transport", category: model.CategorySpa},
		{name: "logistics with drivers", category: model.CategoryLogistics, pickup: "s2", dropoff: "s1"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), staff, lifecycle.CreateInput{
				CustomerID:      "c1",
				PetID:           "pet-1",
				StartAt:         start.Add(time.Duration(i) * time.Hour),
				Category:        tc.category,
				Transport:       tc.transport,
				PickupDriverID:  tc.pickup,
				DropoffDriverID: tc.dropoff,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCreateBlockedCustomer(t *testing.T) {
	f := newFixture(t)
	in := lifecycle.CreateInput{CustomerID: "c2", PetID: "pet-2", StartAt: f.now.Add(24 * time.Hour), Category: model.CategorySpa}

	_, err := f.svc.Create(context.Background(), lifecycle.Caller{UserID: "user-c2", CustomerID: "c2"}, in)
	require.ErrorIs(t, err, lifecycle.ErrCustomerBlocked)

	_, err = f.svc.Create(context.Background(), staff, in)
	require.NoError(t, err)
}

func TestCreateDoubleBooking(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(24 * time.Hour)
	other := lifecycle.Caller{UserID: "user-c3", CustomerID: "c3"}

	first := f.createSpa(t, customer, "c1", start)

	_, err := f.svc.Create(context.Background(), other, lifecycle.CreateInput{
		CustomerID: "c3", PetID: "pet-3", StartAt: start, Category: model.CategorySpa,
	})
	require.ErrorIs(t, err, lifecycle.ErrSlotTaken)

	// another category at the same time is a different slot
	_, err = f.svc.Create(context.Background(), other, lifecycle.CreateInput{
		CustomerID: "c3", PetID: "pet-3", StartAt: start, Category: model.CategoryLogistics,
	})
	require.NoError(t, err)

	// staff bypass the check
	f.createSpa(t, staff, "c3", start)
	f.createSpa(t, staff, "c3", start)

	// cancelled appointments free the slot
	later := start.Add(time.Hour)
	booked := f.createSpa(t, customer, "c1", later)
	_, err = f.svc.UpdateStatus(context.Background(), staff, booked.ID, lifecycle.UpdateStatusInput{Status: model.StatusCancelled})
	require.NoError(t, err)
	f.createSpa(t, other, "c3", later)

	assert.NotEmpty(t, first.ID)
}

func TestCreateCustomerCannotBookForSomeoneElse(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), customer, lifecycle.CreateInput{
		CustomerID: "c3", PetID: "pet-3", StartAt: f.now.Add(24 * time.Hour), Category: model.CategorySpa,
	})
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(24 * time.Hour)

	_, err := f.svc.Create(context.Background(), staff, lifecycle.CreateInput{CustomerID: "c1", StartAt: start, Category: model.CategorySpa})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)

	_, err = f.svc.Create(context.Background(), staff, lifecycle.CreateInput{CustomerID: "c1", PetID: "p", StartAt: start, Category: "HOTEL"})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)

	_, err = f.svc.Create(context.Background(), staff, lifecycle.CreateInput{CustomerID: "missing", PetID: "p", StartAt: start, Category: model.CategorySpa})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)
}

func TestCreateRecordsSideEffects(t *testing.T) {
	f := newFixture(t)
	f.store.AddQuote("q1", "ENVIADO")

	appt, err := f.svc.Create(context.Background(), staff, lifecycle.CreateInput{
		CustomerID:      "c1",
		PetID:           "pet-1",
		ServiceIDs:      []string{"bath", " bath ", "trim"},
		StartAt:         f.now.Add(24 * time.Hour),
		Category:        model.CategorySpa,
		Transport:       &lifecycle.TransportInput{Origin: "Casa", Destination: "Loja", Period: "TARDE"},
		PickupDriverID:  "s2",
		DropoffDriverID: "s2",
		QuoteID:         "q1",
	})
	require.NoError(t, err)

	stored, ok := f.store.Appointment(appt.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"bath", "trim"}, stored.ServiceIDs)
	require.NotNil(t, stored.Transport)
	assert.Equal(t, "Casa", stored.Transport.Origin)
	assert.Equal(t, model.LogisticsPending, stored.LogisticsStatus)

	assert.Equal(t, model.QuoteStatusScheduled, f.store.Quote("q1"))
	require.Len(t, f.store.QuoteHistory(), 1)
	assert.Equal(t, "ENVIADO", f.store.QuoteHistory()[0].OldStatus)

	audit := f.store.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, "appointment.created", audit[0].Action)
	assert.Equal(t, staff.UserID, audit[0].ActorID)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.AppointmentCreated, events[0].EventType)

	history := f.store.History(appt.ID)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusConfirmed, history[0].NewStatus)
}

func TestCreateUnknownQuoteRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), staff, lifecycle.CreateInput{
		CustomerID: "c1", PetID: "pet-1", StartAt: f.now.Add(24 * time.Hour), Category: model.CategorySpa, QuoteID: "nope",
	})
	require.ErrorIs(t, err, lifecycle.ErrInvalidInput)

	list, err := f.svc.List(context.Background(), staff, lifecycle.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.store.Events())
}
