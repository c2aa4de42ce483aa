package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

var (
	staff    = lifecycle.Caller{UserID: "user-staff", Staff: true}
	customer = lifecycle.Caller{UserID: "user-c1", CustomerID: "c1"}
)

type fixture struct {
	svc   *lifecycle.Service
	store *memstore.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		now:   time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.store.AddCustomer(model.Customer{ID: "c1", Name: "Ana"})
	f.store.AddCustomer(model.Customer{ID: "c2", Name: "Bruno", Blocked: true, NoShowCount: 2, RequiresPrepayment: true})
	f.store.AddCustomer(model.Customer{ID: "c3", Name: "Carla"})
	f.store.AddStaff(model.StaffMember{ID: "s1", Name: "Groomer", Active: true})
	f.store.AddStaff(model.StaffMember{ID: "s2", Name: "Driver", Active: true})
	f.store.AddStaff(model.StaffMember{ID: "s3", Name: "Former", Active: false})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = lifecycle.NewService(f.store, logger, lifecycle.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) createSpa(t *testing.T, caller lifecycle.Caller, customerID string, startAt time.Time) model.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), caller, lifecycle.CreateInput{
		CustomerID:  customerID,
		PetID:       "pet-1",
		ServiceIDs:  []string{"bath", "trim"},
		StartAt:     startAt,
		Category:    model.CategorySpa,
		PerformerID: "s1",
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) createLogistics(t *testing.T) model.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), staff, lifecycle.CreateInput{
		CustomerID:      "c1",
		PetID:           "pet-1",
		StartAt:         f.now.Add(24 * time.Hour),
		Category:        model.CategoryLogistics,
		Transport:       &lifecycle.TransportInput{Origin: "Rua A, 10", Destination: "Loja", Period: "MANHA"},
		PickupDriverID:  "s2",
		DropoffDriverID: "s1",
	})
	require.NoError(t, err)
	return appt
}

func productionFor(store *memstore.Store, appointmentID string) []model.ProductionRecord {
	var out []model.ProductionRecord
	for _, p := range store.Production() {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	return out
}
