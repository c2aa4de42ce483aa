package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/availability"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
	"github.com/google/uuid"
)

const (
	MinLeadTime          = 12 * time.Hour
	NoShowGrace          = 2 * time.Hour
	NoShowBlockThreshold = 2
	TrashRetention       = 15 * 24 * time.Hour

	systemActor = "system"
)

// Caller identifies who performs an operation.
type Caller struct {
	UserID string
	Staff  bool
	// CustomerID is set for customer callers and scopes what they may touch.
	CustomerID string
}

// scoped rejects non-staff callers that carry no customer id, since every customer
// operation is filtered by it.
func (c Caller) scoped() error {
	if !c.Staff && c.CustomerID == "" {
		return ErrForbidden
	}
	return nil
}

func (c Caller) actor() string {
	if c.UserID == "" {
		return systemActor
	}
	return c.UserID
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	hours  availability.Hours
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		hours:  availability.DefaultHours(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, caller Caller, id string) (model.Appointment, error) {
	if err := caller.scoped(); err != nil {
		return model.Appointment{}, err
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id, false)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.Staff && appt.CustomerID != caller.CustomerID {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

// List returns non-deleted appointments. Customers only see their own.
func (s *Service) List(ctx context.Context, caller Caller, f ListFilter) ([]model.Appointment, error) {
	if err := caller.scoped(); err != nil {
		return nil, err
	}
	if !caller.Staff {
		f.CustomerID = caller.CustomerID
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, invalid("categoria inválida")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status inválido")
	}

	var out []model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListAppointments(ctx, f)
		return err
	})
	return out, err
}

func (s *Service) History(ctx context.Context, caller Caller, id string) ([]model.StatusHistory, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	var out []model.StatusHistory
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListStatusHistory(ctx, id)
		return err
	})
	return out, err
}

// changeStatus persists a status change with its history entry and event, and runs
// the completion side effects when the new status is FINALIZADO. It is a no-op when
// the status does not change.
func (s *Service) changeStatus(ctx context.Context, tx Tx, appt *model.Appointment, to model.Status, reason, actor string) error {
	from := appt.Status
	if from == to {
		return nil
	}
	now := s.now().UTC()
	if err := tx.UpdateStatus(ctx, appt.ID, to, now); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	appt.Status = to
	appt.UpdatedAt = now

	if err := tx.InsertStatusHistory(ctx, model.StatusHistory{
		ID:            s.newID(),
		AppointmentID: appt.ID,
		OldStatus:     from,
		NewStatus:     to,
		Reason:        strings.TrimSpace(reason),
		ChangedBy:     actor,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	if err := s.emit(ctx, tx, outbox.AppointmentStatusChanged, *appt, map[string]any{
		"old_status": string(from),
		"new_status": string(to),
		"reason":     reason,
		"changed_by": actor,
	}); err != nil {
		return err
	}

	if to == model.StatusDone {
		return s.recordCompletion(ctx, tx, *appt)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, tx Tx, eventType string, appt model.Appointment, extra map[string]any) error {
	payload := map[string]any{
		"customer_id": appt.CustomerID,
		"pet_id":      appt.PetID,
		"category":    string(appt.Category),
		"status":      string(appt.Status),
		"start_at":    appt.StartAt.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewAppointmentEvent(eventType, appt.ID, payload, s.now())
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if err := tx.InsertEvent(ctx, evt); err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, tx Tx, action string, caller Caller, appointmentID string, metadata map[string]any) error {
	err := tx.InsertAudit(ctx, model.AuditEntry{
		Action:        action,
		ActorID:       caller.actor(),
		AppointmentID: appointmentID,
		Metadata:      metadata,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// reference is the human-readable tag stored on production records.
func reference(appt model.Appointment) string {
	id := appt.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Agendamento #%s %s (%s)", id, appt.StartAt.Format("02/01/2006 15:04"), appt.Category)
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
