// Package memstore is an in-memory lifecycle.Store for tests and local runs. InTx
// works on a copy of the state and swaps it in only when fn succeeds, so rollback
// behaves like the database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

type QuoteChange struct {
	QuoteID   string
	OldStatus string
	NewStatus string
	ChangedBy string
}

type Invoice struct {
	ID            string
	AppointmentID string
}

type state struct {
	appointments map[string]model.Appointment
	customers    map[string]model.Customer
	staff        map[string]model.StaffMember
	quotes       map[string]string
	quoteHistory []QuoteChange
	invoices     map[string]Invoice
	history      []model.StatusHistory
	production   []model.ProductionRecord
	audit        []model.AuditEntry
	events       []outbox.Event
}

func newState() *state {
	return &state{
		appointments: map[string]model.Appointment{},
		customers:    map[string]model.Customer{},
		staff:        map[string]model.StaffMember{},
		quotes:       map[string]string{},
		invoices:     map[string]Invoice{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.appointments {
		c.appointments[k] = copyAppointment(v)
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.quoteHistory = append([]QuoteChange(nil), s.quoteHistory...)
	c.history = append([]model.StatusHistory(nil), s.history...)
	c.production = append([]model.ProductionRecord(nil), s.production...)
	c.audit = append([]model.AuditEntry(nil), s.audit...)
	c.events = append([]outbox.Event(nil), s.events...)
	return c
}

func copyAppointment(a model.Appointment) model.Appointment {
	a.ServiceIDs = append([]string(nil), a.ServiceIDs...)
	if a.Transport != nil {
		t := *a.Transport
		a.Transport = &t
	}
	if a.DeletedAt != nil {
		d := *a.DeletedAt
		a.DeletedAt = &d
	}
	return a
}

// Store serializes transactions with a single mutex.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx lifecycle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) AddCustomer(c model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[c.ID] = c
}

func (s *Store) AddStaff(m model.StaffMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.staff[m.ID] = m
}

func (s *Store) AddQuote(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.quotes[id] = status
}

func (s *Store) AddInvoice(inv Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.invoices[inv.ID] = inv
}

// PutAppointment stores a as-is, bypassing every rule. Tests use it to seed past or
// deleted appointments.
func (s *Store) PutAppointment(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.appointments[a.ID] = copyAppointment(a)
}

func (s *Store) Appointment(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.appointments[id]
	return copyAppointment(a), ok
}

func (s *Store) Customer(id string) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.customers[id]
}

func (s *Store) Quote(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.quotes[id]
}

func (s *Store) QuoteHistory() []QuoteChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QuoteChange(nil), s.state.quoteHistory...)
}

func (s *Store) Invoices() []Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invoice, 0, len(s.state.invoices))
	for _, inv := range s.state.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) History(appointmentID string) []model.StatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StatusHistory
	for _, h := range s.state.history {
		if h.AppointmentID == appointmentID {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) Production() []model.ProductionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ProductionRecord(nil), s.state.production...)
}

func (s *Store) Audit() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEntry(nil), s.state.audit...)
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.state.events...)
}

type memTx struct {
	st *state
}

var _ lifecycle.Tx = (*memTx)(nil)

// LockSlot is a no-op: InTx already holds the store mutex.
func (t *memTx) LockSlot(context.Context, model.Category, time.Time) error {
	return nil
}

func (t *memTx) ExistsActiveAt(_ context.Context, category model.Category, startAt time.Time, excludeID string) (bool, error) {
	for _, a := range t.st.appointments {
		if a.ID == excludeID || a.DeletedAt != nil || a.Status == model.StatusCancelled {
			continue
		}
		if a.Category == category && a.StartAt.Equal(startAt) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return model.Customer{}, lifecycle.ErrNotFound
	}
	return c, nil
}

func (t *memTx) UpdateCustomerNoShow(_ context.Context, c model.Customer) error {
	cur, ok := t.st.customers[c.ID]
	if !ok {
		return lifecycle.ErrNotFound
	}
	cur.NoShowCount = c.NoShowCount
	cur.Blocked = c.Blocked
	cur.RequiresPrepayment = c.RequiresPrepayment
	t.st.customers[c.ID] = cur
	return nil
}

func (t *memTx) GetStaff(_ context.Context, id string) (model.StaffMember, error) {
	m, ok := t.st.staff[id]
	if !ok {
		return model.StaffMember{}, lifecycle.ErrNotFound
	}
	return m, nil
}

func (t *memTx) AdvanceQuote(_ context.Context, quoteID, status, changedBy string) error {
	current, ok := t.st.quotes[quoteID]
	if !ok {
		return lifecycle.ErrNotFound
	}
	if current == status {
		return nil
	}
	t.st.quotes[quoteID] = status
	t.st.quoteHistory = append(t.st.quoteHistory, QuoteChange{
		QuoteID:   quoteID,
		OldStatus: current,
		NewStatus: status,
		ChangedBy: changedBy,
	})
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a model.Appointment) error {
	t.st.appointments[a.ID] = copyAppointment(a)
	return nil
}

func (t *memTx) GetAppointment(_ context.Context, id string, includeDeleted bool) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok || (!includeDeleted && a.DeletedAt != nil) {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	return copyAppointment(a), nil
}

func (t *memTx) ListAppointments(_ context.Context, f lifecycle.ListFilter) ([]model.Appointment, error) {
	out := t.filter(func(a model.Appointment) bool {
		switch {
		case a.DeletedAt != nil:
			return false
		case f.CustomerID != "" && a.CustomerID != f.CustomerID:
			return false
		case f.Category != "" && a.Category != f.Category:
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case !f.From.IsZero() && a.StartAt.Before(f.From):
			return false
		case !f.To.IsZero() && !a.StartAt.Before(f.To):
			return false
		}
		return true
	})
	sortByStart(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) ListDeletedSince(_ context.Context, since time.Time) ([]model.Appointment, error) {
	out := t.filter(func(a model.Appointment) bool {
		return a.DeletedAt != nil && !a.DeletedAt.Before(since)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(*out[j].DeletedAt) })
	return out, nil
}

func (t *memTx) ListDeletedBefore(_ context.Context, before time.Time) ([]string, error) {
	out := t.filter(func(a model.Appointment) bool {
		return a.DeletedAt != nil && a.DeletedAt.Before(before)
	})
	ids := make([]string, 0, len(out))
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (t *memTx) ListOverdue(_ context.Context, statuses []model.Status, startedBefore time.Time, limit int) ([]model.Appointment, error) {
	out := t.filter(func(a model.Appointment) bool {
		if a.DeletedAt != nil || !a.StartAt.Before(startedBefore) {
			return false
		}
		for _, st := range statuses {
			if a.Status == st {
				return true
			}
		}
		return false
	})
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id string, status model.Status, at time.Time) error {
	return t.update(id, func(a *model.Appointment) {
		a.Status = status
		a.UpdatedAt = at
	})
}

func (t *memTx) UpdateLogisticsStatus(_ context.Context, id string, status model.LogisticsStatus, at time.Time) error {
	return t.update(id, func(a *model.Appointment) {
		a.LogisticsStatus = status
		a.UpdatedAt = at
	})
}

func (t *memTx) UpdateAssignment(_ context.Context, id, performerID, pickupDriverID, dropoffDriverID string, at time.Time) error {
	return t.update(id, func(a *model.Appointment) {
		a.PerformerID = performerID
		a.PickupDriverID = pickupDriverID
		a.DropoffDriverID = dropoffDriverID
		a.UpdatedAt = at
	})
}

func (t *memTx) UpdateSchedule(_ context.Context, id string, startAt time.Time, at time.Time) error {
	return t.update(id, func(a *model.Appointment) {
		a.StartAt = startAt
		a.UpdatedAt = at
	})
}

func (t *memTx) SetDeletedAt(_ context.Context, ids []string, at *time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		a, ok := t.st.appointments[id]
		if !ok {
			continue
		}
		if at == nil {
			a.DeletedAt = nil
		} else {
			d := *at
			a.DeletedAt = &d
		}
		t.st.appointments[id] = a
		n++
	}
	return n, nil
}

func (t *memTx) DeleteAppointments(_ context.Context, ids []string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	history := t.st.history[:0]
	for _, h := range t.st.history {
		if !drop[h.AppointmentID] {
			history = append(history, h)
		}
	}
	t.st.history = history

	for id, inv := range t.st.invoices {
		if drop[inv.AppointmentID] {
			delete(t.st.invoices, id)
		}
	}

	n := 0
	for _, id := range ids {
		if _, ok := t.st.appointments[id]; ok {
			delete(t.st.appointments, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertStatusHistory(_ context.Context, h model.StatusHistory) error {
	t.st.history = append(t.st.history, h)
	return nil
}

func (t *memTx) ListStatusHistory(_ context.Context, appointmentID string) ([]model.StatusHistory, error) {
	var out []model.StatusHistory
	for _, h := range t.st.history {
		if h.AppointmentID == appointmentID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memTx) HasProduction(_ context.Context, appointmentID string, kind model.ProductionKind, serviceID string) (bool, error) {
	for _, p := range t.st.production {
		if p.AppointmentID == appointmentID && p.Kind == kind && p.ServiceID == serviceID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertProduction(_ context.Context, p model.ProductionRecord) error {
	t.st.production = append(t.st.production, p)
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, e model.AuditEntry) error {
	t.st.audit = append(t.st.audit, e)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}

func (t *memTx) filter(keep func(model.Appointment) bool) []model.Appointment {
	var out []model.Appointment
	for _, a := range t.st.appointments {
		if keep(a) {
			out = append(out, copyAppointment(a))
		}
	}
	return out
}

func (t *memTx) update(id string, fn func(*model.Appointment)) error {
	a, ok := t.st.appointments[id]
	if !ok {
		return lifecycle.ErrNotFound
	}
	fn(&a)
	t.st.appointments[id] = a
	return nil
}

func sortByStart(out []model.Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
}
