package lifecycle

import (
	"context"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

// Store runs fn inside a single transaction. A nil return commits, anything else
// rolls back every write made through tx.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ListFilter narrows appointment listings. Zero values mean "any".
type ListFilter struct {
	CustomerID string
	Category   model.Category
	Status     model.Status
	From       time.Time
	To         time.Time
	Limit      int
}

// Tx is the set of persistence operations available inside a transaction.
// Lookups return ErrNotFound when the row does not exist.
type Tx interface {
	// LockSlot serializes check-and-insert for one (category, start) slot until the
	// transaction ends.
	LockSlot(ctx context.Context, category model.Category, startAt time.Time) error
	ExistsActiveAt(ctx context.Context, category model.Category, startAt time.Time, excludeID string) (bool, error)

	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	UpdateCustomerNoShow(ctx context.Context, c model.Customer) error
	GetStaff(ctx context.Context, id string) (model.StaffMember, error)
	AdvanceQuote(ctx context.Context, quoteID, status, changedBy string) error

	InsertAppointment(ctx context.Context, a model.Appointment) error
	// GetAppointment locks the row for the rest of the transaction.
	GetAppointment(ctx context.Context, id string, includeDeleted bool) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	ListDeletedSince(ctx context.Context, since time.Time) ([]model.Appointment, error)
	ListDeletedBefore(ctx context.Context, before time.Time) ([]string, error)
	ListOverdue(ctx context.Context, statuses []model.Status, startedBefore time.Time, limit int) ([]model.Appointment, error)

	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error
	UpdateLogisticsStatus(ctx context.Context, id string, status model.LogisticsStatus, at time.Time) error
	UpdateAssignment(ctx context.Context, id, performerID, pickupDriverID, dropoffDriverID string, at time.Time) error
	UpdateSchedule(ctx context.Context, id string, startAt time.Time, at time.Time) error
	// SetDeletedAt sets (or clears, when at is nil) the deletion timestamp.
	SetDeletedAt(ctx context.Context, ids []string, at *time.Time) (int, error)
	// DeleteAppointments removes the appointments together with their status
	// history, services, transport details and invoices.
	DeleteAppointments(ctx context.Context, ids []string) (int, error)

	InsertStatusHistory(ctx context.Context, h model.StatusHistory) error
	ListStatusHistory(ctx context.Context, appointmentID string) ([]model.StatusHistory, error)

	HasProduction(ctx context.Context, appointmentID string, kind model.ProductionKind, serviceID string) (bool, error)
	InsertProduction(ctx context.Context, p model.ProductionRecord) error

	InsertAudit(ctx context.Context, e model.AuditEntry) error
	InsertEvent(ctx context.Context, evt outbox.Event) error
}
