package model

import "time"

type Category string

const (
	CategorySpa       Category = "SPA"
	CategoryLogistics Category = "LOGISTICA"
)

func (c Category) Valid() bool {
	return c == CategorySpa || c == CategoryLogistics
}

type LogisticsStatus string

const (
	LogisticsPending               LogisticsStatus = "PENDING"
	LogisticsExecuted              LogisticsStatus = "EXECUTED"
	LogisticsCanceledWithTravel    LogisticsStatus = "CANCELED_WITH_TRAVEL"
	LogisticsCanceledWithoutTravel LogisticsStatus = "CANCELED_WITHOUT_TRAVEL"
	LogisticsReschedule            LogisticsStatus = "RESCHEDULE"
	LogisticsDelayed               LogisticsStatus = "DELAYED"
)

func (s LogisticsStatus) Valid() bool {
	switch s {
	case LogisticsPending, LogisticsExecuted, LogisticsCanceledWithTravel,
		LogisticsCanceledWithoutTravel, LogisticsReschedule, LogisticsDelayed:
		return true
	}
	return false
}

// TransportDetails describes the pickup/dropoff leg attached to an appointment.
type TransportDetails struct {
	Origin      string
	Destination string
	// Period is the requested time of day (MANHA, TARDE, NOITE).
	Period string
}

type Appointment struct {
	ID              string
	CustomerID      string
	PetID           string
	StartAt         time.Time
	Category        Category
	Status          Status
	LogisticsStatus LogisticsStatus
	PerformerID     string
	PickupDriverID  string
	DropoffDriverID string
	ServiceIDs      []string
	Transport       *TransportDetails
	QuoteID         string
	CreatedByStaff  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// HasLogistics reports whether the appointment involves a transport leg: every
// LOGISTICA appointment, and SPA appointments booked with transport.
func (a Appointment) HasLogistics() bool {
	return ImpliesLogistics(a.Category, a.Transport != nil)
}

func ImpliesLogistics(c Category, withTransport bool) bool {
	return c == CategoryLogistics || (c == CategorySpa && withTransport)
}

// PickupResponsible is the staff member credited for the pickup leg.
func (a Appointment) PickupResponsible() string {
	if a.PickupDriverID != "" {
		return a.PickupDriverID
	}
	return a.PerformerID
}

// DropoffResponsible is the staff member credited for the dropoff leg.
func (a Appointment) DropoffResponsible() string {
	if a.DropoffDriverID != "" {
		return a.DropoffDriverID
	}
	return a.PerformerID
}

type Customer struct {
	ID                 string
	Name               string
	Blocked            bool
	NoShowCount        int
	RequiresPrepayment bool
}

type StaffMember struct {
	ID     string
	Name   string
	Active bool
}

const QuoteStatusScheduled = "AGENDADO"

type StatusHistory struct {
	ID            string
	AppointmentID string
	OldStatus     Status
	NewStatus     Status
	Reason        string
	ChangedBy     string
	CreatedAt     time.Time
}

type ProductionKind string

const (
	ProductionService ProductionKind = "SERVICE"
	ProductionPickup  ProductionKind = "PICKUP"
	ProductionDropoff ProductionKind = "DROPOFF"
)

// ProductionRecord credits a staff member for executed work.
type ProductionRecord struct {
	ID            string
	StaffID       string
	AppointmentID string
	Kind          ProductionKind
	// ServiceID is empty for transport legs and for the generic record of an
	// appointment without linked services.
	ServiceID string
	Reference string
	CreatedAt time.Time
}

type AuditEntry struct {
	Action        string
	ActorID       string
	AppointmentID string
	Metadata      map[string]any
	CreatedAt     time.Time
}
