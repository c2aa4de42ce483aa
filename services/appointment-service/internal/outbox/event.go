package outbox

import (
	"encoding/json"
	"time"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AppointmentCreated         = "appointment.created.v1"
	AppointmentStatusChanged   = "appointment.status_changed.v1"
	AppointmentLogisticsChange = "appointment.logistics_status_changed.v1"
	AppointmentRescheduled     = "appointment.rescheduled.v1"
	AppointmentDeleted         = "appointment.deleted.v1"
	AppointmentRestored        = "appointment.restored.v1"
	AppointmentPurged          = "appointment.purged.v1"
	AppointmentNoShow          = "appointment.no_show.v1"
)

// NewAppointmentEvent marshals payload and stamps it with occurred_at.
func NewAppointmentEvent(eventType, appointmentID string, payload map[string]any, at time.Time) (Event, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["appointment_id"] = appointmentID
	body["occurred_at"] = at.UTC().Format(time.RFC3339)

	raw, err := json.Marshal(body)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
