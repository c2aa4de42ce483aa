package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppointmentEvent(t *testing.T) {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	evt, err := NewAppointmentEvent(AppointmentStatusChanged, "appt-1", map[string]any{
		"old_status": "PENDENTE",
		"new_status": "CONFIRMADO",
	}, at)
	require.NoError(t, err)

	assert.Equal(t, "appointment", evt.AggregateType)
	assert.Equal(t, "appt-1", evt.AggregateID)
	assert.Equal(t, AppointmentStatusChanged, evt.EventType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "appt-1", payload["appointment_id"])
	assert.Equal(t, "CONFIRMADO", payload["new_status"])
	assert.Equal(t, "2026-05-04T12:00:00Z", payload["occurred_at"])
}

func TestToMessage(t *testing.T) {
	msg := toMessage(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   AppointmentCreated,
		Payload:     []byte(`{}`),
	})
	assert.Equal(t, AppointmentCreated, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	assert.Equal(t, "evt-1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
	assert.Equal(t, AppointmentCreated, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType))
}
