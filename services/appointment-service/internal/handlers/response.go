package handlers

import (
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
)

type transportResponse struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Period      string `json:"period,omitempty"`
}

type appointmentResponse struct {
	AppointmentID   string             `json:"appointment_id"`
	CustomerID      string             `json:"customer_id"`
	PetID           string             `json:"pet_id"`
	StartAt         string             `json:"start_at"`
	Category        string             `json:"category"`
	Status          string             `json:"status"`
	LogisticsStatus string             `json:"logistics_status,omitempty"`
	PerformerID     string             `json:"performer_id,omitempty"`
	PickupDriverID  string             `json:"pickup_driver_id,omitempty"`
	DropoffDriverID string             `json:"dropoff_driver_id,omitempty"`
	ServiceIDs      []string           `json:"service_ids"`
	Transport       *transportResponse `json:"transport,omitempty"`
	QuoteID         string             `json:"quote_id,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
	DeletedAt       *string            `json:"deleted_at"`
}

type historyResponse struct {
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
	ChangedBy string `json:"changed_by"`
	CreatedAt string `json:"created_at"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:   a.ID,
		CustomerID:      a.CustomerID,
		PetID:           a.PetID,
		StartAt:         a.StartAt.UTC().Format(time.RFC3339),
		Category:        string(a.Category),
		Status:          string(a.Status),
		LogisticsStatus: string(a.LogisticsStatus),
		PerformerID:     a.PerformerID,
		PickupDriverID:  a.PickupDriverID,
		DropoffDriverID: a.DropoffDriverID,
		ServiceIDs:      a.ServiceIDs,
		QuoteID:         a.QuoteID,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.ServiceIDs == nil {
		resp.ServiceIDs = []string{}
	}
	if a.Transport != nil {
		resp.Transport = &transportResponse{
			Origin:      a.Transport.Origin,
			Destination: a.Transport.Destination,
			Period:      a.Transport.Period,
		}
	}
	if a.DeletedAt != nil {
		s := a.DeletedAt.UTC().Format(time.RFC3339)
		resp.DeletedAt = &s
	}
	return resp
}

func toResponses(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a))
	}
	return out
}
