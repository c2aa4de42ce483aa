package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/auth"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/httpx"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/noshow"
	"github.com/go-playground/validator/v10"
)

// SweepRunner triggers the maintenance job outside its schedule.
type SweepRunner interface {
	RunOnce(ctx context.Context) (noshow.Report, error)
}

type AppointmentHandler struct {
	svc      *lifecycle.Service
	sweeper  SweepRunner
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAppointmentHandler(svc *lifecycle.Service, sweeper SweepRunner, logger *slog.Logger) *AppointmentHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &AppointmentHandler{svc: svc, sweeper: sweeper, logger: logger, validate: v}
}

// Register mounts the appointment API on mux. Every route requires a bearer token;
// mutations other than create and reschedule also require a staff principal.
func (h *AppointmentHandler) Register(mux *http.ServeMux, secret string) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireAuth(secret, fn)
	}
	staffOnly := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireAuth(secret, auth.RequireStaff(fn))
	}

	mux.Handle("/api/v1/appointments", authed(h.collection))
	mux.Handle("/api/v1/appointments/get", authed(h.Get))
	mux.Handle("/api/v1/appointments/history", authed(h.History))
	mux.Handle("/api/v1/appointments/slots", authed(h.Slots))
	mux.Handle("/api/v1/appointments/reschedule", authed(h.Reschedule))
	mux.Handle("/api/v1/appointments/status", staffOnly(h.UpdateStatus))
	mux.Handle("/api/v1/appointments/logistics-status", staffOnly(h.UpdateLogisticsStatus))
	mux.Handle("/api/v1/appointments/assign", staffOnly(h.Assign))
	mux.Handle("/api/v1/appointments/delete", staffOnly(h.SoftDelete))
	mux.Handle("/api/v1/appointments/restore", staffOnly(h.Restore))
	mux.Handle("/api/v1/appointments/purge", staffOnly(h.PermanentDelete))
	mux.Handle("/api/v1/appointments/trash", staffOnly(h.Trash))
	mux.Handle("/api/v1/admin/no-show-sweep", staffOnly(h.RunSweep))
}

func (h *AppointmentHandler) collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type transportRequest struct {
	Origin      string `json:"origin" validate:"max=300"`
	Destination string `json:"destination" validate:"max=300"`
	Period      string `json:"period" validate:"omitempty,oneof=MANHA TARDE NOITE"`
}

type createRequest struct {
	CustomerID       string            `json:"customer_id"`
	PetID            string            `json:"pet_id" validate:"required"`
	ServiceIDs       []string          `json:"service_ids" validate:"max=20,dive,required"`
	StartAt          string            `json:"start_at" validate:"required"`
	Category         string            `json:"category" validate:"required,oneof=SPA LOGISTICA"`
	Transport        *transportRequest `json:"transport"`
	PerformerID      string            `json:"performer_id"`
	PickupDriverID   string            `json:"pickup_driver_id"`
	DropoffDriverID  string            `json:"dropoff_driver_id"`
	QuoteID          string            `json:"quote_id"`
	OverridePastDate bool              `json:"override_past_date"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Status        string `json:"status" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
	Force         bool   `json:"force"`
}

type logisticsRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Status        string `json:"status" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

type assignRequest struct {
	AppointmentID   string                 `json:"appointment_id" validate:"required"`
	PerformerID     model.Optional[string] `json:"performer_id"`
	PickupDriverID  model.Optional[string] `json:"pickup_driver_id"`
	DropoffDriverID model.Optional[string] `json:"dropoff_driver_id"`
}

type rescheduleRequest struct {
	AppointmentID    string `json:"appointment_id" validate:"required"`
	StartAt          string `json:"start_at" validate:"required"`
	Reason           string `json:"reason" validate:"max=500"`
	OverridePastDate bool   `json:"override_past_date"`
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

type countResponse struct {
	Count int `json:"count"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CustomerID == "" && !caller.Staff {
		req.CustomerID = caller.CustomerID
	}
	startAt, ok := parseTime(w, "start_at", req.StartAt)
	if !ok {
		return
	}

	in := lifecycle.CreateInput{
		CustomerID:       req.CustomerID,
		PetID:            req.PetID,
		ServiceIDs:       req.ServiceIDs,
		StartAt:          startAt,
		Category:         model.Category(req.Category),
		PerformerID:      req.PerformerID,
		PickupDriverID:   req.PickupDriverID,
		DropoffDriverID:  req.DropoffDriverID,
		QuoteID:          req.QuoteID,
		OverridePastDate: req.OverridePastDate,
	}
	if req.Transport != nil {
		in.Transport = &lifecycle.TransportInput{
			Origin:      req.Transport.Origin,
			Destination: req.Transport.Destination,
			Period:      req.Transport.Period,
		}
	}

	appt, err := h.svc.Create(r.Context(), caller, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	appt, err := h.svc.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := lifecycle.ListFilter{
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Category:   model.Category(strings.TrimSpace(q.Get("category"))),
		Status:     model.Status(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, ok := parseTime(w, "from", raw)
		if !ok {
			return
		}
		f.From = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, ok := parseTime(w, "to", raw)
		if !ok {
			return
		}
		f.To = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	appts, err := h.svc.List(r.Context(), callerFrom(r), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponses(appts))
}

func (h *AppointmentHandler) History(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	entries, err := h.svc.History(r.Context(), callerFrom(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyResponse{
			OldStatus: string(e.OldStatus),
			NewStatus: string(e.NewStatus),
			Reason:    e.Reason,
			ChangedBy: e.ChangedBy,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if category == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "category and date are required")
		return
	}
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	starts, err := h.svc.Slots(r.Context(), callerFrom(r), model.Category(category), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := make([]string, 0, len(starts))
	for _, s := range starts {
		resp = append(resp, s.UTC().Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	appt, err := h.svc.UpdateStatus(r.Context(), callerFrom(r), req.AppointmentID, lifecycle.UpdateStatusInput{
		Status: model.Status(req.Status),
		Reason: req.Reason,
		Force:  req.Force,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) UpdateLogisticsStatus(w http.ResponseWriter, r *http.Request) {
	var req logisticsRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	appt, err := h.svc.UpdateLogisticsStatus(r.Context(), callerFrom(r), req.AppointmentID, lifecycle.UpdateLogisticsInput{
		Status: model.LogisticsStatus(req.Status),
		Reason: req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	appt, err := h.svc.Assign(r.Context(), callerFrom(r), req.AppointmentID, lifecycle.AssignInput{
		PerformerID:     req.PerformerID,
		PickupDriverID:  req.PickupDriverID,
		DropoffDriverID: req.DropoffDriverID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	startAt, ok := parseTime(w, "start_at", req.StartAt)
	if !ok {
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), callerFrom(r), req.AppointmentID, lifecycle.RescheduleInput{
		StartAt:          startAt,
		Reason:           req.Reason,
		OverridePastDate: req.OverridePastDate,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.svc.SoftDelete)
}

func (h *AppointmentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.svc.Restore)
}

func (h *AppointmentHandler) PermanentDelete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.svc.PermanentDelete)
}

func (h *AppointmentHandler) bulk(w http.ResponseWriter, r *http.Request, op func(context.Context, lifecycle.Caller, []string) (int, error)) {
	var req idsRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	n, err := op(r.Context(), callerFrom(r), req.IDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *AppointmentHandler) Trash(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	appts, err := h.svc.ListTrash(r.Context(), callerFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponses(appts))
}

func (h *AppointmentHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	rep, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		// Partial results are still reported; the failures are in the log.
		h.logger.Error("manual sweep failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteJSON(w, http.StatusInternalServerError, struct {
			noshow.Report
			Error string `json:"error"`
		}{rep, "falha ao processar parte dos agendamentos"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

func (h *AppointmentHandler) decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireMethod(w, r, http.MethodPost) {
		return false
	}
	return h.decode(w, r, dst)
}

func (h *AppointmentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "dados inválidos"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return "campos inválidos: " + strings.Join(fields, ", ")
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func parseTime(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid "+field)
		return time.Time{}, false
	}
	return t, true
}

func callerFrom(r *http.Request) lifecycle.Caller {
	p, _ := auth.PrincipalFromContext(r.Context())
	return lifecycle.Caller{UserID: p.UserID, Staff: p.IsStaff(), CustomerID: p.CustomerID}
}

func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var warning *lifecycle.PastDateWarning
	if errors.As(err, &warning) {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Error: warning.Error(),
			Code:  warning.Code(),
			Date:  warning.StartAt.Format(time.RFC3339),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lifecycle.ErrInvalidInput),
		errors.Is(err, lifecycle.ErrPastDate),
		errors.Is(err, lifecycle.ErrLeadTime),
		errors.Is(err, lifecycle.ErrDriversRequired),
		errors.Is(err, lifecycle.ErrNoTransport),
		errors.Is(err, lifecycle.ErrRetentionExpired):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrCustomerBlocked), errors.Is(err, lifecycle.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrSlotTaken), errors.Is(err, lifecycle.ErrInvalidTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("appointment request failed",
			"err", err,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteError(w, status, "erro interno")
		return
	}
	httpx.WriteError(w, status, err.Error())
}
