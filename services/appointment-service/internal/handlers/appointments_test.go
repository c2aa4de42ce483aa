package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/auth"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/httpx"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/noshow"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type stubSweeper struct {
	rep noshow.Report
	err error
}

func (s stubSweeper) RunOnce(context.Context) (noshow.Report, error) {
	return s.rep, s.err
}

type testServer struct {
	t     *testing.T
	mux   *http.ServeMux
	store *memstore.Store
}

func newTestServer(t *testing.T, sweeper SweepRunner) *testServer {
	t.Helper()
	store := memstore.New()
	store.AddCustomer(model.Customer{ID: "c1", Name: "Ana"})
	store.AddCustomer(model.Customer{ID: "c2", Name: "Bruno", Blocked: true})
	store.AddStaff(model.StaffMember{ID: "s1", Name: "Groomer", Active: true})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := lifecycle.NewService(store, logger, lifecycle.WithClock(func() time.Time { return testNow }))
	if sweeper == nil {
		sweeper = stubSweeper{}
	}
	mux := http.NewServeMux()
	NewAppointmentHandler(svc, sweeper, logger).Register(mux, testSecret)
	return &testServer{t: t, mux: mux, store: store}
}

func token(t *testing.T, claims auth.Claims) string {
	t.Helper()
	tok, err := auth.SignHS256(claims, testSecret)
	require.NoError(t, err)
	return tok
}

func staffToken(t *testing.T) string {
	return token(t, auth.Claims{Sub: "user-staff", Role: auth.RoleStaff})
}

func customerToken(t *testing.T, customerID string) string {
	return token(t, auth.Claims{Sub: "user-" + customerID, Role: auth.RoleCustomer, CustomerID: customerID})
}

func (s *testServer) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestCreateRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(http.MethodPost, "/api/v1/appointments", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateAsCustomer(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(http.MethodPost, "/api/v1/appointments", customerToken(t, "c1"), map[string]any{
		"pet_id":      "pet-1",
		"service_ids": []string{"bath"},
		"start_at":    testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"category":    "SPA",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := decodeBody[appointmentResponse](t, rr)
	assert.Equal(t, "c1", resp.CustomerID)
	assert.Equal(t, string(model.StatusPending), resp.Status)
	assert.Equal(t, []string{"bath"}, resp.ServiceIDs)
	assert.Nil(t, resp.DeletedAt)
}

func TestTokenWithoutCustomerIDCannotList(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(http.MethodPost, "/api/v1/appointments", customerToken(t, "c1"), map[string]any{
		"pet_id":   "pet-1",
		"start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"category": "SPA",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[appointmentResponse](t, rr)

	for _, claims := range []auth.Claims{
		{Sub: "user-x", Role: auth.RoleCustomer},
		{Sub: "user-y"},
	} {
		tok := token(t, claims)
		rr = s.do(http.MethodGet, "/api/v1/appointments", tok, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())

		rr = s.do(http.MethodGet, "/api/v1/appointments/get?appointment_id="+created.AppointmentID, tok, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
	}
}

func TestCreateValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)
	tok := customerToken(t, "c1")

	rr := s.do(http.MethodPost, "/api/v1/appointments", tok, map[string]any{
		"pet_id": "pet-1", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339), "category": "HOTEL",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[httpx.ErrorBody](t, rr).Error, "category")

	rr = s.do(http.MethodPost, "/api/v1/appointments", tok, map[string]any{
		"pet_id": "pet-1", "start_at": "amanhã", "category": "SPA",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/appointments", tok, map[string]any{"pet_id": "pet-1", "surprise": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	start := testNow.Add(24 * time.Hour).Format(time.RFC3339)

	cases := []struct {
		name   string
		tok    string
		body   map[string]any
		status int
	}{
		{
			name:   "lead time",
			tok:    customerToken(t, "c1"),
			body:   map[string]any{"pet_id": "p", "start_at": testNow.Add(time.Hour).Format(time.RFC3339), "category": "SPA"},
			status: http.StatusBadRequest,
		},
		{
			name:   "blocked customer",
			tok:    customerToken(t, "c2"),
			body:   map[string]any{"pet_id": "p", "start_at": start, "category": "SPA"},
			status: http.StatusForbidden,
		},
		{
			name:   "drivers required",
			tok:    staffToken(t),
			body:   map[string]any{"customer_id": "c1", "pet_id": "p", "start_at": start, "category": "LOGISTICA"},
			status: http.StatusBadRequest,
		},
		{
			name:   "someone else's booking",
			tok:    customerToken(t, "c1"),
			body:   map[string]any{"customer_id": "c2", "pet_id": "p", "start_at": start, "category": "SPA"},
			status: http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/api/v1/appointments", tc.tok, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestCreateDoubleBookingConflict(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.AddCustomer(model.Customer{ID: "c3", Name: "Carla"})
	body := map[string]any{"pet_id": "p", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339), "category": "SPA"}

	rr := s.do(http.MethodPost, "/api/v1/appointments", customerToken(t, "c1"), body)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/appointments", customerToken(t, "c3"), body)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreatePastDateWarning(t *testing.T) {
	s := newTestServer(t, nil)
	past := testNow.Add(-2 * time.Hour)
	body := map[string]any{"customer_id": "c1", "pet_id": "p", "start_at": past.Format(time.RFC3339), "category": "SPA"}

	rr := s.do(http.MethodPost, "/api/v1/appointments", staffToken(t), body)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errBody := decodeBody[httpx.ErrorBody](t, rr)
	assert.Equal(t, lifecycle.PastDateWarningCode, errBody.Code)
	assert.Equal(t, past.Format(time.RFC3339), errBody.Date)

	body["override_past_date"] = true
	rr = s.do(http.MethodPost, "/api/v1/appointments", staffToken(t), body)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestStatusRoutesRequireStaff(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(http.MethodPost, "/api/v1/appointments/status", customerToken(t, "c1"), map[string]any{
		"appointment_id": "x", "status": "CANCELADO",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/admin/no-show-sweep", customerToken(t, "c1"), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatusFlowAndHistory(t *testing.T) {
	s := newTestServer(t, nil)
	staff := staffToken(t)
	rr := s.do(http.MethodPost, "/api/v1/appointments", staff, map[string]any{
		"customer_id": "c1", "pet_id": "p", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"category": "SPA", "performer_id": "s1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decodeBody[appointmentResponse](t, rr).AppointmentID

	rr = s.do(http.MethodPost, "/api/v1/appointments/status", staff, map[string]any{"appointment_id": id, "status": "FINALIZADO"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(http.MethodPost, "/api/v1/appointments/status", staff, map[string]any{"appointment_id": id, "status": "PENDENTE"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/appointments/status", staff, map[string]any{"appointment_id": "missing", "status": "CANCELADO"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/appointments/history?appointment_id="+id, staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[[]historyResponse](t, rr)
	require.Len(t, history, 2)
	assert.Equal(t, "FINALIZADO", history[1].NewStatus)

	assert.Len(t, s.store.Production(), 1)
}

func TestLogisticsStatusRoute(t *testing.T) {
	s := newTestServer(t, nil)
	staff := staffToken(t)
	rr := s.do(http.MethodPost, "/api/v1/appointments", staff, map[string]any{
		"customer_id": "c1", "pet_id": "p", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"category": "LOGISTICA", "pickup_driver_id": "s1", "dropoff_driver_id": "s1",
		"transport": map[string]any{"origin": "Rua A", "destination": "Loja", "period": "MANHA"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decodeBody[appointmentResponse](t, rr).AppointmentID

	rr = s.do(http.MethodPost, "/api/v1/appointments/logistics-status", staff, map[string]any{"appointment_id": id, "status": "EXECUTED"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[appointmentResponse](t, rr)
	assert.Equal(t, "FINALIZADO", resp.Status)
	assert.Equal(t, "EXECUTED", resp.LogisticsStatus)
}

func TestAssignClearsWithNull(t *testing.T) {
	s := newTestServer(t, nil)
	staff := staffToken(t)
	rr := s.do(http.MethodPost, "/api/v1/appointments", staff, map[string]any{
		"customer_id": "c1", "pet_id": "p", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"category": "SPA", "performer_id": "s1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decodeBody[appointmentResponse](t, rr).AppointmentID

	rr = s.do(http.MethodPost, "/api/v1/appointments/assign", staff, map[string]any{"appointment_id": id, "performer_id": nil})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, decodeBody[appointmentResponse](t, rr).PerformerID)
}

func TestTrashLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	staff := staffToken(t)
	rr := s.do(http.MethodPost, "/api/v1/appointments", staff, map[string]any{
		"customer_id": "c1", "pet_id": "p", "start_at": testNow.Add(24 * time.Hour).Format(time.RFC3339), "category": "SPA",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decodeBody[appointmentResponse](t, rr).AppointmentID

	rr = s.do(http.MethodPost, "/api/v1/appointments/delete", staff, map[string]any{"ids": []string{id}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[countResponse](t, rr).Count)

	rr = s.do(http.MethodGet, "/api/v1/appointments", staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[[]appointmentResponse](t, rr))

	rr = s.do(http.MethodGet, "/api/v1/appointments/trash", staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	trash := decodeBody[[]appointmentResponse](t, rr)
	require.Len(t, trash, 1)
	require.NotNil(t, trash[0].DeletedAt)

	rr = s.do(http.MethodPost, "/api/v1/appointments/restore", staff, map[string]any{"ids": []string{id}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/appointments/get?appointment_id="+id, staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decodeBody[appointmentResponse](t, rr).DeletedAt)

	rr = s.do(http.MethodPost, "/api/v1/appointments/purge", staff, map[string]any{"ids": []string{id}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/appointments/get?appointment_id="+id, staff, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodPost, "/api/v1/appointments/delete", staff, map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSlotsRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(http.MethodGet, "/api/v1/appointments/slots?category=SPA&date=2026-06-02", customerToken(t, "c1"), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	slots := decodeBody[[]string](t, rr)
	require.NotEmpty(t, slots)
	assert.Equal(t, "2026-06-02T08:00:00Z", slots[0])

	rr = s.do(http.MethodGet, "/api/v1/appointments/slots?category=SPA&date=02/06/2026", customerToken(t, "c1"), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunSweep(t *testing.T) {
	rep := noshow.Report{SweepResult: lifecycle.SweepResult{Marked: 2, Blocked: 1}, Purged: 3}
	s := newTestServer(t, stubSweeper{rep: rep})

	rr := s.do(http.MethodPost, "/api/v1/admin/no-show-sweep", staffToken(t), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[map[string]int](t, rr)
	assert.Equal(t, map[string]int{"marked": 2, "blocked": 1, "purged": 3}, got)

	s = newTestServer(t, stubSweeper{rep: rep, err: errors.New("db down")})
	rr = s.do(http.MethodPost, "/api/v1/admin/no-show-sweep", staffToken(t), nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = s.do(http.MethodGet, "/api/v1/admin/no-show-sweep", staffToken(t), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
