package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rental/internal/events"
	"rental/internal/handler"
	"rental/internal/middleware"
	"rental/internal/repository/memory"
	"rental/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	gateway *service.SimulatedGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewBookingRepository()
	vehicles := memory.NewVehicleRepository()
	users := memory.NewUserRepository()
	SeedMemory(vehicles, users)

	engine := service.NewLifecycleEngine(store, vehicles,
		service.WithUserDirectory(users),
		service.WithLogger(log),
	)
	gateway := service.NewSimulatedGateway()
	queries := service.NewQueryService(store, nil, log)
	notifications := service.NewNotificationService(events.NopPublisher{}, log)
	bookings := service.NewBookingService(store, engine, queries, gateway, notifications, nil, nil, log)

	router := NewRouter(RouterDeps{
		BookingHandler:   handler.NewBookingHandler(bookings),
		DirectoryHandler: handler.NewDirectoryHandler(users, vehicles),
		Logger:           log,
	})
	return &testServer{router: router, gateway: gateway}
}

func (s *testServer) do(t *testing.T, method, path, actorID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(middleware.ActorIDHeader, actorID)
		req.Header.Set(middleware.ActorRoleHeader, role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (s *testServer) createBooking(t *testing.T, distance float64) handler.BookingResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/bookings", "cust-1", "customer", handler.CreateBookingBody{
		CarID:          "car-sedan",
		DriverID:       "drv-1",
		PickupLocation: "12 Harbour Rd",
		PickupTime:     "2025-06-01 09:00",
		DistanceKm:     &distance,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[handler.BookingResponse](t, w)
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRouter_RequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/bookings", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRouter_BookingLifecycle(t *testing.T) {
	s := newTestServer(t)

	created := s.createBooking(t, 4.333)
	if created.Status != "REQUESTED" || created.Version != 0 {
		t.Fatalf("unexpected booking: %+v", created)
	}
	if created.TotalFee != 10.83 {
		t.Errorf("expected fee rounded to 10.83, got %v", created.TotalFee)
	}

	path := "/v1/bookings/" + created.ID
	v0 := int64(0)
	v1 := int64(1)
	v2 := int64(2)

	w := s.do(t, http.MethodPost, path+"/confirm", "drv-1", "driver", handler.TransitionBody{ExpectedVersion: &v0})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// A second confirm from the stale version conflicts and reports the current version.
	w = s.do(t, http.MethodPost, path+"/confirm", "drv-1", "driver", handler.TransitionBody{ExpectedVersion: &v0})
	if w.Code != http.StatusConflict {
		t.Fatalf("stale confirm: expected 409, got %d", w.Code)
	}
	errResp := decode[handler.ErrorResponse](t, w)
	if errResp.Code != "VERSION_CONFLICT" || errResp.Version == nil || *errResp.Version != 1 {
		t.Errorf("unexpected conflict body: %+v", errResp)
	}

	w = s.do(t, http.MethodPost, path+"/pay", "cust-1", "customer", handler.TransitionBody{ExpectedVersion: &v1})
	if w.Code != http.StatusOK {
		t.Fatalf("pay: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := s.gateway.Charged("booking:" + created.ID + ":v1"); !ok {
		t.Error("expected the gateway to be charged")
	}

	w = s.do(t, http.MethodPost, path+"/complete", "drv-1", "driver", handler.TransitionBody{ExpectedVersion: &v2})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	done := decode[handler.BookingResponse](t, w)
	if done.Status != "COMPLETED" || done.PaymentStatus != "PAID" || done.CompletedAt == "" {
		t.Errorf("unexpected completed booking: %+v", done)
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, 2)
	path := "/v1/bookings/" + b.ID
	v0 := int64(0)

	tests := []struct {
		name     string
		method   string
		path     string
		actorID  string
		role     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown booking", http.MethodGet, "/v1/bookings/missing", "admin-1", "admin", nil, http.StatusNotFound, "NOT_FOUND"},
		{"complete before confirm", http.MethodPost, path + "/complete", "drv-1", "driver", handler.TransitionBody{ExpectedVersion: &v0}, http.StatusConflict, "ILLEGAL_TRANSITION"},
		{"customer cannot confirm", http.MethodPost, path + "/confirm", "cust-1", "customer", handler.TransitionBody{ExpectedVersion: &v0}, http.StatusForbidden, "UNAUTHORIZED"},
		{"other customer cannot read", http.MethodGet, path, "cust-2", "customer", nil, http.StatusForbidden, "UNAUTHORIZED"},
		{"missing version", http.MethodPost, path + "/confirm", "drv-1", "driver", handler.TransitionBody{}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad unpaid flag", http.MethodGet, "/v1/customers/cust-1/bookings?unpaid=maybe", "cust-1", "customer", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown status filter", http.MethodGet, "/v1/bookings?status=LOST", "admin-1", "admin", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"non-admin delete", http.MethodDelete, path, "cust-1", "customer", nil, http.StatusForbidden, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.actorID, tt.role, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := decode[handler.ErrorResponse](t, w); got.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, got.Code)
			}
		})
	}
}

func TestRouter_CreateRequiresDistance(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{
		"car_id":          "car-sedan",
		"driver_id":       "drv-1",
		"pickup_location": "12 Harbour Rd",
		"pickup_time":     "2025-06-01 09:00",
	}

	w := s.do(t, http.MethodPost, "/v1/bookings", "cust-1", "customer", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[handler.ErrorResponse](t, w); resp.Code != "INVALID_ARGUMENT" {
		t.Errorf("expected INVALID_ARGUMENT, got %+v", resp)
	}

	// An explicit zero is a valid trip.
	if b := s.createBooking(t, 0); b.TotalFee != 0 {
		t.Errorf("expected zero fee, got %v", b.TotalFee)
	}
}

func TestRouter_EditTripAndCancel(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, 2)
	path := "/v1/bookings/" + b.ID

	v0 := int64(0)
	distance := 6.0
	w := s.do(t, http.MethodPatch, path+"/trip", "cust-1", "customer", handler.EditTripBody{ExpectedVersion: &v0, DistanceKm: &distance})
	if w.Code != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	edited := decode[handler.BookingResponse](t, w)
	if edited.TotalFee != 15 || edited.Version != 1 {
		t.Errorf("unexpected edited booking: %+v", edited)
	}

	v1 := int64(1)
	w = s.do(t, http.MethodPost, path+"/cancel", "cust-1", "customer", handler.CancelBookingBody{ExpectedVersion: &v1, Reason: "plans changed"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cancelled := decode[handler.BookingResponse](t, w)
	if cancelled.Status != "CANCELLED" || cancelled.CancelReason != "plans changed" {
		t.Errorf("unexpected cancelled booking: %+v", cancelled)
	}
}

func TestRouter_ListsAndDirectory(t *testing.T) {
	s := newTestServer(t)
	s.createBooking(t, 1)
	s.createBooking(t, 2)

	w := s.do(t, http.MethodGet, "/v1/customers/cust-1/bookings?status=REQUESTED", "cust-1", "customer", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("customer list: expected 200, got %d", w.Code)
	}
	if got := decode[[]handler.BookingResponse](t, w); len(got) != 2 {
		t.Errorf("expected 2 bookings, got %d", len(got))
	}

	w = s.do(t, http.MethodGet, "/v1/customers/cust-1/bookings/active", "cust-1", "customer", nil)
	if got := decode[[]handler.BookingResponse](t, w); len(got) != 0 {
		t.Errorf("expected no active bookings before confirmation, got %d", len(got))
	}

	w = s.do(t, http.MethodGet, "/v1/drivers/drv-1/bookings", "drv-1", "driver", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("driver list: expected 200, got %d", w.Code)
	}
	grouped := decode[handler.DriverBookingsResponse](t, w)
	if len(grouped.AwaitingConfirmation) != 2 || grouped.Active == nil || len(grouped.History) != 0 {
		t.Errorf("unexpected driver projection: %+v", grouped)
	}

	w = s.do(t, http.MethodGet, "/v1/drivers", "cust-1", "customer", nil)
	if got := decode[[]handler.UserResponse](t, w); len(got) != 2 || got[0].ID != "drv-1" {
		t.Errorf("unexpected drivers: %+v", got)
	}

	w = s.do(t, http.MethodGet, "/v1/vehicles/car-suv", "cust-1", "customer", nil)
	if got := decode[handler.VehicleResponse](t, w); got.RatePerKm != 3.2 {
		t.Errorf("unexpected vehicle: %+v", got)
	}

	w = s.do(t, http.MethodGet, "/v1/vehicles/car-none", "cust-1", "customer", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown vehicle, got %d", w.Code)
	}
}

func TestRouter_AdminDelete(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, 2)

	w := s.do(t, http.MethodDelete, "/v1/bookings/"+b.ID, "admin-1", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/bookings/"+b.ID, "admin-1", "admin", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}
