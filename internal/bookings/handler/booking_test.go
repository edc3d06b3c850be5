package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "exambook/pkg/errors"
	httputil "exambook/pkg/http"
	"exambook/pkg/logger"
	"exambook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Mock service for testing
type mockBookingService struct {
	createFunc   func(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error)
	cancelFunc   func(ctx context.Context, id string) (*model.Booking, error)
	capacityFunc func(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error)
	listFunc     func(ctx context.Context, sessionID string) ([]*model.Booking, error)
}

func (m *mockBookingService) Create(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, intent)
	}
	return &model.BookingResult{Booking: &model.Booking{ID: "b1"}}, nil
}

func (m *mockBookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, id)
	}
	return &model.Booking{ID: id, Status: model.StatusCancelled}, nil
}

func (m *mockBookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return nil, apperrors.NotFoundWithID("Booking", id)
}

func (m *mockBookingService) ListBySession(ctx context.Context, sessionID string) ([]*model.Booking, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, sessionID)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingService) ListByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error) {
	return []*model.Booking{}, nil
}

func (m *mockBookingService) Capacity(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error) {
	if m.capacityFunc != nil {
		return m.capacityFunc(ctx, sessionID)
	}
	return &model.CapacitySnapshot{SessionID: sessionID}, nil
}

func newRouter(svc *mockBookingService) *httprouter.Router {
	router := httprouter.New()
	NewBookingHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestCreate_StatusByOutcome(t *testing.T) {
	tests := []struct {
		name       string
		result     *model.BookingResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "new booking",
			result:     &model.BookingResult{Booking: &model.Booking{ID: "b1"}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "replay",
			result:     &model.BookingResult{Booking: &model.Booking{ID: "b1"}, IdempotentReplay: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "session full",
			err:        apperrors.SessionFull("s1"),
			wantStatus: http.StatusConflict,
			wantCode:   apperrors.CodeSessionFull,
		},
		{
			name:       "contention",
			err:        apperrors.Contention("Session is busy"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.CodeContention,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				createFunc: func(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error) {
					if intent.SessionID != "s1" {
						t.Errorf("expected session s1, got %q", intent.SessionID)
					}
					return tt.result, tt.err
				},
			}

			rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings",
				`{"requester_id":"r1","session_id":"s1","date":"2024-05-01","purpose":"exam"}`)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, got)
				}
			}
		})
	}
}

func TestCreate_InvalidBody(t *testing.T) {
	called := false
	svc := &mockBookingService{
		createFunc: func(context.Context, *model.BookingIntent) (*model.BookingResult, error) {
			called = true
			return nil, nil
		},
	}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings", `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Error("service should not be called for an undecodable body")
	}
}

func TestCancel_PassesID(t *testing.T) {
	var got string
	svc := &mockBookingService{
		cancelFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			got = id
			return &model.Booking{ID: id, Status: model.StatusCancelled}, nil
		},
	}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings/id/b42/cancel", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != "b42" {
		t.Errorf("expected id b42, got %q", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	rec := do(newRouter(&mockBookingService{}), http.MethodGet, "/api/v1/bookings/id/missing", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListBySession_Count(t *testing.T) {
	svc := &mockBookingService{
		listFunc: func(ctx context.Context, sessionID string) ([]*model.Booking, error) {
			return []*model.Booking{{ID: "a"}, {ID: "b"}}, nil
		},
	}

	rec := do(newRouter(svc), http.MethodGet, "/api/v1/sessions/s1/bookings", "")

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("expected count 2, got %d", body.Count)
	}
}

func TestCapacity_ServiceError(t *testing.T) {
	svc := &mockBookingService{
		capacityFunc: func(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error) {
			return nil, apperrors.Unavailable("record store", nil)
		},
	}

	rec := do(newRouter(svc), http.MethodGet, "/api/v1/sessions/s1/capacity", "")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !decodeError(t, rec).Retryable {
		t.Error("expected retryable error")
	}
}
