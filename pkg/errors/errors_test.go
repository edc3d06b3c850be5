package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	originalErr := errors.New("redis connection refused")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if errors.Unwrap(wrapped) != originalErr {
		t.Errorf("Unwrap() should return original error")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   &AppError{Code: CodeNotFound, Message: "booking not found"},
			expected: "NOT_FOUND: booking not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "internal error",
				Err:     errors.New("mongo timeout"),
			},
			expected: "INTERNAL_ERROR: internal error (caused by: mongo timeout)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBookingErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      string
		status    int
		retryable bool
	}{
		{"contention", Contention("busy"), CodeContention, http.StatusServiceUnavailable, true},
		{"duplicate in flight", DuplicateInFlight("in flight"), CodeDuplicateInFlight, http.StatusConflict, false},
		{"duplicate booking", DuplicateBooking("already booked"), CodeDuplicateBooking, http.StatusConflict, false},
		{"session full", SessionFull("s-1"), CodeSessionFull, http.StatusConflict, false},
		{"unavailable", Unavailable("Lock store", nil), CodeUnavailable, http.StatusServiceUnavailable, true},
		{"timeout", Timeout("slow"), CodeTimeout, http.StatusGatewayTimeout, true},
		{"validation", Validation("bad", nil), CodeValidation, http.StatusUnprocessableEntity, false},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError, false},
		{"rate limited", RateLimited(), CodeRateLimited, http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.StatusCode())
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, tt.err.Retryable)
			}
		})
	}
}

func TestSessionFull_Details(t *testing.T) {
	err := SessionFull("session-42")
	if err.Details["session_id"] != "session-42" {
		t.Errorf("expected session_id detail, got %v", err.Details)
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Booking", "12345")

	if err.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, err.Code)
	}
	if err.Details["id"] != "12345" {
		t.Errorf("expected id '12345', got %v", err.Details["id"])
	}
	if err.Message != "Booking not found" {
		t.Errorf("expected message 'Booking not found', got %s", err.Message)
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Booking")
	regularErr := errors.New("regular error")

	if result := AsAppError(appErr); result != appErr {
		t.Errorf("AsAppError() should return same AppError")
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	if result := AsAppError(wrapped); result != appErr {
		t.Errorf("AsAppError() should unwrap a wrapped AppError")
	}

	result := AsAppError(regularErr)
	if result.Code != CodeInternal {
		t.Errorf("AsAppError() should wrap regular error as internal error")
	}
	if result.Err != regularErr {
		t.Errorf("AsAppError() should wrap the original error")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("create: %w", SessionFull("s"))

	if !HasCode(err, CodeSessionFull) {
		t.Errorf("HasCode() should match wrapped session-full error")
	}
	if HasCode(err, CodeContention) {
		t.Errorf("HasCode() should not match a different code")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Errorf("HasCode() should be false for non-AppError")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	jsonStr := string(Contention("try later").ToJSON())

	if !strings.Contains(jsonStr, `"code":"CONTENTION"`) {
		t.Errorf("ToJSON() should contain error code, got %s", jsonStr)
	}
	if !strings.Contains(jsonStr, `"retryable":true`) {
		t.Errorf("ToJSON() should contain retryable flag, got %s", jsonStr)
	}
}
