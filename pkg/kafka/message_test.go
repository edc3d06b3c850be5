package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryCountPastNine(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("expected retry count 12, got %d", got)
	}
	if msg.Headers[HeaderRetryCount] != "12" {
		t.Errorf("expected header \"12\", got %q", msg.Headers[HeaderRetryCount])
	}
}

func TestRetryCountMalformedHeader(t *testing.T) {
	msg := Message{Headers: map[string]string{HeaderRetryCount: "x"}}
	if got := msg.GetRetryCount(); got != 0 {
		t.Errorf("expected 0 for malformed header, got %d", got)
	}
	msg.IncrementRetryCount()
	if got := msg.GetRetryCount(); got != 1 {
		t.Errorf("expected 1 after increment, got %d", got)
	}
}

func TestBuilderDefaults(t *testing.T) {
	msg, err := NewMessage().
		WithKey("session-1").
		WithEventType("booking.created").
		WithValue(map[string]string{"booking_id": "b1"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}

	var payload map[string]string
	if err := msg.DecodeValue(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["booking_id"] != "b1" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestBuilderEncodeFailure(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if err == nil {
		t.Fatal("expected encode error")
	}
	if ClassifyError(err) != ErrorTypePermanent {
		t.Errorf("expected permanent classification, got %s", ClassifyError(err))
	}
}

// ──────────────────────────── classification ────────────────────────────

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"wrapped transient", fmt.Errorf("deliver: %w", NewTransientError("webhook", errors.New("503"))), ErrorTypeTransient},
		{"explicit permanent", NewPermanentError("decode", errors.New("bad json")), ErrorTypePermanent},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"connection refused text", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"schema mismatch", errors.New("schema mismatch on field x"), ErrorTypePermanent},
		{"unknown", errors.New("something odd"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("flaky", nil)
	if !ShouldRetry(transient, 0, 3) {
		t.Error("expected retry for transient error under budget")
	}
	if ShouldRetry(transient, 3, 3) {
		t.Error("expected no retry once budget is spent")
	}
	if ShouldRetry(NewPermanentError("bad", nil), 0, 3) {
		t.Error("expected no retry for permanent error")
	}
	if ShouldRetry(nil, 0, 3) {
		t.Error("expected no retry for nil")
	}
}
