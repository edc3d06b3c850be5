package model

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestParseBookingStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    BookingStatus
		wantErr bool
	}{
		{"Active", StatusActive, false},
		{"CONFIRMED", StatusActive, false},
		{" scheduled ", StatusActive, false},
		{"Cancelled", StatusCancelled, false},
		{"canceled", StatusCancelled, false},
		{"true", StatusCancelled, false},
		{"false", StatusActive, false},
		{"Completed", StatusCompleted, false},
		{"failed", StatusFailed, false},
		{"pending-review", StatusUnknown, true},
		{"", StatusUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseBookingStatus(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBookingStatus(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBookingStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBookingStatus_Counts(t *testing.T) {
	counting := map[BookingStatus]bool{
		StatusActive:    true,
		StatusCompleted: true,
		StatusUnknown:   true,
		StatusCancelled: false,
		StatusFailed:    false,
	}
	for status, want := range counting {
		if got := status.Counts(); got != want {
			t.Errorf("%v.Counts() = %v, want %v", status, got, want)
		}
	}
}

func TestBookingStatus_JSONLegacyValues(t *testing.T) {
	var b struct {
		Status BookingStatus `json:"status"`
	}

	if err := json.Unmarshal([]byte(`{"status":"Canceled"}`), &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %v", b.Status)
	}

	if err := json.Unmarshal([]byte(`{"status":true}`), &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusCancelled {
		t.Errorf("expected boolean true to decode as cancelled, got %v", b.Status)
	}

	out, err := json.Marshal(struct {
		Status BookingStatus `json:"status"`
	}{StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"status":"completed"}` {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestBookingStatus_BSON(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"status": "Confirmed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var b Booking
	if err := bson.Unmarshal(raw, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusActive {
		t.Errorf("expected active, got %v", b.Status)
	}

	encoded, err := bson.Marshal(Booking{Status: StatusFailed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(encoded, &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["status"] != "failed" {
		t.Errorf("expected status stored as string, got %v", doc["status"])
	}
}

func TestBookingStatus_Spellings(t *testing.T) {
	got := StatusCancelled.Spellings()
	want := []string{"cancelled", "canceled"}
	if len(got) != len(want) {
		t.Fatalf("Spellings() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Spellings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, spelling := range StatusActive.Spellings() {
		status, err := ParseBookingStatus(spelling)
		if err != nil || status != StatusActive {
			t.Errorf("ParseBookingStatus(%q) = %v, %v; want active", spelling, status, err)
		}
	}
}
