package validator

import (
	"errors"
	"testing"

	"exambook/pkg/logger"
	"exambook/pkg/model"
)

func validIntent() model.BookingIntent {
	return model.BookingIntent{
		RequesterID: "student-17",
		SessionID:   "sess-2024-05-01",
		Date:        "2024-05-01",
		Purpose:     "exam",
	}
}

func TestValidateIntent(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(*model.BookingIntent)
		wantField string
	}{
		{"valid", func(*model.BookingIntent) {}, ""},
		{"discussion purpose", func(i *model.BookingIntent) { i.Purpose = "discussion" }, ""},
		{"missing requester", func(i *model.BookingIntent) { i.RequesterID = "" }, "RequesterID"},
		{"colon in requester", func(i *model.BookingIntent) { i.RequesterID = "a:b" }, "RequesterID"},
		{"space in session", func(i *model.BookingIntent) { i.SessionID = "sess 1" }, "SessionID"},
		{"bad date", func(i *model.BookingIntent) { i.Date = "01/05/2024" }, "Date"},
		{"impossible date", func(i *model.BookingIntent) { i.Date = "2024-02-30" }, "Date"},
		{"unknown purpose", func(i *model.BookingIntent) { i.Purpose = "party" }, "Purpose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := validIntent()
			tt.mutate(&intent)
			err := v.ValidateIntent(&intent)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, verrs[0].Field)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	if err := v.ValidateIdentifier("session_id", "sess-1"); err != nil {
		t.Errorf("expected valid identifier, got %v", err)
	}

	err := v.ValidateIdentifier("session_id", "")
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs[0].Field != "session_id" || verrs[0].Message != "session_id is required" {
		t.Errorf("unexpected error %+v", verrs[0])
	}
}
