package sanitizer

import (
	"testing"

	"exambook/pkg/model"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trim spaces",
			input: "  final exam  ",
			want:  "final exam",
		},
		{
			name:  "multiple spaces between words",
			input: "final    exam",
			want:  "final exam",
		},
		{
			name:  "tabs and newlines",
			input: "final\t\nexam",
			want:  "final exam",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n  ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "calendar date", input: "2026-03-15", want: "2026-03-15"},
		{name: "surrounding whitespace", input: " 2026-03-15\n", want: "2026-03-15"},
		{name: "rfc3339 timestamp", input: "2026-03-15T09:30:00Z", want: "2026-03-15"},
		{name: "timestamp with offset keeps local date", input: "2026-03-15T23:30:00+02:00", want: "2026-03-15"},
		{name: "garbage passes through", input: " next tuesday ", want: "next tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDate(tt.input); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePurpose(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "exam", want: "exam"},
		{input: " Exam ", want: "exam"},
		{input: "DISCUSSION", want: "discussion"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizePurpose(tt.input); got != tt.want {
			t.Errorf("NormalizePurpose(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIntent(t *testing.T) {
	intent := &model.BookingIntent{
		RequesterID: "  r-1 ",
		SessionID:   "\ts-1",
		Date:        "2026-03-15T10:00:00Z",
		Purpose:     " Exam",
	}

	Intent(intent)

	want := model.BookingIntent{RequesterID: "r-1", SessionID: "s-1", Date: "2026-03-15", Purpose: "exam"}
	if *intent != want {
		t.Errorf("Intent() = %+v, want %+v", *intent, want)
	}

	again := *intent
	Intent(&again)
	if again != want {
		t.Errorf("Intent() is not idempotent: %+v", again)
	}

	Intent(nil)
}
