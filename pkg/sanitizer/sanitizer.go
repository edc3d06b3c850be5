package sanitizer

import (
	"strings"
	"time"
	"unicode"

	"exambook/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func lower(s string) string {
	return strings.ToLower(s)
}

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeIdentifier(id string) string {
	return strings.TrimSpace(id)
}

// NormalizeDate accepts a calendar date or an RFC 3339 timestamp and
// returns the calendar date. Anything else is returned trimmed.
func NormalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Format(time.DateOnly)
	}
	return date
}

func NormalizePurpose(purpose string) string {
	p := Pipeline{
		TrimAndNormalize,
		lower,
	}
	return p.Apply(purpose)
}

// Intent normalizes the intent in place.
func Intent(intent *model.BookingIntent) {
	if intent == nil {
		return
	}
	intent.RequesterID = NormalizeIdentifier(intent.RequesterID)
	intent.SessionID = NormalizeIdentifier(intent.SessionID)
	intent.Date = NormalizeDate(intent.Date)
	intent.Purpose = NormalizePurpose(intent.Purpose)
}
