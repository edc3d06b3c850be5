package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// BookingStatus is the closed set of booking states. Raw values coming from
// the record store are decoded exactly once, here.
type BookingStatus int

const (
	StatusUnknown BookingStatus = iota
	StatusActive
	StatusCancelled
	StatusCompleted
	StatusFailed
)

var statusNames = map[BookingStatus]string{
	StatusUnknown:   "unknown",
	StatusActive:    "active",
	StatusCancelled: "cancelled",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
}

// legacy spellings found in CRM exports
var statusAliases = map[string]BookingStatus{
	"active":    StatusActive,
	"confirmed": StatusActive,
	"scheduled": StatusActive,
	"booked":    StatusActive,
	"cancelled": StatusCancelled,
	"canceled":  StatusCancelled,
	"completed": StatusCompleted,
	"complete":  StatusCompleted,
	"attended":  StatusCompleted,
	"failed":    StatusFailed,
	"error":     StatusFailed,
}

func (s BookingStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// Counts reports whether a booking in this state holds a seat.
func (s BookingStatus) Counts() bool {
	return s != StatusCancelled && s != StatusFailed
}

// Replayable reports whether a booking in this state is returned verbatim to
// a repeated submission.
func (s BookingStatus) Replayable() bool {
	return s == StatusActive || s == StatusCompleted
}

// Spellings lists every stored string that decodes to s, canonical first.
// Record-store filters match on all of them.
func (s BookingStatus) Spellings() []string {
	out := []string{s.String()}
	var aliases []string
	for alias, status := range statusAliases {
		if status == s && alias != s.String() {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return append(out, aliases...)
}

// ParseBookingStatus decodes a raw status. Boolean-like values are treated as
// an "is cancelled" flag.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusAliases[v]; ok {
		return status, nil
	}
	switch v {
	case "true", "yes", "1":
		return StatusCancelled, nil
	case "false", "no", "0":
		return StatusActive, nil
	}
	return StatusUnknown, fmt.Errorf("unknown booking status %q", raw)
}

func (s BookingStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BookingStatus) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = decodeRawStatus(raw)
	return nil
}

func (s BookingStatus) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(s.String())
}

func (s *BookingStatus) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	if str, ok := rv.StringValueOK(); ok {
		*s = decodeRawStatus(str)
		return nil
	}
	if b, ok := rv.BooleanOK(); ok {
		*s = decodeRawStatus(b)
		return nil
	}
	*s = StatusUnknown
	return nil
}

func decodeRawStatus(raw any) BookingStatus {
	switch v := raw.(type) {
	case string:
		status, err := ParseBookingStatus(v)
		if err != nil {
			return StatusUnknown
		}
		return status
	case bool:
		if v {
			return StatusCancelled
		}
		return StatusActive
	default:
		return StatusUnknown
	}
}
