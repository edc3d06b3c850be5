package model

import "time"

// Session is a bookable exam or discussion slot. BookingsUsed is the
// authoritative counter; the fast tier may run ahead of it between
// reconciliation passes.
type Session struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty"`
	Title        string    `json:"title" bson:"title"`
	Purpose      string    `json:"purpose" bson:"purpose"`
	Date         string    `json:"date" bson:"date"`
	StartsAt     time.Time `json:"starts_at" bson:"starts_at"`
	Capacity     int       `json:"capacity" bson:"capacity"`
	BookingsUsed int       `json:"bookings_used" bson:"bookings_used"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// CapacitySnapshot is the view of a session's seats at one point in time.
type CapacitySnapshot struct {
	SessionID      string `json:"session_id"`
	Capacity       int    `json:"capacity"`
	Used           int    `json:"used"`
	AvailableSlots int    `json:"available_slots"`
	Source         string `json:"source"`
}
