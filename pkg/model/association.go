package model

import "time"

type ObjectType string

const (
	ObjectBooking   ObjectType = "booking"
	ObjectSession   ObjectType = "session"
	ObjectRequester ObjectType = "requester"
)

const (
	LabelBookingSession   = "booking_to_session"
	LabelBookingRequester = "booking_to_requester"
)

// Association is a typed edge between two records.
type Association struct {
	ID        string     `json:"id,omitempty" bson:"_id,omitempty"`
	FromType  ObjectType `json:"from_type" bson:"from_type"`
	FromID    string     `json:"from_id" bson:"from_id"`
	ToType    ObjectType `json:"to_type" bson:"to_type"`
	ToID      string     `json:"to_id" bson:"to_id"`
	Label     string     `json:"label" bson:"label"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}
