package model

import (
	"time"
)

const DateLayout = "2006-01-02"

// Booking is a seat held by a requester in an exam or discussion session.
type Booking struct {
	ID               string        `json:"id,omitempty" bson:"_id,omitempty"`
	SessionID        string        `json:"session_id" bson:"session_id"`
	RequesterID      string        `json:"requester_id" bson:"requester_id"`
	Date             string        `json:"date" bson:"date"`
	Purpose          string        `json:"purpose" bson:"purpose"`
	StartsAt         time.Time     `json:"starts_at" bson:"starts_at"`
	Status           BookingStatus `json:"status" bson:"status"`
	IdempotencyKey   string        `json:"idempotency_key" bson:"idempotency_key"`
	RetryAfterCancel bool          `json:"retry_after_cancel,omitempty" bson:"retry_after_cancel,omitempty"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" bson:"updated_at"`
}

// BookingIntent is what a caller submits to book a seat.
type BookingIntent struct {
	RequesterID string `json:"requester_id" validate:"required,identifier,max=64"`
	SessionID   string `json:"session_id" validate:"required,identifier,max=64"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Purpose     string `json:"purpose" validate:"required,oneof=exam discussion"`
}

// BookingResult is returned by a booking attempt.
type BookingResult struct {
	Booking          *Booking `json:"booking"`
	IdempotentReplay bool     `json:"idempotent_replay"`
	Warnings         []string `json:"warnings,omitempty"`
}
