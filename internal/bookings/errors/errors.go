package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrSessionNotFound = errors.New("session not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrDuplicateKey = errors.New("booking with this idempotency key already exists")

	ErrSessionFull = errors.New("session has no available slots")

	ErrDuplicateInFlight = errors.New("another request for this requester and date is in progress")

	ErrContention = errors.New("session is under high contention")

	ErrDuplicateBooking = errors.New("requester already holds a booking on this date")

	ErrLockStoreUnavailable = errors.New("lock store unavailable")
)
