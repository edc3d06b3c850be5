package repository

import (
	"context"
	"time"

	"exambook/pkg/model"
)

const (
	SessionsCollection     = "Sessions"
	BookingsCollection     = "Bookings"
	AssociationsCollection = "Associations"
)

// RecordStore is the authoritative backend for sessions, bookings and the
// association graph between them. Batch operations report per-id failures
// in a BatchResult instead of failing the whole call.
type RecordStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetSessionCapacity(ctx context.Context, id string) (int, error)
	UpdateSessionUsed(ctx context.Context, id string, used int) error

	CreateBooking(ctx context.Context, booking *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	BatchGetBookings(ctx context.Context, ids []string) (map[string]*model.Booking, *BatchResult, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error
	BatchUpdateBookingStatus(ctx context.Context, ids []string, status model.BookingStatus) (*BatchResult, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	// SearchBookings returns bookings in status whose StartsAt is at or before threshold.
	SearchBookings(ctx context.Context, status model.BookingStatus, threshold time.Time, limit int) ([]*model.Booking, error)
	ListBookingsBySession(ctx context.Context, sessionID string) ([]*model.Booking, error)
	ListBookingsByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error)

	CreateAssociation(ctx context.Context, assoc *model.Association) error
	// ListAssociations returns edges with the given label pointing at (toType, toID).
	ListAssociations(ctx context.Context, toType model.ObjectType, toID string, label string) ([]*model.Association, error)
	DeleteAssociations(ctx context.Context, fromType model.ObjectType, fromID string) (int64, error)

	Ping(ctx context.Context) error
}

// BatchResult carries the outcome of each id in a batch call.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

func newBatchResult() *BatchResult {
	return &BatchResult{Failed: make(map[string]error)}
}

func (b *BatchResult) fail(id string, err error) {
	b.Failed[id] = err
}

func (b *BatchResult) HasFailures() bool {
	return b != nil && len(b.Failed) > 0
}

var (
	_ RecordStore = (*MongoRecordStore)(nil)
	_ RecordStore = (*MemoryRecordStore)(nil)
)
