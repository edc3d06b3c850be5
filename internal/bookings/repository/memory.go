package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operation names accepted by MemoryRecordStore.FailOn.
const (
	OpGetSession          = "get_session"
	OpUpdateSessionUsed   = "update_session_used"
	OpCreateBooking       = "create_booking"
	OpGetBooking          = "get_booking"
	OpUpdateBookingStatus = "update_booking_status"
	OpFindByKey           = "find_by_idempotency_key"
	OpCreateAssociation   = "create_association"
	OpListAssociations    = "list_associations"
)

type fault struct {
	match string
	err   error
}

// MemoryRecordStore is a RecordStore kept in process memory. It backs local
// runs and tests, and can be told to fail selected operations.
type MemoryRecordStore struct {
	mu           sync.RWMutex
	sessions     map[string]model.Session
	bookings     map[string]model.Booking
	associations map[string]model.Association
	faults       map[string][]fault
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		sessions:     make(map[string]model.Session),
		bookings:     make(map[string]model.Booking),
		associations: make(map[string]model.Association),
		faults:       make(map[string][]fault),
	}
}

// FailOn makes op return err for the given id, or for every id when id is empty.
func (m *MemoryRecordStore) FailOn(op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], fault{match: id, err: err})
}

func (m *MemoryRecordStore) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string][]fault)
}

// faultFor returns the injected error for op and id. Caller holds mu.
func (m *MemoryRecordStore) faultFor(op, id string) error {
	for _, f := range m.faults[op] {
		if f.match == "" || f.match == id {
			return f.err
		}
	}
	return nil
}

func (m *MemoryRecordStore) CreateSession(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = primitive.NewObjectID().Hex()
	}
	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("failed to create session: duplicate id %s", session.ID)
	}
	session.UpdatedAt = now()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryRecordStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.faultFor(OpGetSession, id); err != nil {
		return nil, err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, bookingserrors.ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryRecordStore) GetSessionCapacity(ctx context.Context, id string) (int, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.Capacity, nil
}

func (m *MemoryRecordStore) UpdateSessionUsed(ctx context.Context, id string, used int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultFor(OpUpdateSessionUsed, id); err != nil {
		return err
	}
	s, ok := m.sessions[id]
	if !ok {
		return bookingserrors.ErrSessionNotFound
	}
	s.BookingsUsed = used
	s.UpdatedAt = now()
	m.sessions[id] = s
	return nil
}

func (m *MemoryRecordStore) CreateBooking(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultFor(OpCreateBooking, booking.SessionID); err != nil {
		return err
	}
	if booking.IdempotencyKey != "" {
		for _, b := range m.bookings {
			if b.IdempotencyKey == booking.IdempotencyKey {
				return bookingserrors.ErrDuplicateKey
			}
		}
	}

	ts := now()
	booking.ID = primitive.NewObjectID().Hex()
	booking.CreatedAt = ts
	booking.UpdatedAt = ts
	m.bookings[booking.ID] = *booking
	return nil
}

// PutBooking stores booking as-is, bypassing key checks. Used to seed
// records written by other systems.
func (m *MemoryRecordStore) PutBooking(booking model.Booking) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	m.bookings[booking.ID] = booking
	return booking.ID
}

func (m *MemoryRecordStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.faultFor(OpGetBooking, id); err != nil {
		return nil, err
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return &b, nil
}

func (m *MemoryRecordStore) BatchGetBookings(ctx context.Context, ids []string) (map[string]*model.Booking, *BatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]*model.Booking, len(ids))
	result := newBatchResult()
	for _, id := range ids {
		if err := m.faultFor(OpGetBooking, id); err != nil {
			result.fail(id, err)
			continue
		}
		b, ok := m.bookings[id]
		if !ok {
			result.fail(id, bookingserrors.ErrNotFound)
			continue
		}
		found[id] = &b
		result.Succeeded = append(result.Succeeded, id)
	}
	return found, result, nil
}

func (m *MemoryRecordStore) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatus(id, status)
}

// updateStatus sets the status of one booking. Caller holds mu.
func (m *MemoryRecordStore) updateStatus(id string, status model.BookingStatus) error {
	if err := m.faultFor(OpUpdateBookingStatus, id); err != nil {
		return err
	}
	b, ok := m.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = now()
	m.bookings[id] = b
	return nil
}

func (m *MemoryRecordStore) BatchUpdateBookingStatus(ctx context.Context, ids []string, status model.BookingStatus) (*BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := newBatchResult()
	for _, id := range ids {
		if err := m.updateStatus(id, status); err != nil {
			result.fail(id, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (m *MemoryRecordStore) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.faultFor(OpFindByKey, key); err != nil {
		return nil, err
	}
	for _, b := range m.bookings {
		if b.IdempotencyKey == key {
			return &b, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *MemoryRecordStore) SearchBookings(ctx context.Context, status model.BookingStatus, threshold time.Time, limit int) ([]*model.Booking, error) {
	bookings := m.filterBookings(func(b model.Booking) bool {
		return b.Status == status && !b.StartsAt.IsZero() && !b.StartsAt.After(threshold)
	})
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].StartsAt.Before(bookings[j].StartsAt) })
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

func (m *MemoryRecordStore) ListBookingsBySession(ctx context.Context, sessionID string) ([]*model.Booking, error) {
	bookings := m.filterBookings(func(b model.Booking) bool { return b.SessionID == sessionID })
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.Before(bookings[j].CreatedAt) })
	return bookings, nil
}

func (m *MemoryRecordStore) ListBookingsByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error) {
	bookings := m.filterBookings(func(b model.Booking) bool { return b.RequesterID == requesterID })
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].Date < bookings[j].Date })
	return bookings, nil
}

func (m *MemoryRecordStore) filterBookings(keep func(model.Booking) bool) []*model.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*model.Booking{}
	for _, b := range m.bookings {
		if keep(b) {
			b := b
			out = append(out, &b)
		}
	}
	return out
}

func (m *MemoryRecordStore) CreateAssociation(ctx context.Context, assoc *model.Association) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faultFor(OpCreateAssociation, assoc.ToID); err != nil {
		return err
	}
	for _, a := range m.associations {
		if a.FromID == assoc.FromID && a.ToID == assoc.ToID && a.Label == assoc.Label {
			*assoc = a
			return nil
		}
	}

	assoc.ID = primitive.NewObjectID().Hex()
	assoc.CreatedAt = now()
	m.associations[assoc.ID] = *assoc
	return nil
}

func (m *MemoryRecordStore) ListAssociations(ctx context.Context, toType model.ObjectType, toID string, label string) ([]*model.Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.faultFor(OpListAssociations, toID); err != nil {
		return nil, err
	}
	out := []*model.Association{}
	for _, a := range m.associations {
		if a.ToType == toType && a.ToID == toID && a.Label == label {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRecordStore) DeleteAssociations(ctx context.Context, fromType model.ObjectType, fromID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, a := range m.associations {
		if a.FromType == fromType && a.FromID == fromID {
			delete(m.associations, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryRecordStore) Ping(ctx context.Context) error {
	return nil
}
