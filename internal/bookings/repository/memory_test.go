package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/pkg/model"
)

func seedSession(t *testing.T, store *MemoryRecordStore, id string, capacity int) {
	t.Helper()
	if err := store.CreateSession(context.Background(), &model.Session{ID: id, Capacity: capacity}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
}

// ──────────────────────────────────────────────────────────────
// Sessions
// ──────────────────────────────────────────────────────────────

func TestMemoryRecordStore_SessionCounter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	seedSession(t, store, "s1", 10)

	capacity, err := store.GetSessionCapacity(ctx, "s1")
	if err != nil || capacity != 10 {
		t.Fatalf("GetSessionCapacity() = %d, %v; want 10", capacity, err)
	}

	if err := store.UpdateSessionUsed(ctx, "s1", 4); err != nil {
		t.Fatalf("UpdateSessionUsed() error = %v", err)
	}
	session, _ := store.GetSession(ctx, "s1")
	if session.BookingsUsed != 4 {
		t.Errorf("BookingsUsed = %d, want 4", session.BookingsUsed)
	}

	if err := store.UpdateSessionUsed(ctx, "missing", 1); !errors.Is(err, bookingserrors.ErrSessionNotFound) {
		t.Errorf("UpdateSessionUsed(missing) error = %v, want ErrSessionNotFound", err)
	}
}

// ──────────────────────────────────────────────────────────────
// Bookings
// ──────────────────────────────────────────────────────────────

func TestMemoryRecordStore_IdempotencyKeyIsUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	first := &model.Booking{SessionID: "s1", RequesterID: "r1", Status: model.StatusActive, IdempotencyKey: "exm_abc"}
	if err := store.CreateBooking(ctx, first); err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if first.ID == "" {
		t.Fatal("CreateBooking() did not assign an id")
	}

	dup := &model.Booking{SessionID: "s1", RequesterID: "r1", IdempotencyKey: "exm_abc"}
	if err := store.CreateBooking(ctx, dup); !errors.Is(err, bookingserrors.ErrDuplicateKey) {
		t.Errorf("CreateBooking(dup) error = %v, want ErrDuplicateKey", err)
	}

	found, err := store.FindByIdempotencyKey(ctx, "exm_abc")
	if err != nil || found.ID != first.ID {
		t.Errorf("FindByIdempotencyKey() = %v, %v; want %s", found, err, first.ID)
	}
}

func TestMemoryRecordStore_BatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	a := store.PutBooking(model.Booking{SessionID: "s1", Status: model.StatusActive})
	b := store.PutBooking(model.Booking{SessionID: "s1", Status: model.StatusActive})
	store.FailOn(OpGetBooking, b, errors.New("rate limited"))

	found, result, err := store.BatchGetBookings(ctx, []string{a, b, "missing"})
	if err != nil {
		t.Fatalf("BatchGetBookings() error = %v", err)
	}
	if len(found) != 1 || found[a] == nil {
		t.Errorf("found = %v, want only %s", found, a)
	}
	if len(result.Failed) != 2 {
		t.Errorf("Failed = %v, want 2 entries", result.Failed)
	}
	if !errors.Is(result.Failed["missing"], bookingserrors.ErrNotFound) {
		t.Errorf("Failed[missing] = %v, want ErrNotFound", result.Failed["missing"])
	}

	store.FailOn(OpUpdateBookingStatus, a, errors.New("boom"))
	upd, err := store.BatchUpdateBookingStatus(ctx, []string{a, b}, model.StatusCompleted)
	if err != nil {
		t.Fatalf("BatchUpdateBookingStatus() error = %v", err)
	}
	if len(upd.Succeeded) != 1 || upd.Succeeded[0] != b || !upd.HasFailures() {
		t.Errorf("BatchUpdateBookingStatus() = %+v", upd)
	}
}

func TestMemoryRecordStore_SearchBookings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	past := store.PutBooking(model.Booking{Status: model.StatusActive, StartsAt: now.Add(-time.Hour)})
	store.PutBooking(model.Booking{Status: model.StatusActive, StartsAt: now.Add(time.Hour)})
	store.PutBooking(model.Booking{Status: model.StatusCancelled, StartsAt: now.Add(-time.Hour)})
	store.PutBooking(model.Booking{Status: model.StatusActive})

	got, err := store.SearchBookings(ctx, model.StatusActive, now, 0)
	if err != nil {
		t.Fatalf("SearchBookings() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != past {
		t.Errorf("SearchBookings() = %v, want [%s]", got, past)
	}
}

// ──────────────────────────────────────────────────────────────
// Associations
// ──────────────────────────────────────────────────────────────

func TestMemoryRecordStore_Associations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	edge := func(from string) *model.Association {
		return &model.Association{
			FromType: model.ObjectBooking, FromID: from,
			ToType: model.ObjectSession, ToID: "s1",
			Label: model.LabelBookingSession,
		}
	}

	for _, from := range []string{"b1", "b2", "b1"} {
		if err := store.CreateAssociation(ctx, edge(from)); err != nil {
			t.Fatalf("CreateAssociation() error = %v", err)
		}
	}

	edges, err := store.ListAssociations(ctx, model.ObjectSession, "s1", model.LabelBookingSession)
	if err != nil {
		t.Fatalf("ListAssociations() error = %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("len(edges) = %d, want 2 (create is idempotent)", len(edges))
	}

	deleted, _ := store.DeleteAssociations(ctx, model.ObjectBooking, "b1")
	if deleted != 1 {
		t.Errorf("DeleteAssociations() = %d, want 1", deleted)
	}

	store.FailOn(OpCreateAssociation, "", errors.New("crm down"))
	if err := store.CreateAssociation(ctx, edge("b3")); err == nil {
		t.Error("CreateAssociation() expected injected error")
	}
}
