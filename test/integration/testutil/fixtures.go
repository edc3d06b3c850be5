package testutil

import (
	"time"

	"exambook/pkg/model"

	"github.com/google/uuid"
)

// UniqueID returns an identifier that cannot collide with state left in
// Redis by earlier runs.
func UniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

type SessionBuilder struct {
	session model.Session
}

func NewSessionBuilder() *SessionBuilder {
	startsAt := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	return &SessionBuilder{
		session: model.Session{
			ID:        UniqueID("session"),
			Title:     "Integration exam",
			Purpose:   "exam",
			Date:      startsAt.Format(time.DateOnly),
			StartsAt:  startsAt,
			Capacity:  3,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (b *SessionBuilder) WithCapacity(capacity int) *SessionBuilder {
	b.session.Capacity = capacity
	return b
}

func (b *SessionBuilder) WithPurpose(purpose string) *SessionBuilder {
	b.session.Purpose = purpose
	return b
}

func (b *SessionBuilder) BuildPtr() *model.Session {
	s := b.session
	return &s
}

func IntentFor(session *model.Session, requesterID string) model.BookingIntent {
	return model.BookingIntent{
		RequesterID: requesterID,
		SessionID:   session.ID,
		Date:        session.Date,
		Purpose:     session.Purpose,
	}
}
