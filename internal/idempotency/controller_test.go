package idempotency

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"exambook/internal/bookings/repository"
	"exambook/pkg/model"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func exam() Intent {
	return Intent{RequesterID: "r1", SessionID: "s1", Date: "2024-05-20", Purpose: PurposeExam}
}

func newController(t *testing.T) (*Controller, *repository.MemoryRecordStore, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	records := repository.NewMemoryRecordStore()
	return NewController(records, 5*time.Minute, clock, nil), records, clock
}

func TestDeriveKey_StableWithinBucket(t *testing.T) {
	c, _, clock := newController(t)

	first := c.DeriveKey(exam())
	clock.Advance(4*time.Minute + 59*time.Second)
	second := c.DeriveKey(exam())

	assert.Equal(t, first, second)
}

func TestDeriveKey_ChangesAcrossBucketBoundary(t *testing.T) {
	c, _, clock := newController(t)

	clock.Advance(4*time.Minute + 59*time.Second)
	before := c.DeriveKey(exam())
	clock.Advance(time.Second)
	after := c.DeriveKey(exam())

	assert.NotEqual(t, before, after)
}

func TestDeriveKey_Format(t *testing.T) {
	c, _, _ := newController(t)

	tests := []struct {
		purpose string
		prefix  string
	}{
		{PurposeExam, "exm_"},
		{PurposeDiscussion, "dsc_"},
		{"other", "bkg_"},
	}
	for _, tt := range tests {
		t.Run(tt.purpose, func(t *testing.T) {
			intent := exam()
			intent.Purpose = tt.purpose
			key := c.DeriveKey(intent)
			assert.Regexp(t, regexp.MustCompile("^"+tt.prefix+"[0-9a-f]{32}$"), key)
		})
	}
}

func TestDeriveKey_EveryFieldMatters(t *testing.T) {
	c, _, _ := newController(t)
	base := c.DeriveKey(exam())

	mutations := map[string]func(*Intent){
		"requester": func(i *Intent) { i.RequesterID = "r2" },
		"session":   func(i *Intent) { i.SessionID = "s2" },
		"date":      func(i *Intent) { i.Date = "2024-05-21" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			intent := exam()
			mutate(&intent)
			assert.NotEqual(t, base, c.DeriveKey(intent))
		})
	}

	assert.NotEqual(t, KeyFor(exam(), 1, false), KeyFor(exam(), 1, true))
}

func TestDecide_Fresh(t *testing.T) {
	c, _, _ := newController(t)

	d, err := c.Decide(context.Background(), exam())
	require.NoError(t, err)
	assert.Equal(t, ActionFresh, d.Action)
	assert.Equal(t, c.DeriveKey(exam()), d.Key)
	assert.Nil(t, d.Prior)
}

func TestDecide_ReplaysActiveAndCompleted(t *testing.T) {
	for _, status := range []model.BookingStatus{model.StatusActive, model.StatusCompleted} {
		t.Run(status.String(), func(t *testing.T) {
			c, records, _ := newController(t)
			id := records.PutBooking(model.Booking{Status: status, IdempotencyKey: c.DeriveKey(exam())})

			d, err := c.Decide(context.Background(), exam())
			require.NoError(t, err)
			assert.Equal(t, ActionReplay, d.Action)
			require.NotNil(t, d.Prior)
			assert.Equal(t, id, d.Prior.ID)
		})
	}
}

func TestDecide_RetryAfterCancel(t *testing.T) {
	for _, status := range []model.BookingStatus{model.StatusCancelled, model.StatusFailed} {
		t.Run(status.String(), func(t *testing.T) {
			c, records, _ := newController(t)
			key := c.DeriveKey(exam())
			records.PutBooking(model.Booking{Status: status, IdempotencyKey: key})

			d, err := c.Decide(context.Background(), exam())
			require.NoError(t, err)
			assert.Equal(t, ActionRetryAfterCancel, d.Action)
			assert.True(t, d.RetryAfterCancel)
			assert.NotEqual(t, key, d.Key)
			assert.Equal(t, KeyFor(exam(), c.Bucket(start)+1, true), d.Key)
		})
	}
}

func TestDecide_ReplaysRebookedAttempt(t *testing.T) {
	c, records, _ := newController(t)
	records.PutBooking(model.Booking{Status: model.StatusCancelled, IdempotencyKey: c.DeriveKey(exam())})
	retryKey := KeyFor(exam(), c.Bucket(start)+1, true)
	rebooked := records.PutBooking(model.Booking{Status: model.StatusActive, IdempotencyKey: retryKey})

	d, err := c.Decide(context.Background(), exam())
	require.NoError(t, err)
	assert.Equal(t, ActionReplay, d.Action)
	assert.Equal(t, rebooked, d.Prior.ID)
}

func TestDecide_SkipsCancelledRetries(t *testing.T) {
	c, records, _ := newController(t)
	bucket := c.Bucket(start)
	records.PutBooking(model.Booking{Status: model.StatusCancelled, IdempotencyKey: c.DeriveKey(exam())})
	records.PutBooking(model.Booking{Status: model.StatusCancelled, IdempotencyKey: KeyFor(exam(), bucket+1, true)})

	d, err := c.Decide(context.Background(), exam())
	require.NoError(t, err)
	assert.Equal(t, ActionRetryAfterCancel, d.Action)
	assert.Equal(t, KeyFor(exam(), bucket+2, true), d.Key)
}

func TestDecide_LookupErrorSurfaces(t *testing.T) {
	c, records, _ := newController(t)
	records.FailOn(repository.OpFindByKey, "", errors.New("crm timeout"))

	_, err := c.Decide(context.Background(), exam())
	assert.ErrorContains(t, err, "crm timeout")
}
