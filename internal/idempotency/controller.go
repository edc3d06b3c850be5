// Package idempotency derives deterministic keys for booking intents and
// decides whether a submission replays a prior booking or starts a new one.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/internal/bookings/repository"
	"exambook/pkg/logger"
	"exambook/pkg/model"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultBucket = 5 * time.Minute

	PurposeExam       = "exam"
	PurposeDiscussion = "discussion"

	hashLength = 32
	// a requester cancelling more often than this within one window is refused
	maxRetryBuckets = 16
)

var ErrRetryBudgetExhausted = errors.New("too many cancelled attempts for this intent")

type Action int

const (
	ActionFresh Action = iota
	ActionReplay
	ActionRetryAfterCancel
)

func (a Action) String() string {
	switch a {
	case ActionReplay:
		return "replay"
	case ActionRetryAfterCancel:
		return "retry_after_cancel"
	default:
		return "fresh"
	}
}

// Intent is the part of a booking request that identifies it.
type Intent struct {
	RequesterID string
	SessionID   string
	Date        string
	Purpose     string
}

func IntentOf(in model.BookingIntent) Intent {
	return Intent{
		RequesterID: in.RequesterID,
		SessionID:   in.SessionID,
		Date:        in.Date,
		Purpose:     in.Purpose,
	}
}

// Decision tells the booking protocol what to do with an intent. Key is the
// idempotency key the new booking must carry; Prior is set for replays.
type Decision struct {
	Action           Action
	Key              string
	Prior            *model.Booking
	RetryAfterCancel bool
}

type Controller struct {
	records repository.RecordStore
	bucket  time.Duration
	clock   clockwork.Clock
	log     *logger.Logger
}

func NewController(records repository.RecordStore, bucket time.Duration, clock clockwork.Clock, log *logger.Logger) *Controller {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Controller{
		records: records,
		bucket:  bucket,
		clock:   clock,
		log:     log.Component("idempotency"),
	}
}

// Bucket is the time window index for t.
func (c *Controller) Bucket(t time.Time) int64 {
	return t.UnixNano() / int64(c.bucket)
}

// DeriveKey is the key for intent in the current time bucket.
func (c *Controller) DeriveKey(intent Intent) string {
	return KeyFor(intent, c.Bucket(c.clock.Now()), false)
}

// KeyFor hashes the canonical form of intent in the given bucket.
func KeyFor(intent Intent, bucket int64, retryAfterCancel bool) string {
	canonical := map[string]any{
		"date":         intent.Date,
		"purpose":      intent.Purpose,
		"requester_id": intent.RequesterID,
		"session_id":   intent.SessionID,
		"time_bucket":  bucket,
	}
	if retryAfterCancel {
		canonical["retry_after_cancel"] = true
	}

	// encoding/json writes map keys in sorted order
	payload, _ := json.Marshal(canonical)
	sum := sha256.Sum256(payload)
	return prefixFor(intent.Purpose) + hex.EncodeToString(sum[:])[:hashLength]
}

func prefixFor(purpose string) string {
	switch purpose {
	case PurposeExam:
		return "exm_"
	case PurposeDiscussion:
		return "dsc_"
	default:
		return "bkg_"
	}
}

// Lookup returns the booking carrying key, or nil if there is none.
func (c *Controller) Lookup(ctx context.Context, key string) (*model.Booking, error) {
	booking, err := c.records.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return booking, nil
}

// Decide applies the replay policy: an active or completed booking under
// the key is replayed; a cancelled or failed one yields a fresh key in a
// later bucket marked retry-after-cancel; no booking means a fresh attempt.
func (c *Controller) Decide(ctx context.Context, intent Intent) (*Decision, error) {
	bucket := c.Bucket(c.clock.Now())
	key := KeyFor(intent, bucket, false)

	prior, err := c.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return &Decision{Action: ActionFresh, Key: key}, nil
	}
	if prior.Status.Replayable() {
		return &Decision{Action: ActionReplay, Key: key, Prior: prior}, nil
	}

	for offset := int64(1); offset <= maxRetryBuckets; offset++ {
		retryKey := KeyFor(intent, bucket+offset, true)
		existing, err := c.Lookup(ctx, retryKey)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			c.log.Info("Prior booking is no longer active, issuing retry key",
				"requester_id", intent.RequesterID,
				"session_id", intent.SessionID,
				"prior_booking_id", prior.ID,
				"prior_status", prior.Status.String(),
			)
			return &Decision{Action: ActionRetryAfterCancel, Key: retryKey, RetryAfterCancel: true}, nil
		}
		if existing.Status.Replayable() {
			return &Decision{Action: ActionReplay, Key: retryKey, Prior: existing, RetryAfterCancel: true}, nil
		}
	}
	return nil, ErrRetryBudgetExhausted
}
