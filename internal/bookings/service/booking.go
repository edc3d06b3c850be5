package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/internal/bookings/repository"
	"exambook/internal/bookings/validator"
	"exambook/internal/capacity"
	"exambook/internal/dedup"
	"exambook/internal/idempotency"
	"exambook/pkg/cache"
	"exambook/pkg/config"
	apperrors "exambook/pkg/errors"
	"exambook/pkg/lock"
	"exambook/pkg/logger"
	"exambook/pkg/metrics"
	"exambook/pkg/model"
	"exambook/pkg/sanitizer"
	"exambook/pkg/tasks"

	"github.com/jonboulle/clockwork"
)

const releaseTimeout = 2 * time.Second

type BookingService interface {
	Create(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.Booking, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error)
	Capacity(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error)
}

// Invalidator drops cached responses matching a glob pattern.
type Invalidator interface {
	DeletePattern(pattern string) int
}

type Deps struct {
	Records     repository.RecordStore
	Locks       *lock.Manager
	Counter     *capacity.Counter
	Idempotency *idempotency.Controller
	Duplicates  *dedup.Cache
	Tasks       tasks.Queue
	Cache       Invalidator
	Validator   *validator.BookingValidator
	Metrics     *metrics.Metrics
	Clock       clockwork.Clock
}

type bookingService struct {
	records   repository.RecordStore
	locks     *lock.Manager
	counter   *capacity.Counter
	idem      *idempotency.Controller
	dups      *dedup.Cache
	queue     tasks.Queue
	cache     Invalidator
	validator *validator.BookingValidator
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	log       *logger.Logger

	lockTTL      time.Duration
	userRetry    lock.RetryOptions
	sessionRetry lock.RetryOptions
}

func NewBookingService(deps Deps, cfg *config.Config) BookingService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &bookingService{
		records:   deps.Records,
		locks:     deps.Locks,
		counter:   deps.Counter,
		idem:      deps.Idempotency,
		dups:      deps.Duplicates,
		queue:     deps.Tasks,
		cache:     deps.Cache,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		log:       cfg.Log.Component("booking_service"),
		lockTTL:   cfg.LockTTL,
		userRetry: lock.RetryOptions{
			MaxRetries: cfg.UserLockRetries,
			BaseDelay:  cfg.UserLockBaseDelay,
		},
		sessionRetry: lock.RetryOptions{
			MaxRetries: cfg.SessionLockRetries,
			BaseDelay:  cfg.SessionLockBaseDelay,
		},
	}
}

// attempt tracks one pass through the protocol so the deferred cleanup knows
// which locks are still held.
type attempt struct {
	intent       *model.BookingIntent
	phase        Phase
	userToken    string
	sessionToken string
}

func (a *attempt) fail() {
	a.phase = PhaseFailed
}

func (s *bookingService) Create(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error) {
	started := s.clock.Now()
	result, err := s.create(ctx, intent)
	s.metrics.BookingOutcome(outcomeOf(result, err), s.clock.Since(started))
	return result, err
}

func (s *bookingService) create(ctx context.Context, intent *model.BookingIntent) (*model.BookingResult, error) {
	sanitizer.Intent(intent)
	if err := s.validator.ValidateIntent(intent); err != nil {
		return nil, validationError(err)
	}

	session, err := s.records.GetSession(ctx, intent.SessionID)
	if err != nil {
		return nil, s.recordError("Session", intent.SessionID, err)
	}
	if session.Date != intent.Date {
		return nil, apperrors.Validation("Booking date does not match the session", map[string]any{
			"session_date": session.Date,
			"date":         intent.Date,
		})
	}

	// Replays need no locks.
	decision, err := s.idem.Decide(ctx, idempotency.IntentOf(*intent))
	if err != nil {
		return nil, s.decisionError(err)
	}
	if decision.Action == idempotency.ActionReplay {
		return replay(decision.Prior), nil
	}

	a := &attempt{intent: intent, phase: PhaseStart}
	defer s.finish(ctx, a)

	if err := s.lockUser(ctx, a); err != nil {
		return nil, err
	}
	if err := s.lockSession(ctx, a); err != nil {
		return nil, err
	}

	// A concurrent request may have committed between the first decision and
	// taking the user lock.
	decision, err = s.idem.Decide(ctx, idempotency.IntentOf(*intent))
	if err != nil {
		a.fail()
		return nil, s.decisionError(err)
	}
	if decision.Action == idempotency.ActionReplay {
		return replay(decision.Prior), nil
	}

	prior, err := s.checkDuplicate(ctx, intent)
	if err != nil {
		a.fail()
		return nil, err
	}
	if prior != nil {
		return replay(prior), nil
	}

	snapshot, err := s.counter.GetCapacitySnapshot(ctx, intent.SessionID)
	if err != nil {
		a.fail()
		return nil, s.recordError("Session", intent.SessionID, err)
	}
	if snapshot.Used >= snapshot.Capacity {
		a.fail()
		s.log.Info("Session is full",
			"session_id", intent.SessionID,
			"capacity", snapshot.Capacity,
			"used", snapshot.Used,
			"source", snapshot.Source,
		)
		return nil, withSentinel(apperrors.SessionFull(intent.SessionID), bookingserrors.ErrSessionFull)
	}
	a.phase = PhaseCapacityChecked

	now := s.clock.Now().UTC()
	booking := &model.Booking{
		SessionID:        intent.SessionID,
		RequesterID:      intent.RequesterID,
		Date:             intent.Date,
		Purpose:          intent.Purpose,
		StartsAt:         session.StartsAt,
		Status:           model.StatusActive,
		IdempotencyKey:   decision.Key,
		RetryAfterCancel: decision.RetryAfterCancel,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.records.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, bookingserrors.ErrDuplicateKey) {
			if existing, lookupErr := s.idem.Lookup(ctx, decision.Key); lookupErr == nil && existing != nil {
				return replay(existing), nil
			}
		}
		a.fail()
		s.log.Error("Failed to create booking",
			"session_id", intent.SessionID,
			"requester_id", intent.RequesterID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to create booking", err)
	}
	a.phase = PhaseWritten

	warnings := s.linkAssociations(ctx, booking)
	s.afterWrite(ctx, booking)

	s.log.Info("Booking created successfully",
		"booking_id", booking.ID,
		"session_id", booking.SessionID,
		"requester_id", booking.RequesterID,
		"retry_after_cancel", booking.RetryAfterCancel,
		"warnings", len(warnings),
	)

	return &model.BookingResult{Booking: booking, Warnings: warnings}, nil
}

func (s *bookingService) lockUser(ctx context.Context, a *attempt) error {
	resource := UserResource(a.intent.RequesterID, a.intent.Date)
	token, ok, err := s.locks.AcquireWithRetry(ctx, resource, s.userRetry, s.lockTTL)
	if err != nil {
		a.fail()
		return s.lockError(resource, err)
	}
	if !ok {
		a.fail()
		return withSentinel(
			apperrors.DuplicateInFlight("Another booking request for this requester and date is in progress"),
			bookingserrors.ErrDuplicateInFlight,
		)
	}
	a.userToken = token
	a.phase = PhaseUserLocked
	return nil
}

func (s *bookingService) lockSession(ctx context.Context, a *attempt) error {
	resource := SessionResource(a.intent.SessionID)
	token, ok, err := s.locks.AcquireWithRetry(ctx, resource, s.sessionRetry, s.lockTTL)
	if err != nil {
		a.fail()
		return s.lockError(resource, err)
	}
	if !ok {
		a.fail()
		return withSentinel(
			apperrors.Contention("Session is under high contention, retry shortly"),
			bookingserrors.ErrContention,
		)
	}
	a.sessionToken = token
	a.phase = PhaseSessionLocked
	return nil
}

// finish releases whatever the attempt still holds, session lock first.
// Release failures are logged only; the TTL clears them.
func (s *bookingService) finish(ctx context.Context, a *attempt) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if a.sessionToken != "" {
		s.release(releaseCtx, SessionResource(a.intent.SessionID), a.sessionToken, "phase", a.phase.String())
	}
	if a.userToken != "" {
		s.release(releaseCtx, UserResource(a.intent.RequesterID, a.intent.Date), a.userToken, "phase", a.phase.String())
	}

	if a.phase != PhaseFailed {
		a.phase = PhaseReleased
	}
	s.log.Debug("Booking attempt finished",
		"session_id", a.intent.SessionID,
		"requester_id", a.intent.RequesterID,
		"phase", a.phase.String(),
	)
}

// release frees a lock the service took. attrs carry the booking context
// into the warning when the lock was already gone.
func (s *bookingService) release(ctx context.Context, resource, token string, attrs ...any) {
	released, err := s.locks.Release(ctx, resource, token)
	if err != nil {
		s.log.Warn("Failed to release lock", append([]any{"lock_key", lock.Key(resource), "error", err}, attrs...)...)
		return
	}
	if !released {
		s.log.Warn("Lock expired before release", append([]any{"lock_key", lock.Key(resource)}, attrs...)...)
	}
}

// checkDuplicate refuses a second active booking for the requester on the
// same date. An entry for the same session is treated as a replay; an entry
// pointing at a booking that no longer holds a seat is dropped.
func (s *bookingService) checkDuplicate(ctx context.Context, intent *model.BookingIntent) (*model.Booking, error) {
	existingID, found, err := s.dups.Lookup(ctx, intent.RequesterID, intent.Date)
	if err != nil {
		return nil, s.lockError(dedup.Key(intent.RequesterID, intent.Date), err)
	}
	if !found {
		return nil, nil
	}

	existing, err := s.records.GetBooking(ctx, existingID)
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound), errors.Is(err, bookingserrors.ErrInvalidID):
		s.forgetDuplicate(ctx, intent.RequesterID, intent.Date, existingID)
		return nil, nil
	case err != nil:
		return nil, apperrors.Unavailable("record store", err)
	}

	if existing.Status != model.StatusActive {
		s.forgetDuplicate(ctx, intent.RequesterID, intent.Date, existingID)
		return nil, nil
	}
	if existing.SessionID == intent.SessionID {
		return existing, nil
	}

	appErr := apperrors.DuplicateBooking("Requester already holds a booking on this date")
	appErr.Details = map[string]any{"booking_id": existing.ID, "session_id": existing.SessionID}
	return nil, withSentinel(appErr, bookingserrors.ErrDuplicateBooking)
}

func (s *bookingService) forgetDuplicate(ctx context.Context, requesterID, date, bookingID string) {
	if _, err := s.dups.Forget(ctx, requesterID, date, bookingID); err != nil {
		s.log.Warn("Failed to drop stale duplicate entry",
			"requester_id", requesterID,
			"date", date,
			"booking_id", bookingID,
			"error", err,
		)
	}
}

// linkAssociations writes the booking's edges. Failures do not undo the
// booking; they come back as warnings.
func (s *bookingService) linkAssociations(ctx context.Context, booking *model.Booking) []string {
	edges := []*model.Association{
		{
			FromType: model.ObjectBooking,
			FromID:   booking.ID,
			ToType:   model.ObjectSession,
			ToID:     booking.SessionID,
			Label:    model.LabelBookingSession,
		},
		{
			FromType: model.ObjectBooking,
			FromID:   booking.ID,
			ToType:   model.ObjectRequester,
			ToID:     booking.RequesterID,
			Label:    model.LabelBookingRequester,
		},
	}

	var warnings []string
	for _, edge := range edges {
		edge.CreatedAt = booking.CreatedAt
		if err := s.records.CreateAssociation(ctx, edge); err != nil {
			s.log.Warn("Failed to create association",
				"booking_id", booking.ID,
				"label", edge.Label,
				"to_id", edge.ToID,
				"error", err,
			)
			warnings = append(warnings, fmt.Sprintf("failed to link booking to %s %s", edge.ToType, edge.ToID))
		}
	}
	return warnings
}

// afterWrite updates the fast tier and schedules side effects. None of it
// can fail the booking.
func (s *bookingService) afterWrite(ctx context.Context, booking *model.Booking) {
	if _, err := s.counter.Increment(ctx, booking.SessionID); err != nil {
		s.log.Error("Failed to increment session counter",
			"session_id", booking.SessionID,
			"booking_id", booking.ID,
			"error", err,
		)
	}
	if err := s.dups.Record(ctx, booking.RequesterID, booking.Date, booking.ID); err != nil {
		s.log.Warn("Failed to record duplicate entry", "booking_id", booking.ID, "error", err)
	}

	s.invalidate(booking)
	s.enqueue(ctx, tasks.TypeBookingCreated, booking)
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.StatusActive {
		return booking, nil
	}

	resource := SessionResource(booking.SessionID)
	token, ok, err := s.locks.AcquireWithRetry(ctx, resource, s.sessionRetry, s.lockTTL)
	if err != nil {
		return nil, s.lockError(resource, err)
	}
	if !ok {
		return nil, withSentinel(
			apperrors.Contention("Session is under high contention, retry shortly"),
			bookingserrors.ErrContention,
		)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		s.release(releaseCtx, resource, token, "booking_id", id)
	}()

	// re-read under the lock
	booking, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.StatusActive {
		return booking, nil
	}

	if err := s.records.UpdateBookingStatus(ctx, id, model.StatusCancelled); err != nil {
		s.log.Error("Failed to cancel booking", "booking_id", id, "error", err)
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}
	booking.Status = model.StatusCancelled
	booking.UpdatedAt = s.clock.Now().UTC()

	if _, err := s.counter.Decrement(ctx, booking.SessionID); err != nil {
		s.log.Error("Failed to decrement session counter",
			"session_id", booking.SessionID,
			"booking_id", booking.ID,
			"error", err,
		)
	}
	s.forgetDuplicate(ctx, booking.RequesterID, booking.Date, booking.ID)
	s.invalidate(booking)
	s.enqueue(ctx, tasks.TypeBookingCancelled, booking)

	s.log.Info("Booking cancelled",
		"booking_id", booking.ID,
		"session_id", booking.SessionID,
		"requester_id", booking.RequesterID,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.records.GetBooking(ctx, id)
	if err != nil {
		return nil, s.recordError("Booking", id, err)
	}
	return booking, nil
}

func (s *bookingService) ListBySession(ctx context.Context, sessionID string) ([]*model.Booking, error) {
	if err := s.validator.ValidateIdentifier("session_id", sessionID); err != nil {
		return nil, validationError(err)
	}
	bookings, err := s.records.ListBookingsBySession(ctx, sessionID)
	if err != nil {
		s.log.Error("Failed to list session bookings", "session_id", sessionID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) ListByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error) {
	if err := s.validator.ValidateIdentifier("requester_id", requesterID); err != nil {
		return nil, validationError(err)
	}
	bookings, err := s.records.ListBookingsByRequester(ctx, requesterID)
	if err != nil {
		s.log.Error("Failed to list requester bookings", "requester_id", requesterID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) Capacity(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error) {
	if err := s.validator.ValidateIdentifier("session_id", sessionID); err != nil {
		return nil, validationError(err)
	}
	snapshot, err := s.counter.GetCapacitySnapshot(ctx, sessionID)
	if err != nil {
		return nil, s.recordError("Session", sessionID, err)
	}
	return snapshot, nil
}

func (s *bookingService) invalidate(booking *model.Booking) {
	if s.cache == nil {
		return
	}
	for _, pattern := range cache.BookingPatterns(booking.SessionID, booking.RequesterID) {
		s.cache.DeletePattern(pattern)
	}
}

func (s *bookingService) enqueue(ctx context.Context, taskType string, booking *model.Booking) {
	if s.queue == nil {
		return
	}
	event, err := tasks.New(taskType, booking.SessionID, tasks.BookingEvent{
		BookingID:      booking.ID,
		SessionID:      booking.SessionID,
		RequesterID:    booking.RequesterID,
		Date:           booking.Date,
		Purpose:        booking.Purpose,
		Status:         booking.Status.String(),
		IdempotencyKey: booking.IdempotencyKey,
		OccurredAt:     s.clock.Now().UTC(),
	})
	if err == nil {
		err = s.queue.Enqueue(ctx, event)
	}
	if err != nil {
		s.log.Error("Failed to enqueue task", "task_type", taskType, "booking_id", booking.ID, "error", err)
	}

	counterSync, err := tasks.New(tasks.TypeCounterSync, booking.SessionID, tasks.CounterSync{SessionID: booking.SessionID})
	if err == nil {
		err = s.queue.Enqueue(ctx, counterSync)
	}
	if err != nil {
		s.log.Error("Failed to enqueue task", "task_type", tasks.TypeCounterSync, "session_id", booking.SessionID, "error", err)
	}
}

func (s *bookingService) lockError(key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout("Request cancelled while waiting for a lock")
	}
	s.log.Error("Lock store unavailable", "lock_key", key, "error", err)
	return apperrors.Unavailable("lock store", fmt.Errorf("%w: %w", bookingserrors.ErrLockStoreUnavailable, err))
}

func (s *bookingService) decisionError(err error) error {
	if errors.Is(err, idempotency.ErrRetryBudgetExhausted) {
		return apperrors.Conflict("Too many cancelled attempts for this booking, try again later")
	}
	s.log.Error("Idempotency lookup failed", "error", err)
	return apperrors.Unavailable("record store", err)
}

func (s *bookingService) recordError(resource, id string, err error) error {
	switch {
	case errors.Is(err, bookingserrors.ErrSessionNotFound), errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput(fmt.Sprintf("Invalid %s ID format", resource))
	}
	s.log.Error("Record store call failed", "resource", resource, "id", id, "error", err)
	return apperrors.Unavailable("record store", err)
}

func replay(prior *model.Booking) *model.BookingResult {
	return &model.BookingResult{Booking: prior, IdempotentReplay: true}
}

func withSentinel(appErr *apperrors.AppError, sentinel error) *apperrors.AppError {
	appErr.Err = sentinel
	return appErr
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Invalid booking request", map[string]any{"errors": verrs})
	}
	return apperrors.InvalidInput(err.Error())
}

func outcomeOf(result *model.BookingResult, err error) string {
	if err == nil {
		if result != nil && result.IdempotentReplay {
			return "replay"
		}
		return "created"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return apperrors.CodeInternal
}
