// Package reconcile realigns the fast-tier session counters with the record
// store's association graph, purges duplicate-detection entries that point
// at bookings no longer holding a seat, and marks past bookings completed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/internal/bookings/repository"
	"exambook/internal/capacity"
	"exambook/internal/dedup"
	"exambook/pkg/logger"
	"exambook/pkg/metrics"
	"exambook/pkg/model"

	"github.com/jonboulle/clockwork"
)

const DefaultCompletionBatchSize = 100

// DriftEntry records one session whose fast-tier counter disagreed with the
// association graph.
type DriftEntry struct {
	SessionID     string `json:"session_id"`
	FastTier      int    `json:"fast_tier"`
	Authoritative int    `json:"authoritative"`
	Delta         int    `json:"delta"`
}

type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Sessions        int               `json:"sessions"`
	Drift           []DriftEntry      `json:"drift"`
	Failed          map[string]string `json:"failed,omitempty"`
	MissingBookings int               `json:"missing_bookings"`

	PurgedDuplicates int `json:"purged_duplicates"`

	Completed          int               `json:"completed"`
	CompletionFailures map[string]string `json:"completion_failures,omitempty"`
}

func newReport(started time.Time) *Report {
	return &Report{
		StartedAt:          started,
		Drift:              []DriftEntry{},
		Failed:             make(map[string]string),
		CompletionFailures: make(map[string]string),
	}
}

// Clean reports whether every session and booking in the pass was handled.
func (r *Report) Clean() bool {
	return len(r.Failed) == 0 && len(r.CompletionFailures) == 0
}

type Options struct {
	CompletionBatchSize int
	Clock               clockwork.Clock
}

type Engine struct {
	records   repository.RecordStore
	counter   *capacity.Counter
	dups      *dedup.Cache
	clock     clockwork.Clock
	batchSize int
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewEngine(records repository.RecordStore, counter *capacity.Counter, dups *dedup.Cache, opts Options, log *logger.Logger, m *metrics.Metrics) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CompletionBatchSize <= 0 {
		opts.CompletionBatchSize = DefaultCompletionBatchSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		records:   records,
		counter:   counter,
		dups:      dups,
		clock:     opts.Clock,
		batchSize: opts.CompletionBatchSize,
		log:       log.Component("reconcile"),
		metrics:   m,
	}
}

// RunOnce performs a full pass. Only a failure to enumerate the tracked
// sessions aborts it; everything else is isolated and reported.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	report := newReport(e.clock.Now())

	sessions, err := e.counter.TrackedSessions(ctx)
	if err != nil {
		e.metrics.ReconcilePass("error", 0, e.clock.Since(report.StartedAt))
		return nil, fmt.Errorf("reconciliation aborted: %w", err)
	}
	report.Sessions = len(sessions)

	for _, sessionID := range sessions {
		if err := ctx.Err(); err != nil {
			report.Failed[sessionID] = err.Error()
			continue
		}
		if err := e.reconcileSession(ctx, sessionID, report); err != nil {
			e.log.Error("Session reconciliation failed", "session_id", sessionID, "error", err)
			report.Failed[sessionID] = err.Error()
		}
	}

	e.sweepDuplicates(ctx, report)
	e.completePastBookings(ctx, report)

	report.FinishedAt = e.clock.Now()
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	result := "ok"
	if !report.Clean() {
		result = "partial"
	}
	e.metrics.ReconcilePass(result, len(report.Drift), elapsed)

	e.log.Info("Reconciliation pass finished",
		"sessions", report.Sessions,
		"drifted", len(report.Drift),
		"failed", len(report.Failed),
		"missing_bookings", report.MissingBookings,
		"purged_duplicates", report.PurgedDuplicates,
		"completed", report.Completed,
		"duration_ms", elapsed.Milliseconds(),
	)
	return report, nil
}

func (e *Engine) reconcileSession(ctx context.Context, sessionID string, report *Report) error {
	edges, err := e.records.ListAssociations(ctx, model.ObjectSession, sessionID, model.LabelBookingSession)
	if err != nil {
		return fmt.Errorf("failed to list booking edges: %w", err)
	}

	ids := make([]string, 0, len(edges))
	seen := make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		if _, dup := seen[edge.FromID]; dup {
			continue
		}
		seen[edge.FromID] = struct{}{}
		ids = append(ids, edge.FromID)
	}

	bookings, batch, err := e.records.BatchGetBookings(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to read bookings: %w", err)
	}
	if batch.HasFailures() {
		for id, ferr := range batch.Failed {
			e.log.Warn("Booking edge without readable booking", "session_id", sessionID, "booking_id", id, "error", ferr)
		}
		report.MissingBookings += len(batch.Failed)
	}

	actual := 0
	for _, b := range bookings {
		if b.Status.Counts() {
			actual++
			continue
		}
		e.forgetDuplicate(ctx, b, report)
	}

	fast, found, err := e.counter.Value(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read fast tier: %w", err)
	}

	if !found || fast != actual {
		if err := e.counter.Overwrite(ctx, sessionID, actual); err != nil {
			return err
		}
		if err := e.records.UpdateSessionUsed(ctx, sessionID, actual); err != nil {
			return fmt.Errorf("fast tier corrected but session record update failed: %w", err)
		}
		if fast != actual {
			entry := DriftEntry{SessionID: sessionID, FastTier: fast, Authoritative: actual, Delta: actual - fast}
			report.Drift = append(report.Drift, entry)
			e.log.Warn("Counter drift corrected",
				"session_id", sessionID,
				"fast_tier", fast,
				"authoritative", actual,
				"delta", entry.Delta,
			)
		}
		return nil
	}

	session, err := e.records.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if session.BookingsUsed != actual {
		if err := e.records.UpdateSessionUsed(ctx, sessionID, actual); err != nil {
			return fmt.Errorf("failed to update session record: %w", err)
		}
		e.log.Info("Session record counter realigned", "session_id", sessionID, "was", session.BookingsUsed, "now", actual)
	}
	return nil
}

func (e *Engine) forgetDuplicate(ctx context.Context, b *model.Booking, report *Report) {
	deleted, err := e.dups.Forget(ctx, b.RequesterID, b.Date, b.ID)
	if err != nil {
		e.log.Warn("Failed to purge duplicate entry", "booking_id", b.ID, "requester_id", b.RequesterID, "error", err)
		return
	}
	if deleted {
		report.PurgedDuplicates++
	}
}

// sweepDuplicates drops entries whose booking no longer holds a seat or no
// longer exists. This also covers sessions without a fast-tier counter.
func (e *Engine) sweepDuplicates(ctx context.Context, report *Report) {
	entries, err := e.dups.Entries(ctx)
	if err != nil {
		e.log.Warn("Skipping duplicate sweep", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	ids := make([]string, 0, len(entries))
	for _, id := range entries {
		ids = append(ids, id)
	}
	bookings, batch, err := e.records.BatchGetBookings(ctx, ids)
	if err != nil {
		e.log.Warn("Skipping duplicate sweep", "error", err)
		return
	}

	for key, id := range entries {
		stale := false
		if b, ok := bookings[id]; ok {
			stale = !b.Status.Counts()
		} else if ferr, failed := batch.Failed[id]; failed {
			stale = errors.Is(ferr, bookingserrors.ErrNotFound)
		}
		if !stale {
			continue
		}
		deleted, err := e.dups.DeleteKey(ctx, key, id)
		if err != nil {
			e.log.Warn("Failed to purge duplicate entry", "key", key, "booking_id", id, "error", err)
			continue
		}
		if deleted {
			report.PurgedDuplicates++
		}
	}
}

// completePastBookings moves active bookings whose session has started to
// Completed. Completed bookings keep counting toward capacity.
func (e *Engine) completePastBookings(ctx context.Context, report *Report) {
	now := e.clock.Now()
	for {
		due, err := e.records.SearchBookings(ctx, model.StatusActive, now, e.batchSize)
		if err != nil {
			e.log.Warn("Completion sweep stopped", "error", err)
			report.CompletionFailures["search"] = err.Error()
			return
		}
		if len(due) == 0 {
			return
		}

		ids := make([]string, 0, len(due))
		for _, b := range due {
			ids = append(ids, b.ID)
		}
		result, err := e.records.BatchUpdateBookingStatus(ctx, ids, model.StatusCompleted)
		if err != nil {
			e.log.Warn("Completion sweep stopped", "error", err)
			report.CompletionFailures["update"] = err.Error()
			return
		}
		report.Completed += len(result.Succeeded)
		for id, ferr := range result.Failed {
			report.CompletionFailures[id] = ferr.Error()
		}

		if len(due) < e.batchSize || len(result.Succeeded) == 0 {
			return
		}
	}
}
