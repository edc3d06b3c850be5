// Package notifications consumes the booking side-effect tasks: it announces
// created and cancelled bookings to an optional webhook and copies fast-tier
// counters into the session records.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/internal/bookings/repository"
	"exambook/internal/capacity"
	"exambook/pkg/client"
	"exambook/pkg/kafka"
	"exambook/pkg/logger"
	"exambook/pkg/tasks"
)

const (
	HeaderEventID   = "X-Event-ID"
	HeaderEventType = "X-Event-Type"
)

// Webhook is the subset of client.HttpClient used for delivery.
type Webhook interface {
	POSTContext(ctx context.Context, path string, body any, headers map[string]string) (*client.Response, error)
}

type Notifier struct {
	records repository.RecordStore
	counter *capacity.Counter
	webhook Webhook
	log     *logger.Logger
}

// NewNotifier builds the task handlers. A nil webhook disables delivery and
// events are only logged.
func NewNotifier(records repository.RecordStore, counter *capacity.Counter, webhook Webhook, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Discard()
	}
	return &Notifier{
		records: records,
		counter: counter,
		webhook: webhook,
		log:     log.Component("notifier"),
	}
}

func (n *Notifier) Register(router *tasks.Router) {
	router.Register(tasks.TypeBookingCreated, n.BookingCreated)
	router.Register(tasks.TypeBookingCancelled, n.BookingCancelled)
	router.Register(tasks.TypeCounterSync, n.CounterSync)
}

func (n *Notifier) BookingCreated(ctx context.Context, task tasks.Task) error {
	var event tasks.BookingEvent
	if err := task.Decode(&event); err != nil {
		return err
	}

	n.log.Info("Booking confirmed",
		"task_id", task.ID,
		"booking_id", event.BookingID,
		"session_id", event.SessionID,
		"requester_id", event.RequesterID,
		"date", event.Date,
		"purpose", event.Purpose,
	)
	return n.deliver(ctx, task, event)
}

func (n *Notifier) BookingCancelled(ctx context.Context, task tasks.Task) error {
	var event tasks.BookingEvent
	if err := task.Decode(&event); err != nil {
		return err
	}

	n.log.Info("Booking cancelled",
		"task_id", task.ID,
		"booking_id", event.BookingID,
		"session_id", event.SessionID,
		"requester_id", event.RequesterID,
	)
	return n.deliver(ctx, task, event)
}

// CounterSync copies the fast-tier counter into the session record. A missing
// counter is left for the reconciler to reseed.
func (n *Notifier) CounterSync(ctx context.Context, task tasks.Task) error {
	var req tasks.CounterSync
	if err := task.Decode(&req); err != nil {
		return err
	}

	used, found, err := n.counter.Value(ctx, req.SessionID)
	if err != nil {
		return kafka.NewTransientError("read fast-tier counter", err)
	}
	if !found {
		n.log.Debug("No fast-tier counter to sync", "session_id", req.SessionID)
		return nil
	}

	if err := n.records.UpdateSessionUsed(ctx, req.SessionID, used); err != nil {
		if errors.Is(err, bookingserrors.ErrSessionNotFound) {
			return kafka.NewPermanentError(fmt.Sprintf("session %s", req.SessionID), err)
		}
		return kafka.NewTransientError("update session counter", err)
	}

	n.log.Debug("Session counter synced", "session_id", req.SessionID, "used", used)
	return nil
}

// deliver posts the event to the webhook. Receivers should dedupe on the
// event id header since a task may be delivered more than once.
func (n *Notifier) deliver(ctx context.Context, task tasks.Task, event tasks.BookingEvent) error {
	if n.webhook == nil {
		return nil
	}

	resp, err := n.webhook.POSTContext(ctx, "", event, map[string]string{
		HeaderEventID:   task.ID,
		HeaderEventType: task.Type,
	})
	if err != nil {
		return kafka.NewTransientError("webhook delivery", err)
	}

	switch status := resp.StatusCode; {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return kafka.NewTransientError("webhook delivery", fmt.Errorf("webhook responded %d: %s", status, client.GetErrorMessage(resp)))
	default:
		return kafka.NewPermanentError("webhook delivery", fmt.Errorf("webhook rejected event with %d: %s", status, client.GetErrorMessage(resp)))
	}
}
