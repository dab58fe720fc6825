package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
)

// ErrQueueFull is returned by Async.Notify when the buffer is full and the
// event was dropped.
var ErrQueueFull = errors.New("notification queue full")

// Async hands events to a slow sink through a bounded buffer drained by
// Run. Notify never waits on the wrapped sink, so callers on a request
// path are not held by a third-party API.
type Async struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsync wraps sink with a buffer of size events. Each delivery runs
// with its own timeout, detached from the caller's context.
func NewAsync(sink Sink, size int, timeout time.Duration, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{
		sink:    sink,
		queue:   make(chan Event, size),
		timeout: timeout,
		logger:  logger,
	}
}

func (a *Async) Name() string { return a.sink.Name() }

// Notify queues the event. It fails only when the buffer is full.
func (a *Async) Notify(_ context.Context, e Event) error {
	select {
	case a.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// already buffered.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-a.queue:
					a.deliver(e)
				default:
					return nil
				}
			}
		case e := <-a.queue:
			a.deliver(e)
		}
	}
}

func (a *Async) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.sink.Notify(ctx, e); err != nil {
		a.logger.Warn("delivering queued notification",
			"sink", a.sink.Name(),
			"action", e.Action,
			"ticket_id", e.TicketID,
			"error", err,
		)
		telemetry.NotificationsTotal.WithLabelValues(string(e.Action), a.sink.Name(), "failed").Inc()
	}
}
