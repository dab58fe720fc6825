package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
)

// Handler runs one task for a ticket. Handlers schedule their own follow-up
// work; the runner never retries a returned error.
type Handler func(ctx context.Context, ticketID uuid.UUID) error

// Claimer is the queue side the runner needs. *Queue implements it.
type Claimer interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]Task, error)
	Schedule(ctx context.Context, t Task, delay time.Duration) error
}

// TicketLocker is the lock side the runner needs. *Locker implements it.
type TicketLocker interface {
	TryLock(ctx context.Context, ticketID uuid.UUID) (release func(), ok bool, err error)
}

const (
	// contendedDelay is how long a task waits when its ticket is locked.
	contendedDelay = 2 * time.Second

	drainTimeout = 30 * time.Second
)

// Runner polls the queue and executes due tasks on a bounded pool.
type Runner struct {
	queue    Claimer
	locker   TicketLocker
	handlers map[Kind]Handler
	pool     *ants.Pool
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner with size workers polling every interval.
func NewRunner(queue Claimer, locker TicketLocker, size int, interval time.Duration, logger *slog.Logger) (*Runner, error) {
	if size <= 0 {
		size = 16
	}
	if interval <= 0 {
		interval = time.Second
	}
	r := &Runner{
		queue:    queue,
		locker:   locker,
		handlers: make(map[Kind]Handler),
		interval: interval,
		logger:   logger,
	}

	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			r.logger.Error("task panicked", "panic", p)
			telemetry.TasksProcessedTotal.WithLabelValues("unknown", "panic").Inc()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// Handle registers the handler for a task kind.
func (r *Runner) Handle(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Run polls until ctx is cancelled, then waits for in-flight tasks.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("task runner started", "workers", r.pool.Cap(), "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.pool.ReleaseTimeout(drainTimeout); err != nil {
				r.logger.Warn("task runner drain timed out", "error", err)
			}
			r.logger.Info("task runner stopped")
			return nil
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll claims as many due tasks as there are idle workers.
func (r *Runner) poll(ctx context.Context) {
	tasks, err := r.queue.Claim(ctx, time.Now(), r.pool.Free())
	if err != nil {
		r.logger.Error("claiming tasks", "error", err)
		return
	}

	// In-flight work finishes even when shutdown cancels ctx.
	execCtx := context.WithoutCancel(ctx)
	for _, t := range tasks {
		if err := r.pool.Submit(func() { r.execute(execCtx, t) }); err != nil {
			r.logger.Warn("worker pool full, requeueing task", "task", t.Member(), "error", err)
			r.requeue(execCtx, t, r.interval)
		}
	}
}

// execute runs one task under its ticket lock.
func (r *Runner) execute(ctx context.Context, t Task) {
	h, ok := r.handlers[t.Kind]
	if !ok {
		r.logger.Error("no handler for task kind", "task", t.Member())
		telemetry.TasksProcessedTotal.WithLabelValues(string(t.Kind), "unhandled").Inc()
		return
	}

	release, locked, err := r.locker.TryLock(ctx, t.TicketID)
	if err != nil {
		r.logger.Error("locking ticket", "task", t.Member(), "error", err)
		r.requeue(ctx, t, contendedDelay)
		return
	}
	if !locked {
		telemetry.TasksProcessedTotal.WithLabelValues(string(t.Kind), "contended").Inc()
		r.requeue(ctx, t, contendedDelay)
		return
	}
	defer release()

	logger := r.logger.With("task", t.Kind, "ticket_id", t.TicketID)
	if err := h(ctx, t.TicketID); err != nil {
		logger.Error("task failed", "error", err)
		telemetry.TasksProcessedTotal.WithLabelValues(string(t.Kind), "error").Inc()
		return
	}
	logger.Debug("task completed")
	telemetry.TasksProcessedTotal.WithLabelValues(string(t.Kind), "ok").Inc()
}

func (r *Runner) requeue(ctx context.Context, t Task, delay time.Duration) {
	if err := r.queue.Schedule(ctx, t, delay); err != nil {
		r.logger.Error("requeueing task", "task", t.Member(), "error", err)
	}
}
