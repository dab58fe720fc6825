package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// StaleSource lists sent_api tickets of integrated tenants that have not
// moved since before. *ticket.Store implements it.
type StaleSource interface {
	ListStaleDispatches(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// DispatchScheduler enqueues a dispatch unless one is already queued.
// *Queue implements it.
type DispatchScheduler interface {
	EnsureDispatch(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

const (
	staleAfter     = 10 * time.Minute
	reconcileBatch = 200
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Reconciler periodically re-enqueues dispatch for sent_api tickets whose
// queue entry was lost. Tickets still queued, for example waiting out a
// retry backoff, keep their due time.
type Reconciler struct {
	source StaleSource
	sched  DispatchScheduler
	cron   *cron.Cron
	logger *slog.Logger
}

// NewReconciler creates a Reconciler running on the given cron spec, for
// example "@every 5m".
func NewReconciler(source StaleSource, sched DispatchScheduler, spec string, logger *slog.Logger) (*Reconciler, error) {
	r := &Reconciler{source: source, sched: sched, logger: logger}
	cl := cronLogger{logger}
	r.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := r.cron.AddFunc(spec, func() {
		if _, err := r.Reconcile(context.Background()); err != nil {
			r.logger.Error("reconciling stranded dispatches", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("parsing reconcile schedule %q: %w", spec, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("reconciler started")
	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info("reconciler stopped")
	return nil
}

// Reconcile re-enqueues one batch and returns how many were added.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	ids, err := r.source.ListStaleDispatches(ctx, time.Now().Add(-staleAfter), reconcileBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		added, err := r.sched.EnsureDispatch(ctx, id)
		if err != nil {
			r.logger.Warn("re-enqueueing dispatch", "ticket_id", id, "error", err)
			continue
		}
		if added {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("re-enqueued stranded dispatches", "count", n)
	}
	return n, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
