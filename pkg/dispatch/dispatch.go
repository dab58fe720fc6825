// Package dispatch forwards completed tickets to the tenant's own ticketing
// API with bounded retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
	"github.com/pwviptbl/CallCenter/pkg/notify"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

// ErrNoIntegration is returned when the tenant has no usable API integration.
var ErrNoIntegration = errors.New("no API integration configured")

const (
	successText = "✅ Chamado registrado no sistema da empresa com sucesso."
	failureText = "❌ Falha ao enviar para API da empresa após %d tentativas: %s"
)

// DefaultBackoff is the delay before the second, third and later attempts.
var DefaultBackoff = []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

// TicketStore is the ticket persistence the coordinator needs. *ticket.Store
// implements it.
type TicketStore interface {
	Get(ctx context.Context, id uuid.UUID) (ticket.Ticket, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Transition(ctx context.Context, id uuid.UUID, u ticket.Update) (ticket.Ticket, error)
	AppendMessage(ctx context.Context, nm ticket.NewMessage) (ticket.Message, bool, error)
}

// TenantStore loads tenant settings. *tenant.Store implements it.
type TenantStore interface {
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

// Scheduler queues the next attempt.
type Scheduler interface {
	ScheduleDispatch(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error
}

// Settings bound the retry loop.
type Settings struct {
	MaxAttempts int
	Backoff     []time.Duration
	// Timeout bounds a single call to the tenant API.
	Timeout time.Duration
}

// Coordinator runs one dispatch attempt per invocation. The attempt counter
// lives on the ticket row so retries survive restarts.
type Coordinator struct {
	tickets   TicketStore
	tenants   TenantStore
	caller    Caller
	scheduler Scheduler
	emitter   notify.Emitter
	deliverer ticket.Deliverer
	settings  Settings
	logger    *slog.Logger
	now       func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(tickets TicketStore, tenants TenantStore, caller Caller, scheduler Scheduler,
	emitter notify.Emitter, deliverer ticket.Deliverer, settings Settings, logger *slog.Logger,
) *Coordinator {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	if len(settings.Backoff) == 0 {
		settings.Backoff = DefaultBackoff
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	return &Coordinator{
		tickets:   tickets,
		tenants:   tenants,
		caller:    caller,
		scheduler: scheduler,
		emitter:   emitter,
		deliverer: deliverer,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one attempt for the ticket. Only bookkeeping failures are
// returned; tenant API failures are retried or recorded on the ticket.
func (c *Coordinator) Run(ctx context.Context, ticketID uuid.UUID) error {
	logger := c.logger.With("ticket_id", ticketID)

	t, err := c.tickets.Get(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("ticket not found, skipping dispatch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading ticket: %w", err)
	}
	if t.Status.IsTerminal() {
		logger.Debug("ticket already closed, skipping dispatch", "status", t.Status)
		return nil
	}

	tn, err := c.tenants.Get(ctx, t.TenantID)
	if err != nil {
		return fmt.Errorf("loading tenant: %w", err)
	}
	if !tn.Dispatch.Configured() {
		telemetry.DispatchAttemptsTotal.WithLabelValues("no_integration").Inc()
		return ErrNoIntegration
	}

	attempt, err := c.tickets.IncrementAttempts(ctx, t.ID)
	if err != nil {
		return err
	}
	logger = logger.With("attempt", attempt, "tenant_id", tn.ID)

	callCtx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	resp, callErr := c.caller.Call(callCtx, tn.ID.String(), tn.Dispatch, NewPayload(t))
	cancel()

	if callErr == nil {
		telemetry.DispatchAttemptsTotal.WithLabelValues("success").Inc()
		return c.succeed(ctx, logger, t, resp)
	}

	if attempt >= c.settings.MaxAttempts {
		telemetry.DispatchAttemptsTotal.WithLabelValues("failed").Inc()
		return c.fail(ctx, logger, t, attempt, callErr)
	}

	telemetry.DispatchAttemptsTotal.WithLabelValues("retry").Inc()
	delay := c.backoff(attempt)
	logger.Warn("dispatch attempt failed, retrying", "error", callErr, "retry_in", delay)
	if err := c.scheduler.ScheduleDispatch(ctx, t.ID, delay); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return nil
}

// backoff returns the delay after the given failed attempt.
func (c *Coordinator) backoff(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(c.settings.Backoff) {
		i = len(c.settings.Backoff) - 1
	}
	if i < 0 {
		i = 0
	}
	return c.settings.Backoff[i]
}

func (c *Coordinator) succeed(ctx context.Context, logger *slog.Logger, t ticket.Ticket, resp Response) error {
	externalID := ExternalID(resp.Body)
	sentAt := c.now().UTC()

	u := ticket.Update{
		Status:      ticket.Ptr(ticket.StatusResolved),
		APIResponse: resp.Body,
		APISentAt:   &sentAt,
	}
	if externalID != "" {
		u.ExternalTicketID = &externalID
	}
	t, err := c.tickets.Transition(ctx, t.ID, u)
	if err != nil {
		return fmt.Errorf("recording dispatch success: %w", err)
	}

	text := successText
	if externalID != "" {
		text += " Protocolo: " + externalID
	}
	if err := c.system(ctx, t, text); err != nil {
		return err
	}

	logger.Info("ticket dispatched", "status_code", resp.StatusCode, "external_ticket_id", externalID)
	c.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return nil
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, t ticket.Ticket, attempts int, callErr error) error {
	record := map[string]any{"error": callErr.Error(), "status_code": nil}
	var se *StatusError
	if errors.As(callErr, &se) {
		record["status_code"] = se.StatusCode
	}

	t, err := c.tickets.Transition(ctx, t.ID, ticket.Update{
		Status:      ticket.Ptr(ticket.StatusFailed),
		APIResponse: record,
	})
	if err != nil {
		return fmt.Errorf("recording dispatch failure: %w", err)
	}
	if err := c.system(ctx, t, fmt.Sprintf(failureText, attempts, callErr)); err != nil {
		return err
	}

	logger.Error("dispatch failed permanently", "error", callErr)
	c.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return nil
}

func (c *Coordinator) system(ctx context.Context, t ticket.Ticket, text string) error {
	if _, _, err := c.tickets.AppendMessage(ctx, ticket.NewMessage{
		TicketID:   t.ID,
		Direction:  ticket.DirectionOutbound,
		SenderType: ticket.SenderSystem,
		Content:    text,
	}); err != nil {
		return fmt.Errorf("appending system message: %w", err)
	}
	c.deliverer.Deliver(ctx, t, text)
	return nil
}
