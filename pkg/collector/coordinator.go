// Package collector runs the AI conversation that gathers a ticket's details
// from the contact before a human or the tenant's API takes over.
package collector

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

// Texts sent to the contact.
const (
	ApologyText        = "Desculpe, estou com dificuldades técnicas. Um atendente irá lhe contatar em breve."
	TurnLimitReason    = "Limite de turnos da IA atingido."
	confirmDispatched  = "Obrigado! Suas informações foram registradas e encaminhadas. Você receberá uma confirmação em breve."
	confirmForReview   = "Obrigado! Coletei todas as informações necessárias. Um atendente irá dar continuidade ao seu atendimento em breve."
	escalationTemplate = "⚠️ Escalado para atendente humano. Motivo: %s"
)

// TicketStore is the ticket persistence the coordinator needs. *ticket.Store
// implements it.
type TicketStore interface {
	Get(ctx context.Context, id uuid.UUID) (ticket.Ticket, error)
	CountAIMessages(ctx context.Context, ticketID uuid.UUID) (int, error)
	Messages(ctx context.Context, ticketID uuid.UUID) ([]ticket.Message, error)
	Transition(ctx context.Context, id uuid.UUID, u ticket.Update) (ticket.Ticket, error)
	AppendMessage(ctx context.Context, nm ticket.NewMessage) (ticket.Message, bool, error)
}

// TenantStore loads tenant settings. *tenant.Store implements it.
type TenantStore interface {
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

// DispatchScheduler queues the tenant API dispatch.
type DispatchScheduler interface {
	ScheduleDispatch(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error
}

// Settings are the process-wide AI defaults.
type Settings struct {
	MaxTurns           int
	Timeout            time.Duration
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// Coordinator runs one AI collection turn per invocation.
type Coordinator struct {
	tickets   TicketStore
	tenants   TenantStore
	processor Processor
	scheduler DispatchScheduler
	emitter   notify.Emitter
	deliverer ticket.Deliverer
	settings  Settings
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(tickets TicketStore, tenants TenantStore, processor Processor, scheduler DispatchScheduler,
	emitter notify.Emitter, deliverer ticket.Deliverer, settings Settings, logger *slog.Logger,
) *Coordinator {
	if settings.MaxTurns <= 0 {
		settings.MaxTurns = 8
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	return &Coordinator{
		tickets:   tickets,
		tenants:   tenants,
		processor: processor,
		scheduler: scheduler,
		emitter:   emitter,
		deliverer: deliverer,
		settings:  settings,
		logger:    logger,
	}
}

// Run performs one turn for the ticket. A ticket that is gone, closed or
// taken over by a human is left alone.
func (c *Coordinator) Run(ctx context.Context, ticketID uuid.UUID) error {
	logger := c.logger.With("ticket_id", ticketID)

	t, err := c.tickets.Get(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("ticket not found, skipping ai turn")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading ticket: %w", err)
	}
	if !t.Status.AcceptsAI() || t.AttendantID != nil {
		logger.Debug("ticket no longer in ai collection", "status", t.Status)
		return nil
	}

	turns, err := c.tickets.CountAIMessages(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("counting ai turns: %w", err)
	}
	if turns >= c.settings.MaxTurns {
		telemetry.AITurnsTotal.WithLabelValues("turn_limit").Inc()
		return c.escalate(ctx, logger, t, TurnLimitReason)
	}

	if t.Status == ticket.StatusPending {
		t, err = c.tickets.Transition(ctx, t.ID, ticket.Update{Status: ticket.Ptr(ticket.StatusAICollecting)})
		if err != nil {
			return fmt.Errorf("starting ai collection: %w", err)
		}
	}

	tn, err := c.tenants.Get(ctx, t.TenantID)
	if err != nil {
		return fmt.Errorf("loading tenant: %w", err)
	}

	msgs, err := c.tickets.Messages(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}

	result := c.turn(ctx, logger, c.request(tn, msgs))

	switch result.Kind {
	case KindComplete:
		return c.complete(ctx, logger, t, tn, result.Data)
	case KindEscalate:
		return c.escalate(ctx, logger, t, result.Text)
	default:
		return c.reply(ctx, t, result.Text)
	}
}

func (c *Coordinator) request(tn tenant.Tenant, msgs []ticket.Message) Request {
	req := Request{
		Prompt:      DefaultPrompt,
		Transcript:  Transcript(msgs),
		Temperature: c.settings.DefaultTemperature,
		MaxTokens:   c.settings.DefaultMaxTokens,
	}
	if tn.AI.Prompt != "" {
		req.Prompt = tn.AI.Prompt
	}
	if tn.AI.Temperature != nil {
		req.Temperature = *tn.AI.Temperature
	}
	if tn.AI.MaxTokens != nil {
		req.MaxTokens = *tn.AI.MaxTokens
	}
	return req
}

// Transcript converts the thread to model turns in creation order, skipping
// media and empty messages.
func Transcript(msgs []ticket.Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.HasMedia() || m.Content == "" {
			continue
		}
		role := RoleAgent
		if m.Direction == ticket.DirectionInbound {
			role = RoleContact
		}
		out = append(out, Turn{Role: role, Content: m.Content})
	}
	return out
}

// turn calls the processor. Failures become an apology message.
func (c *Coordinator) turn(ctx context.Context, logger *slog.Logger, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.processor.Process(ctx, req)
	telemetry.AITurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("ai turn failed", "error", err)
		telemetry.AITurnsTotal.WithLabelValues("error").Inc()
		return Result{Kind: KindMessage, Text: ApologyText}
	}

	result := ParseReply(raw)
	telemetry.AITurnsTotal.WithLabelValues(string(result.Kind)).Inc()
	return result
}

func (c *Coordinator) reply(ctx context.Context, t ticket.Ticket, text string) error {
	if err := c.say(ctx, t, ticket.SenderAI, text); err != nil {
		return err
	}
	c.emitter.Emit(ctx, t.Event(notify.ActionMessage))
	return nil
}

func (c *Coordinator) complete(ctx context.Context, logger *slog.Logger, t ticket.Ticket, tn tenant.Tenant, data map[string]any) error {
	dispatch := tn.Dispatch.Configured()
	status, confirm := ticket.StatusAwaitingReview, confirmForReview
	if dispatch {
		status, confirm = ticket.StatusSentAPI, confirmDispatched
	}

	t, err := c.tickets.Transition(ctx, t.ID, ticket.Update{Status: &status, CollectedData: data})
	if err != nil {
		return fmt.Errorf("completing collection: %w", err)
	}
	if dispatch {
		if err := c.scheduler.ScheduleDispatch(ctx, t.ID, 0); err != nil {
			// The reconciler picks up sent_api tickets left without a task.
			logger.Error("scheduling dispatch", "error", err)
		}
	}

	if err := c.say(ctx, t, ticket.SenderAI, confirm); err != nil {
		return err
	}
	logger.Info("ai collection complete", "dispatch", dispatch)
	c.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return nil
}

func (c *Coordinator) escalate(ctx context.Context, logger *slog.Logger, t ticket.Ticket, reason string) error {
	t, err := c.tickets.Transition(ctx, t.ID, ticket.Update{Status: ticket.Ptr(ticket.StatusAwaitingReview)})
	if err != nil {
		return fmt.Errorf("escalating ticket: %w", err)
	}
	if err := c.say(ctx, t, ticket.SenderSystem, fmt.Sprintf(escalationTemplate, reason)); err != nil {
		return err
	}

	logger.Info("ticket escalated to a human", "reason", reason)
	ev := t.Event(notify.ActionEscalated)
	ev.Reason = reason
	c.emitter.Emit(ctx, ev)
	return nil
}

// say appends an outbound message and delivers it to the contact.
func (c *Coordinator) say(ctx context.Context, t ticket.Ticket, sender ticket.SenderType, text string) error {
	if _, _, err := c.tickets.AppendMessage(ctx, ticket.NewMessage{
		TicketID:   t.ID,
		Direction:  ticket.DirectionOutbound,
		SenderType: sender,
		Content:    text,
	}); err != nil {
		return fmt.Errorf("appending %s message: %w", sender, err)
	}
	c.deliverer.Deliver(ctx, t, text)
	return nil
}
