package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
	"github.com/pwviptbl/CallCenter/pkg/keyword"
	"github.com/pwviptbl/CallCenter/pkg/notify"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
)

// Outcome labels how a delivery was handled.
type Outcome string

const (
	OutcomeProcessed      Outcome = "processed"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeFromMe         Outcome = "from_me"
	OutcomeEmpty          Outcome = "empty"
	OutcomeUnknownChannel Outcome = "unknown_channel"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeConnection     Outcome = "connection"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeError          Outcome = "error"
)

// ChannelStore resolves provider instances. *tenant.Store implements it.
type ChannelStore interface {
	ChannelByInstanceKey(ctx context.Context, instanceKey string) (tenant.Channel, error)
	UpdateChannelStatus(ctx context.Context, instanceKey string, status tenant.ChannelStatus) error
}

// TicketStore is the ticket persistence the ingestor needs. *ticket.Store
// implements it.
type TicketStore interface {
	ResolveOpen(ctx context.Context, nt ticket.NewTicket) (ticket.Ticket, bool, error)
	AppendMessage(ctx context.Context, nm ticket.NewMessage) (ticket.Message, bool, error)
	Transition(ctx context.Context, id uuid.UUID, u ticket.Update) (ticket.Ticket, error)
}

// CollectScheduler queues AI collection turns.
type CollectScheduler interface {
	ScheduleCollect(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error
}

// Ingestor turns webhook deliveries into ticket state.
type Ingestor struct {
	channels  ChannelStore
	tickets   TicketStore
	dedup     *Deduplicator
	analyzer  keyword.Analyzer
	policy    urgency.Policy
	emitter   notify.Emitter
	scheduler CollectScheduler
	logger    *slog.Logger
}

// IngestorConfig holds the Ingestor collaborators. Dedup is optional.
type IngestorConfig struct {
	Channels  ChannelStore
	Tickets   TicketStore
	Dedup     *Deduplicator
	Analyzer  keyword.Analyzer
	Policy    urgency.Policy
	Emitter   notify.Emitter
	Scheduler CollectScheduler
	Logger    *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	return &Ingestor{
		channels:  cfg.Channels,
		tickets:   cfg.Tickets,
		dedup:     cfg.Dedup,
		analyzer:  cfg.Analyzer,
		policy:    cfg.Policy,
		emitter:   cfg.Emitter,
		scheduler: cfg.Scheduler,
		logger:    cfg.Logger,
	}
}

// Ingest applies one webhook delivery. An error means the delivery was
// accepted but could not be fully applied; it is never reported to the
// provider.
func (in *Ingestor) Ingest(ctx context.Context, p Payload) (Outcome, error) {
	switch p.Event {
	case EventMessagesUpsert:
	case EventConnectionUpdate:
		return in.connectionUpdate(ctx, p)
	default:
		return OutcomeIgnored, nil
	}

	if p.Data.Key.FromMe {
		return OutcomeFromMe, nil
	}
	msg := p.Inbound()
	if msg.Text == "" || msg.Phone == "" {
		return OutcomeEmpty, nil
	}

	ch, err := in.channels.ChannelByInstanceKey(ctx, msg.Instance)
	if errors.Is(err, pgx.ErrNoRows) {
		in.logger.Warn("webhook for unknown or inactive channel", "instance", msg.Instance)
		return OutcomeUnknownChannel, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("resolving channel: %w", err)
	}

	logger := in.logger.With("tenant_id", ch.TenantID, "instance", ch.InstanceKey)

	if in.dedup != nil {
		seen, err := in.dedup.Seen(ctx, ch.TenantID, msg.MessageID)
		if err != nil {
			logger.Warn("dedup check failed, relying on message index", "error", err)
		} else if seen {
			telemetry.MessagesDeduplicatedTotal.Inc()
			return OutcomeDuplicate, nil
		}
	}

	t, created, err := in.tickets.ResolveOpen(ctx, ticket.NewTicket{
		TenantID:       ch.TenantID,
		ChannelID:      &ch.ID,
		ContactName:    msg.ContactName,
		ContactPhone:   msg.Phone,
		InitialMessage: msg.Text,
		Origin:         ticket.OriginWhatsApp,
	})
	if err != nil {
		return OutcomeError, fmt.Errorf("resolving ticket: %w", err)
	}
	logger = logger.With("ticket_id", t.ID)
	if created {
		telemetry.TicketsCreatedTotal.WithLabelValues(string(ticket.OriginWhatsApp)).Inc()
		logger.Info("ticket created", "contact_phone", t.ContactPhone)
		in.emitter.Emit(ctx, t.Event(notify.ActionCreated))
	}

	_, inserted, err := in.tickets.AppendMessage(ctx, ticket.NewMessage{
		TicketID:          t.ID,
		Direction:         ticket.DirectionInbound,
		SenderType:        ticket.SenderContact,
		Content:           msg.Text,
		MediaType:         msg.MediaType,
		ProviderMessageID: msg.MessageID,
	})
	if err != nil {
		return OutcomeError, fmt.Errorf("appending message: %w", err)
	}
	if !inserted {
		telemetry.MessagesDeduplicatedTotal.Inc()
		return OutcomeDuplicate, nil
	}
	if in.dedup != nil {
		in.dedup.Remember(ctx, ch.TenantID, msg.MessageID)
	}

	t = in.rescore(ctx, logger, t, msg.Text)

	if t.AttendantID == nil && t.Status.AcceptsAI() {
		if err := in.scheduler.ScheduleCollect(ctx, t.ID, 0); err != nil {
			logger.Error("scheduling ai collection", "error", err)
		}
	}
	return OutcomeProcessed, nil
}

// rescore folds the message's keyword matches into the ticket. Keywords
// only accumulate and the level never drops.
func (in *Ingestor) rescore(ctx context.Context, logger *slog.Logger, t ticket.Ticket, text string) ticket.Ticket {
	analysis, err := in.analyzer.Analyze(ctx, t.TenantID, text)
	if err != nil {
		logger.Warn("urgency analysis failed", "error", err)
		return t
	}

	level := in.policy.Escalate(t.UrgencyLevel, analysis.MaxPriority)
	keywords, added := urgency.MergeKeywords(t.UrgencyKeywords, analysis.Keywords())
	escalated := level != t.UrgencyLevel
	if !escalated && !added {
		return t
	}

	u := ticket.Update{UrgencyKeywords: keywords}
	if escalated {
		u.UrgencyLevel = &level
	}
	updated, err := in.tickets.Transition(ctx, t.ID, u)
	if err != nil {
		logger.Error("updating ticket urgency", "error", err)
		return t
	}

	if escalated {
		telemetry.UrgencyEscalationsTotal.WithLabelValues(string(level)).Inc()
		logger.Info("ticket urgency raised", "from", t.UrgencyLevel, "to", level, "keywords", keywords)
		in.emitter.Emit(ctx, updated.Event(notify.ActionUrgency))
	}
	return updated
}

func (in *Ingestor) connectionUpdate(ctx context.Context, p Payload) (Outcome, error) {
	status, ok := tenant.ChannelStatusFromProvider(p.Data.State)
	if !ok {
		in.logger.Debug("ignoring unknown connection state", "instance", p.Instance, "state", p.Data.State)
		return OutcomeIgnored, nil
	}
	err := in.channels.UpdateChannelStatus(ctx, p.Instance, status)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeUnknownChannel, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("updating channel status: %w", err)
	}
	in.logger.Info("channel status changed", "instance", p.Instance, "status", status)
	return OutcomeConnection, nil
}
