package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	goslack "github.com/slack-go/slack"
)

// SlackChannelLookup returns a tenant's Slack channel, or "" if it has none.
type SlackChannelLookup interface {
	SlackChannel(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// SlackSink posts escalations and critical tickets to Slack.
type SlackSink struct {
	client   *goslack.Client
	channels SlackChannelLookup
	fallback string
	logger   *slog.Logger
}

// slackTimeout bounds one Slack API call; goslack's default client has none.
const slackTimeout = 10 * time.Second

// NewSlackSink creates a SlackSink. It returns nil when botToken is empty.
// Wrap it in an Async before putting it on a request path.
func NewSlackSink(botToken, fallbackChannel string, channels SlackChannelLookup, logger *slog.Logger, opts ...goslack.Option) *SlackSink {
	if botToken == "" {
		return nil
	}
	opts = append([]goslack.Option{goslack.OptionHTTPClient(&http.Client{Timeout: slackTimeout})}, opts...)
	return &SlackSink{
		client:   goslack.New(botToken, opts...),
		channels: channels,
		fallback: fallbackChannel,
		logger:   logger,
	}
}

func (s *SlackSink) Name() string { return "slack" }

// Wants reports whether an event is worth a Slack post.
func Wants(e Event) bool {
	switch e.Action {
	case ActionEscalated:
		return true
	case ActionUrgency:
		return e.UrgencyLevel == "critical"
	default:
		return false
	}
}

// Notify implements Sink.
func (s *SlackSink) Notify(ctx context.Context, e Event) error {
	if !Wants(e) {
		return nil
	}

	channel := s.fallback
	if s.channels != nil {
		c, err := s.channels.SlackChannel(ctx, e.TenantID)
		if err != nil {
			s.logger.Warn("looking up tenant slack channel", "tenant_id", e.TenantID, "error", err)
		} else if c != "" {
			channel = c
		}
	}
	if channel == "" {
		s.logger.Debug("no slack channel for tenant, skipping", "tenant_id", e.TenantID)
		return nil
	}

	title := slackTitle(e)
	_, ts, err := s.client.PostMessageContext(ctx, channel,
		goslack.MsgOptionBlocks(slackBlocks(title, e)...),
		goslack.MsgOptionText(title, false),
	)
	if err != nil {
		return fmt.Errorf("posting ticket to slack: %w", err)
	}

	s.logger.Info("posted ticket to slack",
		"ticket_id", e.TicketID,
		"action", e.Action,
		"channel", channel,
		"ts", ts,
	)
	return nil
}

func slackTitle(e Event) string {
	name := e.ContactName
	if name == "" {
		name = e.ContactPhone
	}
	if e.Action == ActionEscalated {
		return "⚠️ Chamado escalado: " + name
	}
	return "🔴 Chamado crítico: " + name
}

func slackBlocks(title string, e Event) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, title, true, false),
	)

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Telefone:* %s", e.ContactPhone), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Status:* %s", e.Status), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Urgência:* %s", e.UrgencyLevel), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Chamado:* `%s`", e.TicketID), false, false),
	}

	blocks := []goslack.Block{header, goslack.NewSectionBlock(nil, fields, nil)}
	if e.Reason != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, "*Motivo:* "+truncate(e.Reason, 500), false, false),
			nil, nil,
		))
	}
	return blocks
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
