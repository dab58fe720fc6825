package evolution

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

// ChannelLookup loads channels by id. *tenant.Store implements it.
type ChannelLookup interface {
	GetChannel(ctx context.Context, id uuid.UUID) (tenant.Channel, error)
}

// Deliverer sends ticket replies over the ticket's WhatsApp channel. A
// channel without its own API URL or token uses the process defaults.
type Deliverer struct {
	client       *Client
	channels     ChannelLookup
	defaultURL   string
	defaultToken string
	logger       *slog.Logger
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(client *Client, channels ChannelLookup, defaultURL, defaultToken string, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		client:       client,
		channels:     channels,
		defaultURL:   defaultURL,
		defaultToken: defaultToken,
		logger:       logger,
	}
}

// Deliver implements ticket.Deliverer. Failures are logged only.
func (d *Deliverer) Deliver(ctx context.Context, t ticket.Ticket, text string) {
	logger := d.logger.With("ticket_id", t.ID)
	if t.ChannelID == nil {
		logger.Debug("ticket has no whatsapp channel, not delivering")
		return
	}

	ch, err := d.channels.GetChannel(ctx, *t.ChannelID)
	if err != nil {
		logger.Warn("loading channel for delivery", "channel_id", *t.ChannelID, "error", err)
		return
	}

	apiURL, token := ch.APIURL, ch.APIToken
	if apiURL == "" {
		apiURL = d.defaultURL
	}
	if token == "" {
		token = d.defaultToken
	}
	if apiURL == "" {
		logger.Debug("no Evolution API URL configured, not delivering", "channel", ch.InstanceKey)
		return
	}

	if err := d.client.SendText(ctx, apiURL, token, ch.InstanceKey, t.ContactPhone, text); err != nil {
		logger.Warn("delivering whatsapp message", "channel", ch.InstanceKey, "error", err)
		return
	}
	logger.Debug("delivered whatsapp message", "channel", ch.InstanceKey)
}
