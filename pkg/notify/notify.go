// Package notify fans ticket state changes out to listeners: a Redis
// pub/sub channel per tenant, websocket clients and Slack.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
)

// Action names the kind of change an Event reports.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionMessage   Action = "message"
	ActionUrgency   Action = "urgency"
	ActionEscalated Action = "escalated"
)

// Event is a snapshot of a ticket after an externally visible mutation.
type Event struct {
	Action       Action
	TenantID     uuid.UUID
	TicketID     uuid.UUID
	Status       string
	UrgencyLevel string
	ContactName  string
	ContactPhone string
	AttendantID  *uuid.UUID
	UpdatedAt    time.Time

	// Reason is set for escalations.
	Reason string
}

// Payload is the listener-facing body of an event.
type Payload struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	UrgencyLevel string     `json:"urgency_level"`
	ContactName  string     `json:"contact_name"`
	ContactPhone string     `json:"contact_phone"`
	AttendantID  *uuid.UUID `json:"attendant_id"`
	UpdatedAt    string     `json:"updated_at"`
	Action       Action     `json:"action"`
}

// Payload returns the listener-facing body.
func (e Event) Payload() Payload {
	return Payload{
		ID:           e.TicketID,
		Status:       e.Status,
		UrgencyLevel: e.UrgencyLevel,
		ContactName:  e.ContactName,
		ContactPhone: e.ContactPhone,
		AttendantID:  e.AttendantID,
		UpdatedAt:    e.UpdatedAt.UTC().Format(time.RFC3339),
		Action:       e.Action,
	}
}

// Name is the event name listeners subscribe to, e.g. "service-request.updated".
func (e Event) Name() string {
	return "service-request." + string(e.Action)
}

// Topic is the per-tenant channel an event is published on.
func Topic(tenantID uuid.UUID) string {
	return "company." + tenantID.String()
}

// Emitter publishes events. Delivery is best-effort: Emit never fails and
// callers never depend on delivery succeeding.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Sink is one delivery target.
type Sink interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// Multi delivers each event to every sink in order.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti creates a Multi over the given sinks. Nil sinks are skipped.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit implements Emitter.
func (m *Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m.sinks {
		result := "ok"
		if err := s.Notify(ctx, e); err != nil {
			result = "error"
			m.logger.Warn("delivering notification",
				"sink", s.Name(),
				"action", e.Action,
				"ticket_id", e.TicketID,
				"error", err,
			)
		}
		telemetry.NotificationsTotal.WithLabelValues(string(e.Action), s.Name(), result).Inc()
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
