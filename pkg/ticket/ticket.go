// Package ticket holds the service request model, its message thread and the
// lifecycle operations shared by ingestion, AI collection and dispatch.
package ticket

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/notify"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAICollecting    Status = "ai_collecting"
	StatusAwaitingReview  Status = "awaiting_review"
	StatusInProgress      Status = "in_progress"
	StatusConfirmedManual Status = "confirmed_manual"
	StatusSentAPI         Status = "sent_api"
	StatusResolved        Status = "resolved"
	StatusFailed          Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAICollecting, StatusAwaitingReview, StatusInProgress,
		StatusConfirmedManual, StatusSentAPI, StatusResolved, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic processing happens.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResolved, StatusFailed:
		return true
	case StatusPending, StatusAICollecting, StatusAwaitingReview, StatusInProgress,
		StatusConfirmedManual, StatusSentAPI:
		return false
	}
	return false
}

// AcceptsAI reports whether the AI collector may act in this status.
func (s Status) AcceptsAI() bool {
	switch s {
	case StatusPending, StatusAICollecting:
		return true
	case StatusAwaitingReview, StatusInProgress, StatusConfirmedManual,
		StatusSentAPI, StatusResolved, StatusFailed:
		return false
	}
	return false
}

// CanRedispatch reports whether an admin may send the ticket to the tenant
// API again from this status.
func (s Status) CanRedispatch() bool {
	switch s {
	case StatusAwaitingReview, StatusConfirmedManual, StatusFailed:
		return true
	case StatusPending, StatusAICollecting, StatusInProgress, StatusSentAPI, StatusResolved:
		return false
	}
	return false
}

// Origin is the channel a ticket arrived through.
type Origin string

const (
	OriginWhatsApp Origin = "whatsapp"
	OriginVoIP     Origin = "voip"
	OriginManual   Origin = "manual"
)

// Direction of a message relative to the tenant.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderContact   SenderType = "contact"
	SenderAttendant SenderType = "attendant"
	SenderAI        SenderType = "ai"
	SenderSystem    SenderType = "system"
)

// MediaType classifies a message attachment.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

var (
	// ErrClosed is returned for an action on a resolved or failed ticket.
	ErrClosed = errors.New("ticket is closed")

	// ErrForbidden is returned when a ticket belongs to another tenant.
	ErrForbidden = errors.New("ticket belongs to another tenant")

	// ErrIllegalTransition is returned when a requested transition is not
	// allowed from the ticket's current status.
	ErrIllegalTransition = errors.New("transition not allowed from current status")

	// ErrNoIntegration is returned when a ticket is sent to a tenant that
	// has no API integration configured.
	ErrNoIntegration = errors.New("tenant has no api integration")
)

// Ticket is a service request.
type Ticket struct {
	ID               uuid.UUID      `json:"id"`
	TenantID         uuid.UUID      `json:"tenant_id"`
	ChannelID        *uuid.UUID     `json:"channel_id"`
	AttendantID      *uuid.UUID     `json:"attendant_id"`
	ContactName      string         `json:"contact_name"`
	ContactPhone     string         `json:"contact_phone"`
	InitialMessage   string         `json:"initial_message"`
	Status           Status         `json:"status"`
	UrgencyLevel     urgency.Level  `json:"urgency_level"`
	UrgencyKeywords  []string       `json:"urgency_keywords"`
	Origin           Origin         `json:"origin"`
	CollectedData    map[string]any `json:"collected_data,omitempty"`
	APIResponse      map[string]any `json:"api_response,omitempty"`
	APISentAt        *time.Time     `json:"api_sent_at,omitempty"`
	APIAttempts      int            `json:"api_attempts"`
	ExternalTicketID string         `json:"external_ticket_id,omitempty"`
	AttendedAt       *time.Time     `json:"attended_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Event snapshots the ticket for listeners.
func (t Ticket) Event(action notify.Action) notify.Event {
	return notify.Event{
		Action:       action,
		TenantID:     t.TenantID,
		TicketID:     t.ID,
		Status:       string(t.Status),
		UrgencyLevel: string(t.UrgencyLevel),
		ContactName:  t.ContactName,
		ContactPhone: t.ContactPhone,
		AttendantID:  t.AttendantID,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Message is one entry in a ticket's thread.
type Message struct {
	ID                uuid.UUID  `json:"id"`
	TicketID          uuid.UUID  `json:"ticket_id"`
	Direction         Direction  `json:"direction"`
	SenderType        SenderType `json:"sender_type"`
	SenderID          *uuid.UUID `json:"sender_id,omitempty"`
	Content           string     `json:"content"`
	MediaURL          string     `json:"media_url,omitempty"`
	MediaType         MediaType  `json:"media_type,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	IsRead            bool       `json:"is_read"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HasMedia reports whether the message carries an attachment.
func (m Message) HasMedia() bool { return m.MediaURL != "" }

// NewTicket holds the fields for creating a ticket.
type NewTicket struct {
	TenantID       uuid.UUID
	ChannelID      *uuid.UUID
	ContactName    string
	ContactPhone   string
	InitialMessage string
	Origin         Origin
	Notes          string
}

// NewMessage holds the fields for appending a message.
type NewMessage struct {
	TicketID          uuid.UUID
	Direction         Direction
	SenderType        SenderType
	SenderID          *uuid.UUID
	Content           string
	MediaURL          string
	MediaType         MediaType
	ProviderMessageID string
	IsRead            bool
}

// Update lists the fields a transition sets. Nil fields are left untouched.
type Update struct {
	Status           *Status
	UrgencyLevel     *urgency.Level
	UrgencyKeywords  []string
	CollectedData    map[string]any
	APIResponse      map[string]any
	APISentAt        *time.Time
	ExternalTicketID *string
	AttendantID      *uuid.UUID
	Notes            *string
	ResetAttempts    bool
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// NormalizePhone keeps the digits of phone behind a "+", so "+55 (11)
// 99999-0001" and "5511999990001" name the same contact. It returns "" when
// phone has no digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// Stats are the dashboard counters for one tenant.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Urgent   int `json:"urgent"`
	Resolved int `json:"resolved"`
}

// Deliverer sends outbound text to the contact over WhatsApp. Delivery is
// best-effort and failures are handled by the implementation.
type Deliverer interface {
	Deliver(ctx context.Context, t Ticket, text string)
}

// Scheduler defers coordinator work for a ticket.
type Scheduler interface {
	ScheduleCollect(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error
	ScheduleDispatch(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error
}
