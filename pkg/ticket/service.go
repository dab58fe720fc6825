package ticket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
	"github.com/pwviptbl/CallCenter/pkg/notify"
)

// CreateRequest is the JSON body for POST /api/v1/tickets.
type CreateRequest struct {
	ContactName    string `json:"contact_name" validate:"required,max=255"`
	ContactPhone   string `json:"contact_phone" validate:"required,phone"`
	InitialMessage string `json:"initial_message" validate:"required"`
	Notes          string `json:"notes"`
}

// AssignRequest is the JSON body for POST /api/v1/tickets/{id}/assign.
type AssignRequest struct {
	AttendantID uuid.UUID `json:"attendant_id" validate:"required"`
}

// StatusRequest is the JSON body for PATCH /api/v1/tickets/{id}/status.
type StatusRequest struct {
	Status Status  `json:"status" validate:"required,oneof=pending ai_collecting awaiting_review in_progress confirmed_manual sent_api resolved failed"`
	Notes  *string `json:"notes"`
}

// MessageRequest is the JSON body for POST /api/v1/tickets/{id}/messages.
type MessageRequest struct {
	Content     string     `json:"content" validate:"required_without=MediaURL"`
	MediaURL    string     `json:"media_url" validate:"omitempty,url"`
	MediaType   MediaType  `json:"media_type" validate:"omitempty,oneof=image audio video document"`
	AttendantID *uuid.UUID `json:"attendant_id"`
}

// Repository is the persistence the Service needs. *Store implements it.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Ticket, error)
	Create(ctx context.Context, nt NewTicket) (Ticket, error)
	Transition(ctx context.Context, id uuid.UUID, u Update) (Ticket, error)
	AppendMessage(ctx context.Context, nm NewMessage) (Message, bool, error)
	Messages(ctx context.Context, ticketID uuid.UUID) ([]Message, error)
	MarkInboundRead(ctx context.Context, ticketID uuid.UUID) error
	Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error)
}

// Integrations reports whether a tenant can receive tickets on its API.
// *tenant.Store implements it.
type Integrations interface {
	DispatchConfigured(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// Service implements the attendant-facing ticket operations.
type Service struct {
	repo         Repository
	integrations Integrations
	emitter      notify.Emitter
	scheduler    Scheduler
	deliverer    Deliverer
	logger       *slog.Logger
}

// NewService creates a ticket Service.
func NewService(repo Repository, integrations Integrations, emitter notify.Emitter, scheduler Scheduler, deliverer Deliverer, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		integrations: integrations,
		emitter:      emitter,
		scheduler:    scheduler,
		deliverer:    deliverer,
		logger:       logger,
	}
}

// Get returns a ticket owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Ticket, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, fmt.Errorf("getting ticket: %w", err)
	}
	if t.TenantID != tenantID {
		return Ticket{}, ErrForbidden
	}
	return t, nil
}

// CreateManual opens a ticket registered by an attendant.
func (s *Service) CreateManual(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (Ticket, error) {
	t, err := s.repo.Create(ctx, NewTicket{
		TenantID:       tenantID,
		ContactName:    req.ContactName,
		ContactPhone:   NormalizePhone(req.ContactPhone),
		InitialMessage: req.InitialMessage,
		Origin:         OriginManual,
		Notes:          req.Notes,
	})
	if err != nil {
		return Ticket{}, err
	}
	telemetry.TicketsCreatedTotal.WithLabelValues(string(OriginManual)).Inc()
	s.emitter.Emit(ctx, t.Event(notify.ActionCreated))
	return t, nil
}

// Assign hands the ticket to an attendant and moves it to in_progress.
func (s *Service) Assign(ctx context.Context, tenantID, id, attendantID uuid.UUID) (Ticket, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status.IsTerminal() {
		return Ticket{}, ErrClosed
	}

	t, err = s.repo.Transition(ctx, id, Update{
		Status:      Ptr(StatusInProgress),
		AttendantID: &attendantID,
	})
	if err != nil {
		return Ticket{}, err
	}
	s.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return t, nil
}

// SetStatus sets the ticket status unconditionally.
func (s *Service) SetStatus(ctx context.Context, tenantID, id uuid.UUID, req StatusRequest) (Ticket, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return Ticket{}, err
	}

	t, err := s.repo.Transition(ctx, id, Update{Status: &req.Status, Notes: req.Notes})
	if err != nil {
		return Ticket{}, err
	}
	s.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return t, nil
}

// Thread returns the ticket's messages and marks inbound ones read.
func (s *Service) Thread(ctx context.Context, tenantID, id uuid.UUID) ([]Message, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}

	msgs, err := s.repo.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkInboundRead(ctx, id); err != nil {
		s.logger.Warn("marking inbound messages read", "ticket_id", id, "error", err)
	}
	return msgs, nil
}

// PostMessage appends an attendant message and delivers it to the contact.
func (s *Service) PostMessage(ctx context.Context, tenantID, id uuid.UUID, req MessageRequest) (Message, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Message{}, err
	}
	if t.Status.IsTerminal() {
		return Message{}, ErrClosed
	}

	sender := req.AttendantID
	if sender == nil {
		sender = t.AttendantID
	}

	m, _, err := s.repo.AppendMessage(ctx, NewMessage{
		TicketID:   id,
		Direction:  DirectionOutbound,
		SenderType: SenderAttendant,
		SenderID:   sender,
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		MediaType:  req.MediaType,
		IsRead:     true,
	})
	if err != nil {
		return Message{}, err
	}

	if req.Content != "" {
		s.deliverer.Deliver(ctx, t, req.Content)
	}
	s.emitter.Emit(ctx, t.Event(notify.ActionMessage))
	return m, nil
}

// Redispatch sends a reviewed or failed ticket to the tenant API again with
// a fresh attempt budget.
func (s *Service) Redispatch(ctx context.Context, tenantID, id uuid.UUID) (Ticket, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Ticket{}, err
	}
	if !t.Status.CanRedispatch() {
		return Ticket{}, fmt.Errorf("%w: %s", ErrIllegalTransition, t.Status)
	}
	configured, err := s.integrations.DispatchConfigured(ctx, tenantID)
	if err != nil {
		return Ticket{}, err
	}
	if !configured {
		return Ticket{}, ErrNoIntegration
	}

	t, err = s.repo.Transition(ctx, id, Update{
		Status:        Ptr(StatusSentAPI),
		ResetAttempts: true,
	})
	if err != nil {
		return Ticket{}, err
	}
	if err := s.scheduler.ScheduleDispatch(ctx, id, 0); err != nil {
		return Ticket{}, fmt.Errorf("scheduling dispatch: %w", err)
	}
	s.emitter.Emit(ctx, t.Event(notify.ActionUpdated))
	return t, nil
}

// Stats returns the tenant's dashboard counters.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	return s.repo.Stats(ctx, tenantID)
}
