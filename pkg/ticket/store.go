package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/db"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
)

// Store provides database operations for tickets and messages.
type Store struct {
	db db.TxBeginner
}

// NewStore creates a Store. The argument may be a pool or a transaction.
func NewStore(dbtx db.TxBeginner) *Store {
	return &Store{db: dbtx}
}

const ticketColumns = `id, tenant_id, channel_id, attendant_id, contact_name, contact_phone,
	COALESCE(initial_message, ''), status, urgency_level, COALESCE(urgency_keywords, '{}'::text[]), origin,
	collected_data, api_response, api_sent_at, api_attempts, COALESCE(external_ticket_id, ''),
	attended_at, resolved_at, COALESCE(notes, ''), created_at, updated_at`

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID, &t.TenantID, &t.ChannelID, &t.AttendantID, &t.ContactName, &t.ContactPhone,
		&t.InitialMessage, &t.Status, &t.UrgencyLevel, &t.UrgencyKeywords, &t.Origin,
		&t.CollectedData, &t.APIResponse, &t.APISentAt, &t.APIAttempts, &t.ExternalTicketID,
		&t.AttendedAt, &t.ResolvedAt, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

const messageColumns = `m.id, m.ticket_id, m.direction, m.sender_type, m.sender_id,
	COALESCE(m.content, ''), COALESCE(m.media_url, ''), COALESCE(m.media_type, ''),
	COALESCE(m.provider_message_id, ''), m.is_read, m.created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.TicketID, &m.Direction, &m.SenderType, &m.SenderID,
		&m.Content, &m.MediaURL, &m.MediaType,
		&m.ProviderMessageID, &m.IsRead, &m.CreatedAt,
	)
	return m, err
}

// Get returns a ticket by ID or pgx.ErrNoRows.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Ticket, error) {
	return scanTicket(s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

// FindOpenByPhone returns the most recent non-terminal ticket for the
// tenant and phone, or pgx.ErrNoRows.
func (s *Store) FindOpenByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (Ticket, error) {
	return scanTicket(s.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE tenant_id = $1 AND contact_phone = $2 AND status NOT IN ('resolved', 'failed')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, phone,
	))
}

// Create inserts a ticket in status pending with normal urgency.
func (s *Store) Create(ctx context.Context, nt NewTicket) (Ticket, error) {
	origin := nt.Origin
	if origin == "" {
		origin = OriginWhatsApp
	}
	t, err := scanTicket(s.db.QueryRow(ctx,
		`INSERT INTO tickets
			(id, tenant_id, channel_id, contact_name, contact_phone, initial_message,
			 status, urgency_level, urgency_keywords, origin, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		 RETURNING `+ticketColumns,
		uuid.New(), nt.TenantID, nt.ChannelID, nt.ContactName, nt.ContactPhone, nt.InitialMessage,
		StatusPending, urgency.LevelNormal, []string{}, origin, nt.Notes,
	))
	if err != nil {
		return Ticket{}, fmt.Errorf("creating ticket: %w", err)
	}
	return t, nil
}

// ResolveOpen returns the open ticket for the contact, creating one when
// none exists. A transaction-scoped advisory lock on (tenant, phone)
// serializes concurrent deliveries for the same contact. The boolean reports
// whether the ticket was created.
func (s *Store) ResolveOpen(ctx context.Context, nt NewTicket) (Ticket, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Ticket{}, false, fmt.Errorf("beginning ticket resolution: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		contactLockKey(nt.TenantID, nt.ContactPhone)); err != nil {
		return Ticket{}, false, fmt.Errorf("locking contact: %w", err)
	}

	txs := &Store{db: tx}
	created := false
	t, err := txs.FindOpenByPhone(ctx, nt.TenantID, nt.ContactPhone)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		t, err = txs.Create(ctx, nt)
		if err != nil {
			return Ticket{}, false, err
		}
		created = true
	default:
		return Ticket{}, false, fmt.Errorf("finding open ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, false, fmt.Errorf("committing ticket resolution: %w", err)
	}
	return t, created, nil
}

func contactLockKey(tenantID uuid.UUID, phone string) string {
	return tenantID.String() + "|" + phone
}

// AppendMessage inserts a message. When ProviderMessageID is set and the
// ticket already has a message with that id, the existing row is returned
// and the boolean is false.
func (s *Store) AppendMessage(ctx context.Context, nm NewMessage) (Message, bool, error) {
	m, err := scanMessage(s.db.QueryRow(ctx,
		`INSERT INTO messages AS m
			(id, ticket_id, direction, sender_type, sender_id, content, media_url, media_type,
			 provider_message_id, is_read)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)
		 ON CONFLICT (ticket_id, provider_message_id) WHERE provider_message_id IS NOT NULL DO NOTHING
		 RETURNING `+messageColumns,
		uuid.New(), nm.TicketID, nm.Direction, nm.SenderType, nm.SenderID, nm.Content, nm.MediaURL,
		string(nm.MediaType), nm.ProviderMessageID, nm.IsRead,
	))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || nm.ProviderMessageID == "" {
		return Message{}, false, fmt.Errorf("appending message: %w", err)
	}

	m, err = scanMessage(s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.ticket_id = $1 AND m.provider_message_id = $2`,
		nm.TicketID, nm.ProviderMessageID,
	))
	if err != nil {
		return Message{}, false, fmt.Errorf("loading existing message: %w", err)
	}
	return m, false, nil
}

// FindMessageByProviderID returns a message of any of the tenant's tickets
// carrying the provider id, or pgx.ErrNoRows.
func (s *Store) FindMessageByProviderID(ctx context.Context, tenantID uuid.UUID, providerID string) (Message, error) {
	return scanMessage(s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m
		 JOIN tickets t ON t.id = m.ticket_id
		 WHERE t.tenant_id = $1 AND m.provider_message_id = $2
		 LIMIT 1`,
		tenantID, providerID,
	))
}

// Transition applies an unconditional update and returns the new row.
// Callers are responsible for the legality of the transition.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, u Update) (Ticket, error) {
	query, args := buildUpdate(id, u)
	t, err := scanTicket(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Ticket{}, fmt.Errorf("updating ticket %s: %w", id, err)
	}
	return t, nil
}

// buildUpdate renders the UPDATE for a transition. Setting status resolved
// stamps resolved_at; setting an attendant stamps attended_at.
func buildUpdate(id uuid.UUID, u Update) (string, []any) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
		if *u.Status == StatusResolved {
			sets = append(sets, "resolved_at = now()")
		}
	}
	if u.UrgencyLevel != nil {
		add("urgency_level", string(*u.UrgencyLevel))
	}
	if u.UrgencyKeywords != nil {
		add("urgency_keywords", u.UrgencyKeywords)
	}
	if u.CollectedData != nil {
		add("collected_data", u.CollectedData)
	}
	if u.APIResponse != nil {
		add("api_response", u.APIResponse)
	}
	if u.APISentAt != nil {
		add("api_sent_at", *u.APISentAt)
	}
	if u.ExternalTicketID != nil {
		add("external_ticket_id", *u.ExternalTicketID)
	}
	if u.AttendantID != nil {
		add("attendant_id", *u.AttendantID)
		sets = append(sets, "attended_at = now()")
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.ResetAttempts {
		sets = append(sets, "api_attempts = 0")
	}

	return "UPDATE tickets SET " + strings.Join(sets, ", ") +
		" WHERE id = $1 RETURNING " + ticketColumns, args
}

// IncrementAttempts bumps api_attempts and returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`UPDATE tickets SET api_attempts = api_attempts + 1, updated_at = now()
		 WHERE id = $1 RETURNING api_attempts`, id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("incrementing api attempts: %w", err)
	}
	return n, nil
}

// Messages returns the ticket's thread in creation order.
func (s *Store) Messages(ctx context.Context, ticketID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.ticket_id = $1 ORDER BY m.created_at, m.id`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountAIMessages counts the AI-authored messages on a ticket.
func (s *Store) CountAIMessages(ctx context.Context, ticketID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE ticket_id = $1 AND sender_type = 'ai'`, ticketID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting ai messages: %w", err)
	}
	return n, nil
}

// MarkInboundRead flags the ticket's unread inbound messages as read.
func (s *Store) MarkInboundRead(ctx context.Context, ticketID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE messages SET is_read = true WHERE ticket_id = $1 AND direction = 'inbound' AND NOT is_read`,
		ticketID,
	)
	if err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}
	return nil
}

// ListStaleDispatches returns up to limit sent_api tickets that have not
// been updated since before and whose tenant still has an enabled API
// integration.
func (s *Store) ListStaleDispatches(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id FROM tickets t
		 JOIN tenants tn ON tn.id = t.tenant_id
		 WHERE t.status = $1 AND t.updated_at < $2
		   AND tn.deleted_at IS NULL AND tn.api_enabled AND COALESCE(tn.api_endpoint, '') <> ''
		 ORDER BY t.updated_at LIMIT $3`,
		string(StatusSentAPI), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale dispatches: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Stats returns the tenant's dashboard counters.
func (s *Store) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx,
		`SELECT count(*),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE urgency_level IN ('urgent', 'critical') AND status NOT IN ('resolved', 'failed')),
			count(*) FILTER (WHERE status = 'resolved')
		 FROM tickets WHERE tenant_id = $1`,
		tenantID,
	).Scan(&st.Total, &st.Pending, &st.Urgent, &st.Resolved)
	if err != nil {
		return Stats{}, fmt.Errorf("computing ticket stats: %w", err)
	}
	return st, nil
}
