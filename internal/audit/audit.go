// Package audit records admin mutations to the audit_log table.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/auth"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantID   uuid.UUID
	Actor      string
	APIKeyID   *uuid.UUID
	Action     string
	Resource   string
	ResourceID uuid.UUID
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
}

// BatchSender is satisfied by *pgxpool.Pool and pgx.Tx.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer is an async, buffered audit log writer.
// Entries are sent to an internal channel and flushed by a background goroutine.
type Writer struct {
	db      BatchSender
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

const insertSQL = `INSERT INTO audit_log
	(id, tenant_id, actor, api_key_id, action, resource, resource_id, detail, ip_address, user_agent)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(db BatchSender, logger *slog.Logger) *Writer {
	return &Writer{
		db:      db,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the database.
// It returns when the context is cancelled and all pending entries are flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource)
	}
}

// LogFromRequest extracts identity, tenant, IP and user agent from the
// request, marshals detail, and enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, resource string, resourceID uuid.UUID, detail any) {
	entry := Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}

	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			w.logger.Warn("marshaling audit detail", "error", err, "action", action)
		} else {
			entry.Detail = raw
		}
	}

	if ti := tenant.FromContext(r.Context()); ti != nil {
		entry.TenantID = ti.ID
	}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.Actor = id.Subject
		entry.APIKeyID = id.APIKeyID
		if entry.TenantID == uuid.Nil {
			entry.TenantID = id.TenantID
		}
	}

	if ip := auth.ClientIP(r); ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// buildBatch queues one insert per entry. Entries without a tenant are skipped.
func buildBatch(entries []Entry) (*pgx.Batch, int) {
	b := &pgx.Batch{}
	skipped := 0
	for _, e := range entries {
		if e.TenantID == uuid.Nil {
			skipped++
			continue
		}
		var resourceID *uuid.UUID
		if e.ResourceID != uuid.Nil {
			id := e.ResourceID
			resourceID = &id
		}
		var ip *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ip = &s
		}
		b.Queue(insertSQL,
			uuid.New(), e.TenantID, e.Actor, e.APIKeyID, e.Action, e.Resource,
			resourceID, e.Detail, ip, e.UserAgent,
		)
	}
	return b, skipped
}

// flush writes a batch of entries to the database in one round trip.
func (w *Writer) flush(entries []Entry) {
	b, skipped := buildBatch(entries)
	if skipped > 0 {
		w.logger.Warn("audit entry without tenant, skipping", "count", skipped)
	}
	if b.Len() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := w.db.SendBatch(ctx, b)
	defer results.Close()
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			w.logger.Error("writing audit log entry", "error", err)
		}
	}
}
