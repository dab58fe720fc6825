package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pwviptbl/CallCenter/internal/httpserver"
	"github.com/pwviptbl/CallCenter/internal/telemetry"
)

// Handler receives Evolution API webhooks.
type Handler struct {
	ingestor *Ingestor
	secret   string
	logger   *slog.Logger
}

// NewHandler creates a Handler. An empty secret disables the shared-secret
// check.
func NewHandler(ingestor *Ingestor, secret string, logger *slog.Logger) *Handler {
	return &Handler{ingestor: ingestor, secret: secret, logger: logger}
}

// Routes returns a chi.Router with webhook routes mounted. The per-event
// form serves providers configured to append the event name to the URL.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleEvent)
	r.Post("/{event}", h.handleEvent)
	return r
}

type ackResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		telemetry.WebhookProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if !h.authorized(r) {
		h.logger.Warn("webhook secret mismatch", "remote_addr", r.RemoteAddr)
		telemetry.WebhookEventsTotal.WithLabelValues("unauthorized").Inc()
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		return
	}

	var p Payload
	if err := decodeWebhookBody(r, &p); err != nil {
		h.logger.Warn("ignoring malformed webhook", "error", err)
		h.ack(w, OutcomeInvalid)
		return
	}
	if p.Event == "" {
		if seg := chi.URLParam(r, "event"); seg != "" {
			p.Event = eventFromPath(seg)
		}
	}

	outcome, err := h.ingestor.Ingest(r.Context(), p)
	if err != nil {
		h.logger.Error("ingesting webhook",
			"event", p.Event,
			"instance", p.Instance,
			"message_id", p.Data.Key.ID,
			"error", err,
		)
	}
	h.ack(w, outcome)
}

// ack always answers 200 so the provider never retries a delivery that
// was received.
func (h *Handler) ack(w http.ResponseWriter, outcome Outcome) {
	telemetry.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()
	httpserver.Respond(w, http.StatusOK, ackResponse{OK: true})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get("apikey")
	if got == "" {
		got = r.Header.Get("X-Evolution-Secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// decodeWebhookBody reads and decodes a webhook JSON body. Unlike
// httpserver.Decode it accepts unknown fields, since provider payloads
// carry far more than we read.
func decodeWebhookBody(r *http.Request, dst any) error {
	const maxBody = 1 << 20 // 1 MiB
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
