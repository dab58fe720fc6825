package ticket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/audit"
	"github.com/pwviptbl/CallCenter/internal/auth"
	"github.com/pwviptbl/CallCenter/internal/httpserver"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

// Handler provides HTTP handlers for the tickets API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a ticket Handler.
func NewHandler(svc *Service, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{svc: svc, logger: logger, audit: audit}
}

// Routes returns a chi.Router with all ticket routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/stats", h.handleStats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/assign", h.handleAssign)
		r.Patch("/status", h.handleStatus)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handlePostMessage)
		r.With(auth.RequireAdmin).Post("/dispatch", h.handleDispatch)
	})
	return r
}

func tenantID(r *http.Request) (uuid.UUID, bool) {
	if info := tenant.FromContext(r.Context()); info != nil {
		return info.ID, true
	}
	return uuid.Nil, false
}

// scope extracts the tenant and ticket id, writing an error response when
// either is missing.
func scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tid, ok := tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "tenant context required")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid ticket ID")
		return uuid.Nil, uuid.Nil, false
	}
	return tid, id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string, id uuid.UUID) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "ticket not found")
	case errors.Is(err, ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "ticket belongs to another tenant")
	case errors.Is(err, ErrClosed):
		httpserver.RespondError(w, http.StatusConflict, "conflict", "ticket is closed")
	case errors.Is(err, ErrIllegalTransition):
		httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ErrNoIntegration):
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "no_integration", "tenant has no api integration configured")
	default:
		h.logger.Error(op, "error", err, "ticket_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "tenant context required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.svc.CreateManual(r.Context(), tid, req)
	if err != nil {
		h.respondServiceError(w, err, "create ticket", uuid.Nil)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "ticket", t.ID, map[string]string{"contact_phone": t.ContactPhone})
	}

	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "tenant context required")
		return
	}

	st, err := h.svc.Stats(r.Context(), tid)
	if err != nil {
		h.respondServiceError(w, err, "compute ticket stats", uuid.Nil)
		return
	}
	httpserver.Respond(w, http.StatusOK, st)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), tid, id)
	if err != nil {
		h.respondServiceError(w, err, "get ticket", id)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	var req AssignRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.svc.Assign(r.Context(), tid, id, req.AttendantID)
	if err != nil {
		h.respondServiceError(w, err, "assign ticket", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "assign", "ticket", id, map[string]string{"attendant_id": req.AttendantID.String()})
	}

	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.svc.SetStatus(r.Context(), tid, id, req)
	if err != nil {
		h.respondServiceError(w, err, "update ticket status", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "update_status", "ticket", id, map[string]string{"status": string(req.Status)})
	}

	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	msgs, err := h.svc.Thread(r.Context(), tid, id)
	if err != nil {
		h.respondServiceError(w, err, "list messages", id)
		return
	}
	httpserver.Respond(w, http.StatusOK, msgs)
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.svc.PostMessage(r.Context(), tid, id, req)
	if err != nil {
		h.respondServiceError(w, err, "post message", id)
		return
	}
	httpserver.Respond(w, http.StatusCreated, m)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	tid, id, ok := scope(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Redispatch(r.Context(), tid, id)
	if err != nil {
		h.respondServiceError(w, err, "dispatch ticket", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "dispatch", "ticket", id, nil)
	}

	httpserver.Respond(w, http.StatusAccepted, t)
}
