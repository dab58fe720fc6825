package keyword

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
)

// Handler provides HTTP handlers for keyword rule administration.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a keyword Handler.
func NewHandler(svc *Service, logger *slog.Logger, audit *audit.Writer) *Handler {
	return &Handler{svc: svc, logger: logger, audit: audit}
}

// Routes returns a chi.Router with all keyword routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Post("/test", h.handleTest)
	r.Post("/analyze", h.handleAnalyze)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/restore", h.handleRestore)
	})
	return r
}

func caller(r *http.Request) (Caller, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		return Caller{}, false
	}
	return Caller{TenantID: id.TenantID, Admin: id.IsAdmin()}, true
}

// respondServiceError maps service errors onto the JSON error envelope.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string, id uuid.UUID) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "keyword rule not found")
	case errors.Is(err, ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "keyword rule is not owned by this tenant")
	case errors.Is(err, ErrInvalidPattern):
		httpserver.RespondValidationError(w, []httpserver.ValidationError{
			{Field: "keyword", Message: err.Error()},
		})
	default:
		h.logger.Error(op, "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rule, err := h.svc.Create(r.Context(), c, req)
	if err != nil {
		h.respondServiceError(w, err, "create keyword rule", uuid.Nil)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "keyword_rule", rule.ID, map[string]any{
			"keyword": rule.Keyword, "priority_level": rule.Priority, "global": rule.IsGlobal(),
		})
	}

	httpserver.Respond(w, http.StatusCreated, rule)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid keyword rule ID")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rule, err := h.svc.Update(r.Context(), c, id, req)
	if err != nil {
		h.respondServiceError(w, err, "update keyword rule", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "update", "keyword_rule", rule.ID, map[string]any{
			"keyword": rule.Keyword, "priority_level": rule.Priority, "active": rule.Active,
		})
	}

	httpserver.Respond(w, http.StatusOK, rule)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid keyword rule ID")
		return
	}

	if err := h.svc.Delete(r.Context(), c, id); err != nil {
		h.respondServiceError(w, err, "delete keyword rule", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "keyword_rule", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid keyword rule ID")
		return
	}

	rule, err := h.svc.Restore(r.Context(), c, id)
	if err != nil {
		h.respondServiceError(w, err, "restore keyword rule", id)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "restore", "keyword_rule", id, nil)
	}

	httpserver.Respond(w, http.StatusOK, rule)
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := ValidatePattern(req.MatchType, req.Keyword); err != nil {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{
			{Field: "keyword", Message: err.Error()},
		})
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"matches":    h.svc.Test(req),
		"keyword":    req.Keyword,
		"match_type": req.MatchType,
		"text":       req.Text,
	})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req AnalyzeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Analyze(r.Context(), c.TenantID, req.Text)
	if err != nil {
		h.logger.Error("analyzing text", "error", err, "tenant_id", c.TenantID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to analyze text")
		return
	}

	httpserver.Respond(w, http.StatusOK, result)
}
