package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pwviptbl/CallCenter/internal/config"
	"github.com/pwviptbl/CallCenter/internal/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowedOrigins: []string{"*"},
		MetricsPath:        "/metrics",
	}
}

func TestProbes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	okCheck := Check{Name: "database", Ping: func(context.Context) error { return nil }}
	badCheck := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []Check
		path       string
		wantStatus int
	}{
		{"healthz ignores dependencies", []Check{badCheck}, "/healthz", http.StatusOK},
		{"readyz all healthy", []Check{okCheck}, "/readyz", http.StatusOK},
		{"readyz failing dependency", []Check{okCheck, badCheck}, "/readyz", http.StatusServiceUnavailable},
		{"status always 200", []Check{badCheck}, "/status", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(testConfig(), logger, telemetry.NewMetricsRegistry(), nil, tt.checks...)

			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.wantStatus)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestStatusReportsDegraded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(testConfig(), logger, nil, nil,
		Check{Name: "database", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Dependencies["database"].Status != "ok" || resp.Dependencies["redis"].Status != "error" {
		t.Errorf("dependencies = %+v", resp.Dependencies)
	}
}

func TestAPIRouterUsesAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "no key")
		})
	}
	srv := NewServer(testConfig(), logger, nil, deny)
	srv.APIRouter.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		Respond(w, http.StatusOK, nil)
	})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}

func TestDocsArePublic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(testConfig(), logger, nil, nil)

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/api/docs", "text/html; charset=utf-8", "swagger-ui"},
		{"/api/docs/openapi.yaml", "application/yaml", "/webhooks/evolution"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body does not mention %q", tt.contains)
			}
		})
	}
}
