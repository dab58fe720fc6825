package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

type fakeKeyStore struct {
	keys map[string]APIKey
}

func (f *fakeKeyStore) GetAPIKeyByHash(_ context.Context, hash string) (APIKey, error) {
	k, ok := f.keys[hash]
	if !ok {
		return APIKey{}, pgx.ErrNoRows
	}
	return k, nil
}

func (f *fakeKeyStore) TouchAPIKey(context.Context, uuid.UUID) error { return nil }

type fakeTenants map[uuid.UUID]tenant.Tenant

func (f fakeTenants) Get(_ context.Context, id uuid.UUID) (tenant.Tenant, error) {
	t, ok := f[id]
	if !ok {
		return tenant.Tenant{}, errors.New("not found")
	}
	return t, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMiddleware(t *testing.T) {
	tenantID := uuid.New()
	keyID := uuid.New()
	tenants := fakeTenants{tenantID: {ID: tenantID, Name: "Acme", Slug: "acme"}}
	keys := &fakeKeyStore{keys: map[string]APIKey{
		HashAPIKey("cc_valid"): {ID: keyID, TenantID: tenantID, KeyPrefix: "cc_valid", Role: RoleAttendant},
		HashAPIKey("cc_orphan"): {ID: uuid.New(), TenantID: uuid.New(), KeyPrefix: "cc_orphan", Role: RoleAdmin},
	}}

	tests := []struct {
		name       string
		devMode    bool
		headers    map[string]string
		wantStatus int
		wantRole   string
		wantMethod string
	}{
		{
			name:       "no credentials",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid api key",
			headers:    map[string]string{"X-API-Key": "cc_valid"},
			wantStatus: http.StatusOK,
			wantRole:   RoleAttendant,
			wantMethod: MethodAPIKey,
		},
		{
			name:       "unknown api key",
			headers:    map[string]string{"X-API-Key": "cc_nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "key of unknown tenant",
			headers:    map[string]string{"X-API-Key": "cc_orphan"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "dev header ignored outside dev mode",
			headers:    map[string]string{"X-Tenant-ID": tenantID.String()},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "dev header in dev mode",
			devMode:    true,
			headers:    map[string]string{"X-Tenant-ID": tenantID.String()},
			wantStatus: http.StatusOK,
			wantRole:   RoleAdmin,
			wantMethod: MethodDev,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := Middleware(Options{
				Authenticator: &APIKeyAuthenticator{Keys: keys, Logger: testLogger()},
				Tenants:       tenants,
				DevMode:       tt.devMode,
				Logger:        testLogger(),
			})

			var gotIdentity *Identity
			var gotTenant *tenant.Info
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotIdentity = FromContext(r.Context())
				gotTenant = tenant.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				var resp map[string]string
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decoding response: %v", err)
				}
				if resp["error"] != "unauthorized" {
					t.Errorf("error = %q, want unauthorized", resp["error"])
				}
				return
			}
			if gotIdentity == nil || gotIdentity.Role != tt.wantRole || gotIdentity.Method != tt.wantMethod {
				t.Errorf("identity = %+v, want role %q method %q", gotIdentity, tt.wantRole, tt.wantMethod)
			}
			if gotTenant == nil || gotTenant.ID != tenantID || gotTenant.Slug != "acme" {
				t.Errorf("tenant = %+v, want acme", gotTenant)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		identity   *Identity
		wantStatus int
	}{
		{"no identity", nil, http.StatusForbidden},
		{"attendant", &Identity{Role: RoleAttendant}, http.StatusForbidden},
		{"admin", &Identity{Role: RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.identity != nil {
				r = r.WithContext(NewContext(r.Context(), tt.identity))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for first entry", "203.0.113.50, 70.41.3.18", "", "192.0.2.1:1234", "203.0.113.50"},
		{"x-real-ip", "", "198.51.100.23", "192.0.2.1:1234", "198.51.100.23"},
		{"remote addr", "", "", "192.0.2.1:12345", "192.0.2.1"},
		{"invalid xff falls back", "not-an-ip", "", "192.0.2.1:12345", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			r.RemoteAddr = tt.remoteAddr

			if got := ClientIP(r); got != netip.MustParseAddr(tt.want) {
				t.Errorf("ClientIP = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	if got := rateLimitKey("192.0.2.1"); got != "callcenter:auth:failures:192.0.2.1" {
		t.Errorf("rateLimitKey = %q", got)
	}
}
