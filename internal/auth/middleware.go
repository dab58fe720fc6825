package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

// TenantLookup resolves the tenant an identity acts for.
type TenantLookup interface {
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

// Options configures Middleware.
type Options struct {
	Authenticator *APIKeyAuthenticator
	Tenants       TenantLookup
	Limiter       *RateLimiter // optional; throttles failed key attempts per IP
	DevMode       bool         // accept X-Tenant-ID without a key
	Logger        *slog.Logger
}

// Middleware returns an HTTP middleware that authenticates the caller and
// stores the resulting Identity and tenant.Info in the request context.
//
// Authentication precedence:
//  1. X-API-Key: <raw-key>  →  API key hash lookup
//  2. X-Tenant-ID: <uuid>   →  development-only fallback (no real auth)
//
// If neither succeeds, the request is rejected with 401.
func Middleware(opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var identity *Identity

			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" && opts.Authenticator != nil {
				ip := ClientIP(r).String()
				if opts.Limiter != nil {
					wait, err := opts.Limiter.Blocked(ctx, ip)
					if err != nil {
						logger.Warn("rate limit check failed", "error", err)
					} else if wait > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second).Seconds())))
						respondErr(w, http.StatusTooManyRequests, "too_many_requests", "too many failed attempts")
						return
					}
				}

				id, err := opts.Authenticator.Authenticate(ctx, rawKey)
				if err != nil {
					logger.Warn("API key authentication failed", "ip", ip, "error", err)
					if opts.Limiter != nil {
						if err := opts.Limiter.Fail(ctx, ip); err != nil {
							logger.Warn("recording failed attempt", "error", err)
						}
					}
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}
				identity = id
			}

			if identity == nil && opts.DevMode {
				if tenantID, err := tenant.FromHeader(r); err == nil {
					identity = &Identity{
						Subject:  "dev:anonymous",
						Role:     RoleAdmin,
						TenantID: tenantID,
						Method:   MethodDev,
					}
					logger.Debug("dev-mode authentication", "tenant_id", tenantID)
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			info := &tenant.Info{ID: identity.TenantID}
			if opts.Tenants != nil {
				t, err := opts.Tenants.Get(ctx, identity.TenantID)
				if err != nil {
					logger.Warn("tenant lookup failed", "tenant_id", identity.TenantID, "error", err)
					respondErr(w, http.StatusUnauthorized, "unauthorized", "unknown tenant")
					return
				}
				info.Name = t.Name
				info.Slug = t.Slug
			}

			ctx = NewContext(ctx, identity)
			ctx = tenant.NewContext(ctx, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP extracts the client IP address from the request,
// preferring X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func ClientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
