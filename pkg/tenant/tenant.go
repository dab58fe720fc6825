package tenant

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Info holds the resolved tenant metadata for the current request.
type Info struct {
	ID   uuid.UUID
	Name string
	Slug string
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context.
// Returns nil if no tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}

// Tenant is a company using the system.
type Tenant struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Active       bool           `json:"active"`
	Dispatch     DispatchConfig `json:"dispatch"`
	AI           AIConfig       `json:"ai"`
	SlackChannel string         `json:"slack_channel,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

// DispatchConfig describes the tenant's own ticketing API.
type DispatchConfig struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	APIKey   string            `json:"-"`
	Enabled  bool              `json:"enabled"`
	OAuth    *OAuthConfig      `json:"oauth,omitempty"`
}

// OAuthConfig enables the OAuth2 client-credentials grant for dispatch calls.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"-"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Configured reports whether completed tickets should be sent to the tenant API.
func (d DispatchConfig) Configured() bool {
	return d.Enabled && d.Endpoint != ""
}

// HTTPMethod returns the configured method, defaulting to POST.
func (d DispatchConfig) HTTPMethod() string {
	switch m := strings.ToUpper(strings.TrimSpace(d.Method)); m {
	case http.MethodPut, http.MethodPatch:
		return m
	default:
		return http.MethodPost
	}
}

// AIConfig holds per-tenant overrides for the AI collector. Nil fields fall
// back to the process-wide defaults.
type AIConfig struct {
	Prompt      string   `json:"prompt,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ChannelStatus is the connectivity state of a WhatsApp channel.
type ChannelStatus string

const (
	ChannelDisconnected ChannelStatus = "disconnected"
	ChannelQRRequired   ChannelStatus = "qr_required"
	ChannelConnecting   ChannelStatus = "connecting"
	ChannelConnected    ChannelStatus = "connected"
)

// ChannelStatusFromProvider maps an Evolution API connection state to a
// ChannelStatus. The second result is false for unknown states.
func ChannelStatusFromProvider(state string) (ChannelStatus, bool) {
	switch strings.ToLower(state) {
	case "open":
		return ChannelConnected, true
	case "connecting":
		return ChannelConnecting, true
	case "close", "closed", "refused":
		return ChannelDisconnected, true
	case "qrcode", "qr":
		return ChannelQRRequired, true
	default:
		return "", false
	}
}

// Channel is a WhatsApp connection through which a tenant receives messages.
type Channel struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	Name        string        `json:"name"`
	InstanceKey string        `json:"instance_key"`
	Status      ChannelStatus `json:"status"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	APIURL      string        `json:"api_url,omitempty"`
	APIToken    string        `json:"-"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
