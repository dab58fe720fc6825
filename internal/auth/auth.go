// Package auth authenticates admin API callers by API key and carries the
// resulting identity in the request context.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Roles supported by the RBAC system.
const (
	RoleAdmin     = "admin"
	RoleAttendant = "attendant"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleAttendant}

// Method describes how the caller was authenticated.
const (
	MethodAPIKey = "apikey"
	MethodDev    = "dev"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject  string     // "apikey:<prefix>" or "dev:anonymous"
	Role     string     // One of the Role* constants
	TenantID uuid.UUID  // Tenant the caller acts for
	APIKeyID *uuid.UUID // Non-nil for API key authentication
	Method   string     // One of the Method* constants
}

// IsAdmin reports whether the identity holds the admin role.
func (id *Identity) IsAdmin() bool {
	return id != nil && id.Role == RoleAdmin
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context.
// Returns nil if no identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// keyPrefixLen is the number of leading characters stored in clear for display.
const keyPrefixLen = 11

// GenerateAPIKey returns a new random API key and its display prefix.
func GenerateAPIKey() (raw, prefix string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = "cc_" + hex.EncodeToString(buf)
	return raw, raw[:keyPrefixLen], nil
}
