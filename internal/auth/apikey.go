package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/internal/db"
)

// APIKey is a stored admin API key. Only the hash of the raw key is kept.
type APIKey struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	KeyPrefix string
	Role      string
}

// KeyStore looks up API keys by hash.
type KeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error)
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
}

// PGKeyStore is the Postgres-backed KeyStore.
type PGKeyStore struct {
	DB db.DBTX
}

// GetAPIKeyByHash returns the key with the given hash or pgx.ErrNoRows.
func (s *PGKeyStore) GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	var k APIKey
	err := s.DB.QueryRow(ctx,
		`SELECT id, tenant_id, key_prefix, role FROM api_keys WHERE key_hash = $1`,
		hash,
	).Scan(&k.ID, &k.TenantID, &k.KeyPrefix, &k.Role)
	return k, err
}

// TouchAPIKey records the time a key was last used.
func (s *PGKeyStore) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

// CreateAPIKey stores a new key for the tenant and returns the raw key. The
// raw key is shown once and cannot be recovered later.
func (s *PGKeyStore) CreateAPIKey(ctx context.Context, tenantID uuid.UUID, role, description string) (string, error) {
	if !IsValidRole(role) {
		return "", fmt.Errorf("invalid role %q", role)
	}
	raw, prefix, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	_, err = s.DB.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, key_prefix, role, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), tenantID, HashAPIKey(raw), prefix, role, description,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	return raw, nil
}

// APIKeyAuthenticator validates raw API keys.
type APIKeyAuthenticator struct {
	Keys   KeyStore
	Logger *slog.Logger
}

// Authenticate hashes the raw key and resolves it to an identity.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	key, err := a.Keys.GetAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	// Last-used bookkeeping must not delay the request.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Keys.TouchAPIKey(touchCtx, key.ID); err != nil && a.Logger != nil {
			a.Logger.Warn("updating api key last_used_at", "key_prefix", key.KeyPrefix, "error", err)
		}
	}()

	role := key.Role
	if !IsValidRole(role) {
		role = RoleAttendant
	}

	return &Identity{
		Subject:  "apikey:" + key.KeyPrefix,
		Role:     role,
		TenantID: key.TenantID,
		APIKeyID: &key.ID,
		Method:   MethodAPIKey,
	}, nil
}
