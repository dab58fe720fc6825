package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/db"
)

// Store provides tenant and channel lookups against Postgres.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store backed by the given connection or pool.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const tenantColumns = `id, name, slug, active,
	COALESCE(api_endpoint, ''), COALESCE(api_method, 'POST'), COALESCE(api_headers, '{}'::jsonb),
	COALESCE(api_key, ''), api_enabled,
	COALESCE(oauth_token_url, ''), COALESCE(oauth_client_id, ''), COALESCE(oauth_client_secret, ''),
	COALESCE(oauth_scopes, '{}'::text[]),
	COALESCE(ai_prompt, ''), ai_temperature, ai_max_tokens,
	COALESCE(slack_channel, ''), created_at, updated_at, deleted_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	var oauth OAuthConfig
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Active,
		&t.Dispatch.Endpoint, &t.Dispatch.Method, &t.Dispatch.Headers,
		&t.Dispatch.APIKey, &t.Dispatch.Enabled,
		&oauth.TokenURL, &oauth.ClientID, &oauth.ClientSecret,
		&oauth.Scopes,
		&t.AI.Prompt, &t.AI.Temperature, &t.AI.MaxTokens,
		&t.SlackChannel, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return Tenant{}, err
	}
	if oauth.TokenURL != "" && oauth.ClientID != "" {
		t.Dispatch.OAuth = &oauth
	}
	return t, nil
}

// Get returns a tenant that has not been soft-deleted. It returns
// pgx.ErrNoRows when no such tenant exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND deleted_at IS NULL`
	t, err := scanTenant(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		return Tenant{}, fmt.Errorf("getting tenant %s: %w", id, err)
	}
	return t, nil
}

// GetBySlug returns a live tenant by slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1 AND deleted_at IS NULL`
	t, err := scanTenant(s.dbtx.QueryRow(ctx, query, slug))
	if err != nil {
		return Tenant{}, fmt.Errorf("getting tenant by slug %q: %w", slug, err)
	}
	return t, nil
}

const channelColumns = `c.id, c.tenant_id, c.name, c.instance_key, c.status,
	COALESCE(c.phone_number, ''), COALESCE(c.api_url, ''), COALESCE(c.api_token, ''),
	c.is_active, c.created_at, c.updated_at`

func scanChannel(row pgx.Row) (Channel, error) {
	var c Channel
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.InstanceKey, &c.Status,
		&c.PhoneNumber, &c.APIURL, &c.APIToken,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// ChannelByInstanceKey returns the active channel registered under the
// provider instance key. Channels of inactive or deleted tenants are treated
// as unknown.
func (s *Store) ChannelByInstanceKey(ctx context.Context, instanceKey string) (Channel, error) {
	query := `SELECT ` + channelColumns + `
		FROM channels c
		JOIN tenants t ON t.id = c.tenant_id
		WHERE c.instance_key = $1 AND c.is_active AND t.active AND t.deleted_at IS NULL`
	c, err := scanChannel(s.dbtx.QueryRow(ctx, query, instanceKey))
	if err != nil {
		return Channel{}, fmt.Errorf("getting channel %q: %w", instanceKey, err)
	}
	return c, nil
}

// GetChannel returns a channel by id regardless of its active flag.
func (s *Store) GetChannel(ctx context.Context, id uuid.UUID) (Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels c WHERE c.id = $1`
	c, err := scanChannel(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		return Channel{}, fmt.Errorf("getting channel %s: %w", id, err)
	}
	return c, nil
}

// UpdateChannelStatus records a connectivity change reported by the provider.
// It returns pgx.ErrNoRows when the instance key is unknown.
func (s *Store) UpdateChannelStatus(ctx context.Context, instanceKey string, status ChannelStatus) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE channels SET status = $2, updated_at = now() WHERE instance_key = $1`,
		instanceKey, status,
	)
	if err != nil {
		return fmt.Errorf("updating channel status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SlackChannel returns the tenant's Slack channel, or "" when unset.
func (s *Store) SlackChannel(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var channel string
	err := s.dbtx.QueryRow(ctx,
		`SELECT COALESCE(slack_channel, '') FROM tenants WHERE id = $1`, tenantID,
	).Scan(&channel)
	if err != nil {
		return "", fmt.Errorf("getting slack channel for tenant %s: %w", tenantID, err)
	}
	return channel, nil
}

// DispatchConfigured reports whether the tenant has an enabled API
// integration with an endpoint.
func (s *Store) DispatchConfigured(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var configured bool
	err := s.dbtx.QueryRow(ctx,
		`SELECT api_enabled AND COALESCE(api_endpoint, '') <> '' FROM tenants WHERE id = $1`, tenantID,
	).Scan(&configured)
	if err != nil {
		return false, fmt.Errorf("getting dispatch config for tenant %s: %w", tenantID, err)
	}
	return configured, nil
}
