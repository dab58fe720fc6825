package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/db"
)

// ErrSlugTaken is returned when a concurrent provision claimed the slug
// between our lookup and insert.
var ErrSlugTaken = errors.New("tenant slug already taken")

// slugPattern restricts tenant slugs to lowercase identifiers.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// ProvisionParams describes a tenant and its first WhatsApp channel.
type ProvisionParams struct {
	Name        string
	Slug        string
	InstanceKey string
	ChannelName string
	Dispatch    DispatchConfig
}

// Provisioner creates tenants together with their first channel.
type Provisioner struct {
	DB     db.TxBeginner
	Logger *slog.Logger
}

// Provision creates the tenant and channel when they do not exist yet and
// returns the tenant info. Re-running it with the same slug is a no-op.
func (p *Provisioner) Provision(ctx context.Context, params ProvisionParams) (*Info, error) {
	if !slugPattern.MatchString(params.Slug) {
		return nil, fmt.Errorf("invalid tenant slug %q", params.Slug)
	}
	if params.ChannelName == "" {
		params.ChannelName = params.Name
	}

	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	info := &Info{Name: params.Name, Slug: params.Slug}
	err = tx.QueryRow(ctx, `SELECT id FROM tenants WHERE slug = $1`, params.Slug).Scan(&info.ID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO tenants (name, slug, api_endpoint, api_method, api_headers, api_key, api_enabled)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7)
			RETURNING id`,
			params.Name, params.Slug,
			params.Dispatch.Endpoint, params.Dispatch.HTTPMethod(), headersOrEmpty(params.Dispatch.Headers),
			params.Dispatch.APIKey, params.Dispatch.Enabled,
		).Scan(&info.ID)
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, params.Slug)
		}
		if err != nil {
			return nil, fmt.Errorf("creating tenant: %w", err)
		}
		p.Logger.Info("tenant created", "tenant_id", info.ID, "slug", params.Slug)
	case err != nil:
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	if params.InstanceKey != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO channels (id, tenant_id, name, instance_key, status, is_active)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (instance_key) DO NOTHING`,
			uuid.New(), info.ID, params.ChannelName, params.InstanceKey, ChannelDisconnected,
		); err != nil {
			return nil, fmt.Errorf("creating channel: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing tenant provisioning: %w", err)
	}
	return info, nil
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
