// Package seed installs the data a fresh installation needs and an optional
// demo tenant for local development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwviptbl/CallCenter/internal/auth"
	"github.com/pwviptbl/CallCenter/pkg/keyword"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

// DevAPIKey is the raw admin API key seeded for development and testing.
// It is only created by the seed command and should never be used in production.
const DevAPIKey = "cc_dev_seed_key_do_not_use_in_production"

// Demo tenant identifiers.
const (
	demoName        = "Condomínio Demo"
	demoSlug        = "demo"
	demoInstanceKey = "inst-01"
)

// Run installs the default global urgency keywords and provisions the demo
// tenant with its WhatsApp channel and an admin API key. It is idempotent:
// re-running ensures every resource exists without duplicating it.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	rules := keyword.NewStore(pool)
	added := 0
	for _, r := range keyword.DefaultRules() {
		inserted, err := rules.EnsureGlobal(ctx, r)
		if err != nil {
			return fmt.Errorf("seeding keyword %q: %w", r.Keyword, err)
		}
		if inserted {
			added++
		}
	}
	logger.Info("seed: global keyword rules ensured", "added", added)

	prov := &tenant.Provisioner{DB: pool, Logger: logger}
	info, err := prov.Provision(ctx, tenant.ProvisionParams{
		Name:        demoName,
		Slug:        demoSlug,
		InstanceKey: demoInstanceKey,
		ChannelName: "WhatsApp principal",
	})
	if err != nil {
		return fmt.Errorf("provisioning seed tenant: %w", err)
	}
	logger.Info("seed: provisioned tenant", "tenant_id", info.ID, "slug", info.Slug, "instance", demoInstanceKey)

	if err := ensureDevAPIKey(ctx, pool, info.ID, logger); err != nil {
		return err
	}

	logger.Info("seed: completed successfully", "tenant", info.Slug)
	return nil
}

// ensureDevAPIKey stores DevAPIKey as an admin key for the tenant unless it
// already exists.
func ensureDevAPIKey(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, logger *slog.Logger) error {
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, key_prefix, role, description)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (key_hash) DO NOTHING
		 RETURNING id`,
		uuid.New(), tenantID, auth.HashAPIKey(DevAPIKey), DevAPIKey[:11], auth.RoleAdmin, "Development seed API key",
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		logger.Info("seed: API key already exists", "prefix", DevAPIKey[:11])
		return nil
	case err != nil:
		return fmt.Errorf("creating seed API key: %w", err)
	}
	logger.Info("seed: created API key", "id", id, "prefix", DevAPIKey[:11], "raw_key", DevAPIKey)
	return nil
}
