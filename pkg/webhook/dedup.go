package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

const (
	// dedupTTL covers provider retries, which stop well within a day.
	dedupTTL = 24 * time.Hour

	redisKeyPrefix = "callcenter:dedup:"
)

// KeyValue is the subset of redis.Cmdable the deduplicator uses.
type KeyValue interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// MessageFinder looks up stored messages by provider id. *ticket.Store
// implements it.
type MessageFinder interface {
	FindMessageByProviderID(ctx context.Context, tenantID uuid.UUID, providerID string) (ticket.Message, error)
}

// Deduplicator recognizes provider message ids that were already stored. It
// uses Redis as a fast cache with a database fallback. The unique message
// index stays the authoritative guard.
type Deduplicator struct {
	kv     KeyValue
	finder MessageFinder
	logger *slog.Logger
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(kv KeyValue, finder MessageFinder, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{kv: kv, finder: finder, logger: logger}
}

func redisKey(tenantID uuid.UUID, providerID string) string {
	return redisKeyPrefix + tenantID.String() + ":" + providerID
}

// Seen reports whether the tenant already stored a message with this
// provider id.
func (d *Deduplicator) Seen(ctx context.Context, tenantID uuid.UUID, providerID string) (bool, error) {
	if providerID == "" {
		return false, nil
	}

	// 1. Redis hot path.
	n, err := d.kv.Exists(ctx, redisKey(tenantID, providerID)).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		d.logger.Warn("redis dedup lookup failed, falling back to DB", "error", err)
	}

	// 2. DB fallback.
	_, err = d.finder.FindMessageByProviderID(ctx, tenantID, providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup DB lookup: %w", err)
	}

	d.Remember(ctx, tenantID, providerID)
	return true, nil
}

// Remember records a stored provider id in Redis.
func (d *Deduplicator) Remember(ctx context.Context, tenantID uuid.UUID, providerID string) {
	if providerID == "" {
		return
	}
	key := redisKey(tenantID, providerID)
	if err := d.kv.Set(ctx, key, 1, dedupTTL).Err(); err != nil {
		d.logger.Warn("failed to set dedup cache", "error", err, "key", key)
	}
}
