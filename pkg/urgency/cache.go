package urgency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pwviptbl/CallCenter/pkg/keyword"
)

// Cache stores rule sets by bucket key.
type Cache interface {
	// Get returns the cached rules and true on a hit.
	Get(ctx context.Context, key string) ([]keyword.Rule, bool, error)
	Set(ctx context.Context, key string, rules []keyword.Rule, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const globalKey = "rules:global"

// tenantKey is the bucket for rules scoped to one tenant.
func tenantKey(tenantID uuid.UUID) string {
	return "rules:" + tenantID.String()
}

// redisKeyPrefix namespaces cache buckets in Redis.
const redisKeyPrefix = "callcenter:"

// RedisCache is a Cache backed by Redis JSON values.
type RedisCache struct {
	rdb redis.Cmdable
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]keyword.Rule, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading rule cache %s: %w", key, err)
	}
	var rules []keyword.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, false, fmt.Errorf("decoding rule cache %s: %w", key, err)
	}
	return rules, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, rules []keyword.Rule, ttl time.Duration) error {
	if rules == nil {
		rules = []keyword.Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encoding rule cache %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("writing rule cache %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = redisKeyPrefix + k
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("deleting rule cache: %w", err)
	}
	return nil
}
