package urgency

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pwviptbl/CallCenter/pkg/keyword"
)

// RuleSource loads active rules from the system of record. *keyword.Store
// implements it.
type RuleSource interface {
	ActiveGlobal(ctx context.Context) ([]keyword.Rule, error)
	ActiveForTenant(ctx context.Context, tenantID uuid.UUID) ([]keyword.Rule, error)
}

// Classifier scores text against the global rules plus the tenant's own
// rules. Both buckets are cached separately so a global change needs only
// one invalidation.
type Classifier struct {
	source RuleSource
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	// gens counts invalidations per bucket key. A load only writes the
	// cache if its key's generation did not move while it ran.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewClassifier creates a Classifier. A zero ttl defaults to one hour.
func NewClassifier(source RuleSource, cache Cache, ttl time.Duration, logger *slog.Logger) *Classifier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Classifier{source: source, cache: cache, ttl: ttl, logger: logger, gens: make(map[string]uint64)}
}

// Analyze implements keyword.Analyzer.
func (c *Classifier) Analyze(ctx context.Context, tenantID uuid.UUID, text string) (keyword.Analysis, error) {
	rules, err := c.Rules(ctx, tenantID)
	if err != nil {
		return keyword.Analysis{}, err
	}
	return keyword.Evaluate(rules, text), nil
}

// Rules returns the effective rule set for the tenant ordered by priority
// descending.
func (c *Classifier) Rules(ctx context.Context, tenantID uuid.UUID) ([]keyword.Rule, error) {
	global, err := c.bucket(ctx, globalKey, c.source.ActiveGlobal)
	if err != nil {
		return nil, err
	}
	own, err := c.bucket(ctx, tenantKey(tenantID), func(ctx context.Context) ([]keyword.Rule, error) {
		return c.source.ActiveForTenant(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}

	rules := make([]keyword.Rule, 0, len(global)+len(own))
	rules = append(rules, global...)
	rules = append(rules, own...)
	slices.SortStableFunc(rules, func(a, b keyword.Rule) int { return b.Priority - a.Priority })
	return rules, nil
}

// bucket reads one cache bucket, loading it from the source on a miss.
// Concurrent misses for the same key share a single load.
func (c *Classifier) bucket(ctx context.Context, key string, load func(context.Context) ([]keyword.Rule, error)) ([]keyword.Rule, error) {
	if c.cache != nil {
		rules, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("rule cache read failed, loading from database", "key", key, "error", err)
		} else if ok {
			return rules, nil
		}
	}

	gen := c.generation(key)
	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		rules, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading keyword rules %s: %w", key, err)
		}
		if c.cache != nil {
			c.store(ctx, key, gen, rules)
		}
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]keyword.Rule), nil
}

func (c *Classifier) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// store writes a loaded bucket unless it was invalidated after gen was read.
// The check and the write happen under mu so Invalidate cannot slip between
// them.
func (c *Classifier) store(ctx context.Context, key string, gen uint64, rules []keyword.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		c.logger.Debug("rule bucket invalidated during load, not caching", "key", key)
		return
	}
	if err := c.cache.Set(ctx, key, rules, c.ttl); err != nil {
		c.logger.Warn("rule cache write failed", "key", key, "error", err)
	}
}

// Invalidate implements keyword.Invalidator.
func (c *Classifier) Invalidate(ctx context.Context, tenantID *uuid.UUID) error {
	keys := []string{globalKey}
	if tenantID != nil {
		keys = append(keys, tenantKey(*tenantID))
	}

	c.mu.Lock()
	for _, k := range keys {
		c.gens[k]++
	}
	c.mu.Unlock()

	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, keys...)
}
