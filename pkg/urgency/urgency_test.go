package urgency

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pwviptbl/CallCenter/pkg/keyword"
)

func TestPolicyTier(t *testing.T) {
	tests := []struct {
		priority int
		want     Level
	}{
		{0, LevelNormal},
		{4, LevelNormal},
		{5, LevelUrgent},
		{7, LevelUrgent},
		{8, LevelCritical},
		{10, LevelCritical},
	}
	for _, tt := range tests {
		if got := DefaultPolicy.Tier(tt.priority); got != tt.want {
			t.Errorf("Tier(%d) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}

func TestPolicyEscalateNeverDowngrades(t *testing.T) {
	tests := []struct {
		current  Level
		priority int
		want     Level
	}{
		{LevelNormal, 0, LevelNormal},
		{LevelNormal, 5, LevelUrgent},
		{LevelUrgent, 0, LevelUrgent},
		{LevelUrgent, 9, LevelCritical},
		{LevelCritical, 0, LevelCritical},
		{LevelCritical, 5, LevelCritical},
		{Level(""), 0, LevelNormal},
	}
	for _, tt := range tests {
		if got := DefaultPolicy.Escalate(tt.current, tt.priority); got != tt.want {
			t.Errorf("Escalate(%q, %d) = %s, want %s", tt.current, tt.priority, got, tt.want)
		}
	}
}

func TestMergeKeywords(t *testing.T) {
	got, added := MergeKeywords([]string{"socorro"}, []string{"preso", "socorro"})
	if !added {
		t.Error("expected added = true")
	}
	if len(got) != 2 || got[0] != "socorro" || got[1] != "preso" {
		t.Errorf("merged = %v", got)
	}

	got, added = MergeKeywords(got, []string{"preso"})
	if added || len(got) != 2 {
		t.Errorf("re-merge = %v, added = %v", got, added)
	}

	got, added = MergeKeywords(nil, nil)
	if added || len(got) != 0 {
		t.Errorf("empty merge = %v, added = %v", got, added)
	}
}

type memSource struct {
	mu    sync.Mutex
	rules []keyword.Rule
	loads int
}

func (m *memSource) filter(keep func(keyword.Rule) bool) []keyword.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	var out []keyword.Rule
	for _, r := range m.rules {
		if r.Active && r.DeletedAt == nil && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memSource) ActiveGlobal(context.Context) ([]keyword.Rule, error) {
	return m.filter(func(r keyword.Rule) bool { return r.TenantID == nil }), nil
}

func (m *memSource) ActiveForTenant(_ context.Context, id uuid.UUID) ([]keyword.Rule, error) {
	return m.filter(func(r keyword.Rule) bool { return r.TenantID != nil && *r.TenantID == id }), nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]keyword.Rule
}

func newMemCache() *memCache { return &memCache{entries: make(map[string][]keyword.Rule)} }

func (c *memCache) Get(_ context.Context, key string) ([]keyword.Rule, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, rules []keyword.Rule, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = rules
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rule(tenantID *uuid.UUID, word string, priority int) keyword.Rule {
	return keyword.Rule{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Keyword:   word,
		MatchType: keyword.MatchContains,
		Priority:  priority,
		WholeWord: true,
		Active:    true,
	}
}

func TestClassifierScoping(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	inactive := rule(nil, "alarme", 9)
	inactive.Active = false
	deleted := rule(&tenantA, "sirene", 9)
	now := time.Now()
	deleted.DeletedAt = &now

	src := &memSource{rules: []keyword.Rule{
		rule(nil, "preso", 10),
		rule(nil, "socorro", 5),
		rule(&tenantA, "vazamento", 7),
		inactive,
		deleted,
	}}
	c := NewClassifier(src, newMemCache(), time.Hour, testLogger())
	ctx := context.Background()

	tests := []struct {
		name        string
		tenant      uuid.UUID
		text        string
		wantUrgent  bool
		wantMax     int
		wantMatches int
	}{
		{"global rule for tenant A", tenantA, "estou preso", true, 10, 1},
		{"global rule for tenant B", tenantB, "estou preso", true, 10, 1},
		{"tenant rule for owner", tenantA, "vazamento na cozinha", true, 7, 1},
		{"tenant rule for other tenant", tenantB, "vazamento na cozinha", false, 0, 0},
		{"max of several matches", tenantA, "socorro, vazamento, preso", true, 10, 3},
		{"inactive rule never matches", tenantA, "alarme", false, 0, 0},
		{"deleted rule never matches", tenantA, "sirene", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := c.Analyze(ctx, tt.tenant, tt.text)
			if err != nil {
				t.Fatalf("Analyze() error: %v", err)
			}
			if a.IsUrgent != tt.wantUrgent || a.MaxPriority != tt.wantMax || len(a.MatchedKeywords) != tt.wantMatches {
				t.Errorf("Analyze(%q) = %+v, want urgent=%v max=%d matches=%d",
					tt.text, a, tt.wantUrgent, tt.wantMax, tt.wantMatches)
			}
		})
	}
}

func TestClassifierRulesOrderedByPriority(t *testing.T) {
	tenantID := uuid.New()
	src := &memSource{rules: []keyword.Rule{
		rule(nil, "socorro", 5),
		rule(&tenantID, "vazamento", 7),
		rule(nil, "preso", 10),
	}}
	c := NewClassifier(src, nil, 0, testLogger())

	rules, err := c.Rules(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Rules() error: %v", err)
	}
	for i := 1; i < len(rules); i++ {
		if rules[i-1].Priority < rules[i].Priority {
			t.Fatalf("rules not ordered by priority: %d before %d", rules[i-1].Priority, rules[i].Priority)
		}
	}
}

func TestClassifierCachesAndInvalidates(t *testing.T) {
	tenantID := uuid.New()
	src := &memSource{rules: []keyword.Rule{rule(nil, "preso", 10)}}
	cache := newMemCache()
	c := NewClassifier(src, cache, time.Hour, testLogger())
	ctx := context.Background()

	if _, err := c.Analyze(ctx, tenantID, "preso"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Analyze(ctx, tenantID, "preso"); err != nil {
		t.Fatal(err)
	}
	if src.loads != 2 {
		t.Fatalf("loads = %d, want 2 (one per bucket)", src.loads)
	}

	// A new tenant rule is invisible until its bucket is invalidated.
	src.mu.Lock()
	src.rules = append(src.rules, rule(&tenantID, "vazamento", 7))
	src.mu.Unlock()

	a, _ := c.Analyze(ctx, tenantID, "vazamento")
	if a.IsUrgent {
		t.Fatal("stale cache should not see the new rule yet")
	}

	if err := c.Invalidate(ctx, &tenantID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.entries[globalKey]; ok {
		t.Error("tenant invalidation should also clear the global bucket")
	}

	a, _ = c.Analyze(ctx, tenantID, "vazamento")
	if !a.IsUrgent || a.MaxPriority != 7 {
		t.Errorf("after invalidation got %+v, want vazamento at 7", a)
	}
}

// slowGlobalSource takes a snapshot of the global rules, then holds the
// first load until release is closed.
type slowGlobalSource struct {
	*memSource
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *slowGlobalSource) ActiveGlobal(ctx context.Context) ([]keyword.Rule, error) {
	rules, err := s.memSource.ActiveGlobal(ctx)
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	return rules, err
}

func TestClassifierDoesNotCacheLoadRacingInvalidate(t *testing.T) {
	tenantID := uuid.New()
	src := &slowGlobalSource{
		memSource: &memSource{rules: []keyword.Rule{rule(nil, "preso", 10)}},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	cache := newMemCache()
	c := NewClassifier(src, cache, time.Hour, testLogger())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Rules(ctx, tenantID)
		done <- err
	}()
	<-src.started

	src.mu.Lock()
	src.rules = append(src.rules, rule(nil, "alarme", 8))
	src.mu.Unlock()
	if err := c.Invalidate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Rules() error: %v", err)
	}

	cache.mu.Lock()
	_, cached := cache.entries[globalKey]
	cache.mu.Unlock()
	if cached {
		t.Error("load that raced an invalidation wrote its stale rules to the cache")
	}

	a, err := c.Analyze(ctx, tenantID, "alarme disparado")
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsUrgent || a.MaxPriority != 8 {
		t.Errorf("after invalidation got %+v, want alarme at 8", a)
	}
}

func TestTenantKey(t *testing.T) {
	id := uuid.MustParse("6f1c8a8e-8d3e-4c53-9a57-5d7f0c2a8b11")
	if got := tenantKey(id); got != "rules:6f1c8a8e-8d3e-4c53-9a57-5d7f0c2a8b11" {
		t.Errorf("tenantKey = %q", got)
	}
	if globalKey != "rules:global" {
		t.Errorf("globalKey = %q", globalKey)
	}
}
