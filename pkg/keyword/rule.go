package keyword

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Rule is a keyword rule. A nil TenantID marks a global rule that applies
// to every tenant.
type Rule struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      *uuid.UUID `json:"tenant_id,omitempty"`
	Keyword       string     `json:"keyword"`
	MatchType     MatchType  `json:"match_type"`
	Priority      int        `json:"priority_level"`
	CaseSensitive bool       `json:"case_sensitive"`
	WholeWord     bool       `json:"whole_word"`
	Description   string     `json:"description,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// IsGlobal reports whether the rule applies to all tenants.
func (r Rule) IsGlobal() bool { return r.TenantID == nil }

// Matches reports whether the rule's pattern matches text.
func (r Rule) Matches(text string) bool {
	return Match(r.Keyword, r.MatchType, text, r.CaseSensitive, r.WholeWord)
}

// MatchedKeyword describes one rule that matched during analysis.
type MatchedKeyword struct {
	ID          uuid.UUID `json:"id"`
	Keyword     string    `json:"keyword"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority_level"`
}

// Analysis is the result of scoring a text against a rule set.
type Analysis struct {
	IsUrgent        bool             `json:"is_urgent"`
	MatchedKeywords []MatchedKeyword `json:"matched_keywords"`
	MaxPriority     int              `json:"priority_level"`
}

// Keywords returns the matched keyword strings in match order.
func (a Analysis) Keywords() []string {
	out := make([]string, 0, len(a.MatchedKeywords))
	for _, m := range a.MatchedKeywords {
		out = append(out, m.Keyword)
	}
	return out
}

// Evaluate runs every rule against text and accumulates the matches and the
// highest matched priority.
func Evaluate(rules []Rule, text string) Analysis {
	a := Analysis{MatchedKeywords: []MatchedKeyword{}}
	for _, r := range rules {
		if !r.Matches(text) {
			continue
		}
		a.MatchedKeywords = append(a.MatchedKeywords, MatchedKeyword{
			ID:          r.ID,
			Keyword:     r.Keyword,
			Description: r.Description,
			Priority:    r.Priority,
		})
		a.MaxPriority = max(a.MaxPriority, r.Priority)
	}
	a.IsUrgent = len(a.MatchedKeywords) > 0
	return a
}

// Analyzer scores text for a tenant.
type Analyzer interface {
	Analyze(ctx context.Context, tenantID uuid.UUID, text string) (Analysis, error)
}

// Invalidator drops cached rule sets. A nil tenant clears only the global
// bucket; a tenant id clears that tenant's bucket and the global one.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID *uuid.UUID) error
}
