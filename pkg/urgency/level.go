// Package urgency scores message text against keyword rules and maps the
// result onto an urgency tier.
package urgency

// Level is a ticket urgency tier.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelUrgent   Level = "urgent"
	LevelCritical Level = "critical"
)

// Rank orders levels from normal (0) to critical (2). Unknown levels rank as
// normal.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelUrgent:
		return 1
	default:
		return 0
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelNormal, LevelUrgent, LevelCritical:
		return true
	}
	return false
}

// Max returns the higher of two levels.
func Max(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	if !a.Valid() {
		return LevelNormal
	}
	return a
}

// Policy maps a matched priority onto a tier.
type Policy struct {
	UrgentAt   int
	CriticalAt int
}

// DefaultPolicy is priority >= 8 critical, >= 5 urgent.
var DefaultPolicy = Policy{UrgentAt: 5, CriticalAt: 8}

// Tier returns the level for a maximum matched priority.
func (p Policy) Tier(priority int) Level {
	switch {
	case priority >= p.CriticalAt:
		return LevelCritical
	case priority >= p.UrgentAt:
		return LevelUrgent
	default:
		return LevelNormal
	}
}

// Escalate returns the level a ticket at current should move to after a
// message scored priority. The result is never lower than current.
func (p Policy) Escalate(current Level, priority int) Level {
	return Max(current, p.Tier(priority))
}

// MergeKeywords appends the keywords from next that are not already in
// existing, preserving order. It reports whether anything was added.
func MergeKeywords(existing, next []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(existing)+len(next))
	out := make([]string, 0, len(existing)+len(next))
	for _, k := range existing {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	added := false
	for _, k := range next {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
		added = true
	}
	return out, added
}
