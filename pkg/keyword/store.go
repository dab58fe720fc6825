package keyword

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pwviptbl/CallCenter/internal/db"
)

// Store provides database operations for keyword rules.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const ruleColumns = `id, tenant_id, keyword, match_type, priority_level, case_sensitive, whole_word,
	COALESCE(description, ''), is_active, created_at, updated_at, deleted_at`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Keyword, &r.MatchType, &r.Priority, &r.CaseSensitive, &r.WholeWord,
		&r.Description, &r.Active, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	return r, err
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveGlobal returns the active, non-deleted global rules ordered by
// priority descending.
func (s *Store) ActiveGlobal(ctx context.Context) ([]Rule, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+ruleColumns+` FROM keyword_rules
		 WHERE tenant_id IS NULL AND is_active AND deleted_at IS NULL
		 ORDER BY priority_level DESC, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying global keyword rules: %w", err)
	}
	return collectRules(rows)
}

// ActiveForTenant returns the active, non-deleted rules scoped to the tenant,
// excluding global rules.
func (s *Store) ActiveForTenant(ctx context.Context, tenantID uuid.UUID) ([]Rule, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+ruleColumns+` FROM keyword_rules
		 WHERE tenant_id = $1 AND is_active AND deleted_at IS NULL
		 ORDER BY priority_level DESC, created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying tenant keyword rules: %w", err)
	}
	return collectRules(rows)
}

// Get returns a rule by ID, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	return scanRule(s.dbtx.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM keyword_rules WHERE id = $1`, id))
}

// Create inserts a new rule and returns it.
func (s *Store) Create(ctx context.Context, r Rule) (Rule, error) {
	return scanRule(s.dbtx.QueryRow(ctx,
		`INSERT INTO keyword_rules
			(id, tenant_id, keyword, match_type, priority_level, case_sensitive, whole_word, description, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		 RETURNING `+ruleColumns,
		uuid.New(), r.TenantID, r.Keyword, r.MatchType, r.Priority, r.CaseSensitive, r.WholeWord,
		r.Description, r.Active,
	))
}

// Update overwrites the mutable fields of a non-deleted rule.
func (s *Store) Update(ctx context.Context, r Rule) (Rule, error) {
	return scanRule(s.dbtx.QueryRow(ctx,
		`UPDATE keyword_rules SET
			keyword = $2, match_type = $3, priority_level = $4, case_sensitive = $5,
			whole_word = $6, description = NULLIF($7, ''), is_active = $8, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+ruleColumns,
		r.ID, r.Keyword, r.MatchType, r.Priority, r.CaseSensitive, r.WholeWord, r.Description, r.Active,
	))
}

// SoftDelete marks a rule deleted. It returns pgx.ErrNoRows if the rule does
// not exist or is already deleted.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE keyword_rules SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("deleting keyword rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Restore clears the deleted marker and returns the rule.
func (s *Store) Restore(ctx context.Context, id uuid.UUID) (Rule, error) {
	return scanRule(s.dbtx.QueryRow(ctx,
		`UPDATE keyword_rules SET deleted_at = NULL, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NOT NULL
		 RETURNING `+ruleColumns, id))
}

// EnsureGlobal inserts a global rule unless one with the same keyword and
// match type already exists. It reports whether a row was inserted.
func (s *Store) EnsureGlobal(ctx context.Context, r Rule) (bool, error) {
	tag, err := s.dbtx.Exec(ctx,
		`INSERT INTO keyword_rules
			(id, tenant_id, keyword, match_type, priority_level, case_sensitive, whole_word, description, is_active)
		 SELECT $1, NULL, $2, $3, $4, $5, $6, NULLIF($7, ''), true
		 WHERE NOT EXISTS (
			SELECT 1 FROM keyword_rules WHERE tenant_id IS NULL AND keyword = $2 AND match_type = $3
		 )`,
		uuid.New(), r.Keyword, r.MatchType, r.Priority, r.CaseSensitive, r.WholeWord, r.Description,
	)
	if err != nil {
		return false, fmt.Errorf("seeding keyword rule %q: %w", r.Keyword, err)
	}
	return tag.RowsAffected() > 0, nil
}
