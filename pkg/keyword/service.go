package keyword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

var (
	// ErrForbidden is returned when a caller touches another tenant's rule or
	// a global rule without the admin role.
	ErrForbidden = errors.New("keyword rule belongs to another owner")

	// ErrInvalidPattern is returned for a regex rule that does not compile.
	ErrInvalidPattern = errors.New("invalid regex pattern")
)

// CreateRequest is the JSON body for POST /api/v1/keywords.
type CreateRequest struct {
	Keyword       string    `json:"keyword" validate:"required,max=255"`
	MatchType     MatchType `json:"match_type" validate:"required,oneof=exact contains regex"`
	Priority      int       `json:"priority_level" validate:"required,min=1,max=10"`
	CaseSensitive bool      `json:"case_sensitive"`
	WholeWord     bool      `json:"whole_word"`
	Description   string    `json:"description" validate:"max=255"`
	Active        *bool     `json:"active"`
	Global        bool      `json:"global"`
}

// UpdateRequest is the JSON body for PUT /api/v1/keywords/{id}.
type UpdateRequest struct {
	Keyword       string    `json:"keyword" validate:"required,max=255"`
	MatchType     MatchType `json:"match_type" validate:"required,oneof=exact contains regex"`
	Priority      int       `json:"priority_level" validate:"required,min=1,max=10"`
	CaseSensitive bool      `json:"case_sensitive"`
	WholeWord     bool      `json:"whole_word"`
	Description   string    `json:"description" validate:"max=255"`
	Active        *bool     `json:"active"`
}

// TestRequest is the JSON body for POST /api/v1/keywords/test.
type TestRequest struct {
	Keyword       string    `json:"keyword" validate:"required"`
	MatchType     MatchType `json:"match_type" validate:"required,oneof=exact contains regex"`
	Text          string    `json:"text" validate:"required"`
	CaseSensitive bool      `json:"case_sensitive"`
	WholeWord     bool      `json:"whole_word"`
}

// AnalyzeRequest is the JSON body for POST /api/v1/keywords/analyze.
type AnalyzeRequest struct {
	Text string `json:"text" validate:"required"`
}

// Caller identifies who is mutating rules.
type Caller struct {
	TenantID uuid.UUID
	Admin    bool
}

// RuleStore is the persistence the Service needs. *Store implements it.
type RuleStore interface {
	Get(ctx context.Context, id uuid.UUID) (Rule, error)
	Create(ctx context.Context, r Rule) (Rule, error)
	Update(ctx context.Context, r Rule) (Rule, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) (Rule, error)
}

// Service encapsulates keyword rule administration.
type Service struct {
	rules    RuleStore
	cache    Invalidator
	analyzer Analyzer
	logger   *slog.Logger
}

// NewService creates a keyword Service.
func NewService(rules RuleStore, cache Invalidator, analyzer Analyzer, logger *slog.Logger) *Service {
	return &Service{rules: rules, cache: cache, analyzer: analyzer, logger: logger}
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, c Caller, req CreateRequest) (Rule, error) {
	if req.Global && !c.Admin {
		return Rule{}, ErrForbidden
	}
	if err := ValidatePattern(req.MatchType, req.Keyword); err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	r := Rule{
		Keyword:       req.Keyword,
		MatchType:     req.MatchType,
		Priority:      req.Priority,
		CaseSensitive: req.CaseSensitive,
		WholeWord:     req.WholeWord,
		Description:   req.Description,
		Active:        req.Active == nil || *req.Active,
	}
	if !req.Global {
		tid := c.TenantID
		r.TenantID = &tid
	}

	created, err := s.rules.Create(ctx, r)
	if err != nil {
		return Rule{}, fmt.Errorf("creating keyword rule: %w", err)
	}
	s.invalidate(ctx, created.TenantID)
	return created, nil
}

// Update replaces the mutable fields of a rule the caller owns.
func (s *Service) Update(ctx context.Context, c Caller, id uuid.UUID, req UpdateRequest) (Rule, error) {
	existing, err := s.owned(ctx, c, id)
	if err != nil {
		return Rule{}, err
	}
	if err := ValidatePattern(req.MatchType, req.Keyword); err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	existing.Keyword = req.Keyword
	existing.MatchType = req.MatchType
	existing.Priority = req.Priority
	existing.CaseSensitive = req.CaseSensitive
	existing.WholeWord = req.WholeWord
	existing.Description = req.Description
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.rules.Update(ctx, existing)
	if err != nil {
		return Rule{}, fmt.Errorf("updating keyword rule: %w", err)
	}
	s.invalidate(ctx, updated.TenantID)
	return updated, nil
}

// Delete soft-deletes a rule the caller owns.
func (s *Service) Delete(ctx context.Context, c Caller, id uuid.UUID) error {
	existing, err := s.owned(ctx, c, id)
	if err != nil {
		return err
	}
	if err := s.rules.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, existing.TenantID)
	return nil
}

// Restore undeletes a rule the caller owns.
func (s *Service) Restore(ctx context.Context, c Caller, id uuid.UUID) (Rule, error) {
	if _, err := s.owned(ctx, c, id); err != nil {
		return Rule{}, err
	}
	restored, err := s.rules.Restore(ctx, id)
	if err != nil {
		return Rule{}, fmt.Errorf("restoring keyword rule: %w", err)
	}
	s.invalidate(ctx, restored.TenantID)
	return restored, nil
}

// Test evaluates an unsaved pattern against a sample text.
func (s *Service) Test(req TestRequest) bool {
	return Match(req.Keyword, req.MatchType, req.Text, req.CaseSensitive, req.WholeWord)
}

// Analyze scores text with the tenant's effective rule set.
func (s *Service) Analyze(ctx context.Context, tenantID uuid.UUID, text string) (Analysis, error) {
	return s.analyzer.Analyze(ctx, tenantID, text)
}

func (s *Service) owned(ctx context.Context, c Caller, id uuid.UUID) (Rule, error) {
	r, err := s.rules.Get(ctx, id)
	if err != nil {
		return Rule{}, fmt.Errorf("getting keyword rule: %w", err)
	}
	if r.IsGlobal() {
		if !c.Admin {
			return Rule{}, ErrForbidden
		}
		return r, nil
	}
	if *r.TenantID != c.TenantID {
		return Rule{}, ErrForbidden
	}
	return r, nil
}

// invalidate clears cached rule sets. A failure only delays visibility of the
// change until the cache entry expires.
func (s *Service) invalidate(ctx context.Context, tenantID *uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID); err != nil {
		s.logger.Warn("invalidating keyword rule cache", "error", err)
	}
}
