package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/repository"
)

// SplitPolicy decides what happens to a publisher rule set above 100%.
type SplitPolicy string

const (
	SplitPolicyWarn   SplitPolicy = "warn"
	SplitPolicyReject SplitPolicy = "reject"
)

type SplitRuleStore interface {
	ListRules(ctx context.Context, publisherID int64) ([]models.SplitRule, error)
	ReplaceRules(ctx context.Context, publisherID int64, rules []models.SplitRule) error
}

type SplitArticleStore interface {
	ArticleLookup
	SetCustomSplits(ctx context.Context, articleID int64, splits money.Rules) error
}

type SplitRulesResult struct {
	Publisher *models.Publisher  `json:"publisher"`
	Rules     []models.SplitRule `json:"rules"`
	TotalBps  int64              `json:"total_bps"`
	Warning   string             `json:"warning,omitempty"`
}

type SplitRuleService struct {
	rules    SplitRuleStore
	articles SplitArticleStore
	policy   SplitPolicy
}

func NewSplitRuleService(rules SplitRuleStore, articles SplitArticleStore, policy SplitPolicy) *SplitRuleService {
	if policy != SplitPolicyReject {
		policy = SplitPolicyWarn
	}
	return &SplitRuleService{rules: rules, articles: articles, policy: policy}
}

func (s *SplitRuleService) publisher(ctx context.Context, publisherID int64) (*models.Publisher, error) {
	pub, err := s.articles.GetPublisher(ctx, publisherID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "publisher not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load publisher %d: %w", publisherID, err)
	}
	return pub, nil
}

func (s *SplitRuleService) ListRules(ctx context.Context, actor Actor, publisherID int64) (*SplitRulesResult, error) {
	if !actor.IsAdmin {
		return nil, newError(KindUnauthorized, "admin access required", nil)
	}
	pub, err := s.publisher(ctx, publisherID)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.ListRules(ctx, publisherID)
	if err != nil {
		return nil, fmt.Errorf("list split rules: %w", err)
	}
	if rules == nil {
		rules = []models.SplitRule{}
	}
	return &SplitRulesResult{Publisher: pub, Rules: rules, TotalBps: totalBps(rules)}, nil
}

// ReplaceRules swaps the publisher's rule set. Rules with a blank role are
// dropped; an empty label defaults to the role.
func (s *SplitRuleService) ReplaceRules(ctx context.Context, actor Actor, publisherID int64, in []models.SplitRule) (*SplitRulesResult, error) {
	if !actor.IsAdmin {
		return nil, newError(KindUnauthorized, "admin access required", nil)
	}
	pub, err := s.publisher(ctx, publisherID)
	if err != nil {
		return nil, err
	}

	rules := make([]models.SplitRule, 0, len(in))
	for _, r := range in {
		role := money.Role(strings.TrimSpace(string(r.Role)))
		if role == "" {
			continue
		}
		if r.PercentBps < 0 {
			return nil, newError(KindInvalidSplit, fmt.Sprintf("share for %s cannot be negative", role), nil)
		}
		label := strings.TrimSpace(r.RecipientLabel)
		if label == "" {
			label = string(role)
		}
		rules = append(rules, models.SplitRule{
			PublisherID:    publisherID,
			Role:           role,
			PercentBps:     r.PercentBps,
			RecipientLabel: label,
		})
	}

	total := totalBps(rules)
	result := &SplitRulesResult{Publisher: pub, Rules: rules, TotalBps: total}
	if total > money.BasisPoints {
		if s.policy == SplitPolicyReject {
			return nil, newError(KindInvalidSplit, "split total exceeds 100%", nil)
		}
		result.Warning = "Total exceeds 100%"
	}

	if err := s.rules.ReplaceRules(ctx, publisherID, rules); err != nil {
		return nil, fmt.Errorf("replace split rules: %w", err)
	}
	return result, nil
}

// SetArticleSplits stores a per-article split override. Totals above 100% are
// always rejected here.
func (s *SplitRuleService) SetArticleSplits(ctx context.Context, actor Actor, articleID int64, splits money.Rules) (int64, error) {
	article, err := s.articles.GetArticle(ctx, articleID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, newError(KindNotFound, "article not found or not authorized", nil)
	}
	if err != nil {
		return 0, fmt.Errorf("load article %d: %w", articleID, err)
	}
	if !actor.IsAdmin && !managesPublisher(actor, article.PublisherID) {
		return 0, newError(KindNotFound, "article not found or not authorized", nil)
	}

	for role, bps := range splits {
		if role == "" || bps < 0 {
			return 0, newError(KindInvalidSplit, "split shares must name a role and be non-negative", nil)
		}
	}
	total := splits.Total()
	if total > money.BasisPoints {
		return 0, newError(KindInvalidSplit, "split total exceeds 100%", nil)
	}

	var stored money.Rules
	if len(splits) > 0 {
		stored = splits
	}
	if err := s.articles.SetCustomSplits(ctx, articleID, stored); err != nil {
		return 0, fmt.Errorf("store article splits: %w", err)
	}
	return total, nil
}

func managesPublisher(actor Actor, publisherID *int64) bool {
	return actor.PublisherID != nil && publisherID != nil && *actor.PublisherID == *publisherID
}

func totalBps(rules []models.SplitRule) int64 {
	var total int64
	for _, r := range rules {
		total += r.PercentBps
	}
	return total
}
