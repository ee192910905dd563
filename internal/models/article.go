package models

import (
	"time"

	"github.com/paypr/backend/internal/money"
)

// LicenseType governs an article's default revenue split.
type LicenseType string

const (
	LicenseIndependent  LicenseType = "independent"
	LicenseRevenueShare LicenseType = "revenue_share"
	LicenseBuyout       LicenseType = "buyout"
)

// ArticleStatus is the editorial state of an article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePending   ArticleStatus = "pending"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

// DefaultArticlePriceCents applies when neither the article nor its publisher
// carries a price.
const DefaultArticlePriceCents int64 = 25

type Article struct {
	ID           int64         `json:"id" db:"id"`
	PublisherID  *int64        `json:"publisher_id,omitempty" db:"publisher_id"`
	AuthorID     *int64        `json:"author_id,omitempty" db:"author_id"`
	Title        string        `json:"title" db:"title"`
	PriceCents   *int64        `json:"price_cents,omitempty" db:"price_cents"`
	LicenseType  LicenseType   `json:"license_type" db:"license_type"`
	CustomSplits money.Rules   `json:"custom_splits,omitempty" db:"custom_splits"`
	Status       ArticleStatus `json:"status" db:"status"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

type Publisher struct {
	ID                    int64  `json:"id" db:"id"`
	Name                  string `json:"name" db:"name"`
	Slug                  string `json:"slug" db:"slug"`
	DefaultPriceCents     int64  `json:"default_price_cents" db:"default_price_cents"`
	DefaultAuthorSplitBps *int64 `json:"default_author_split_bps,omitempty" db:"default_author_split_bps"`
}

// EffectivePrice resolves the price a reader pays for the article.
func (a *Article) EffectivePrice(pub *Publisher) int64 {
	if a.PriceCents != nil && *a.PriceCents > 0 {
		return *a.PriceCents
	}
	if pub != nil && pub.DefaultPriceCents > 0 {
		return pub.DefaultPriceCents
	}
	return DefaultArticlePriceCents
}
