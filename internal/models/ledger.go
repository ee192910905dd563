package models

import (
	"time"

	"github.com/paypr/backend/internal/money"
)

// AuthorEarnings is derived from a debit's split breakdown. One row per
// (transaction, author); never updated.
type AuthorEarnings struct {
	ID            int64     `json:"id" db:"id"`
	AuthorID      int64     `json:"author_id" db:"author_id"`
	ArticleID     *int64    `json:"article_id,omitempty" db:"article_id"`
	TransactionID int64     `json:"transaction_id" db:"transaction_id"`
	AmountCents   int64     `json:"amount_cents" db:"amount_cents"`
	PercentageBps int64     `json:"percentage_bps" db:"percentage_bps"`
	PublisherID   *int64    `json:"publisher_id,omitempty" db:"publisher_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RevokedToken stores the sha256 of an unlock token, never the token itself.
type RevokedToken struct {
	ID        int64     `json:"id" db:"id"`
	TokenHash string    `json:"token_hash" db:"token_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SplitRule is one configured publisher share.
type SplitRule struct {
	ID             int64      `json:"id" db:"id"`
	PublisherID    int64      `json:"publisher_id" db:"publisher_id"`
	Role           money.Role `json:"role" db:"role" validate:"max=50"`
	PercentBps     int64      `json:"percent_bps" db:"percent_bps" validate:"gte=0,lte=10000"`
	RecipientLabel string     `json:"recipient_label" db:"recipient_label" validate:"max=200"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// EarningsSummary backs the author dashboard.
type EarningsSummary struct {
	TotalCents         int64             `json:"total_earnings_cents"`
	Last30DaysCents    int64             `json:"last_30_days_cents"`
	TopArticles        []ArticleEarnings `json:"top_articles"`
	RecentTransactions []AuthorEarnings  `json:"recent_transactions"`
}

type ArticleEarnings struct {
	ArticleID     int64  `json:"article_id"`
	Title         string `json:"title"`
	EarningsCents int64  `json:"earnings_cents"`
	Sales         int64  `json:"sales"`
}
