package models

import "time"

// Event is one analytics record. Rows are written best effort and never read
// by the ledger.
type Event struct {
	ID          int64          `json:"id" db:"id"`
	UserID      *int64         `json:"user_id,omitempty" db:"user_id"`
	Name        string         `json:"event_name" db:"event_name"`
	ArticleID   *int64         `json:"article_id,omitempty" db:"article_id"`
	PublisherID *int64         `json:"publisher_id,omitempty" db:"publisher_id"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}
