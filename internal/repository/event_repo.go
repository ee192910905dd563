package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/paypr/backend/internal/models"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) InsertEvent(ctx context.Context, e *models.Event) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO events (user_id, event_name, article_id, publisher_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.UserID, e.Name, e.ArticleID, e.PublisherID, meta,
	).Scan(&e.ID, &e.CreatedAt)
}
