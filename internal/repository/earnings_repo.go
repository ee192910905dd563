package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/paypr/backend/internal/models"
)

type EarningsRepo struct {
	db *sql.DB
}

func NewEarningsRepo(db *sql.DB) *EarningsRepo {
	return &EarningsRepo{db: db}
}

// InsertEarning is idempotent on (transaction_id, author_id): replaying the
// same job leaves the first row in place.
func (r *EarningsRepo) InsertEarning(ctx context.Context, e *models.AuthorEarnings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO author_earnings
		(author_id, article_id, transaction_id, amount_cents, percentage_bps, publisher_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id, author_id) DO NOTHING`,
		e.AuthorID, e.ArticleID, e.TransactionID, e.AmountCents, e.PercentageBps, e.PublisherID)
	return err
}

func (r *EarningsRepo) Summary(ctx context.Context, authorID int64, since time.Time) (*models.EarningsSummary, error) {
	summary := &models.EarningsSummary{
		TopArticles:        []models.ArticleEarnings{},
		RecentTransactions: []models.AuthorEarnings{},
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE created_at >= $2), 0)
		FROM author_earnings
		WHERE author_id = $1`, authorID, since).Scan(&summary.TotalCents, &summary.Last30DaysCents)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.title, SUM(e.amount_cents), COUNT(e.id)
		FROM author_earnings e
		JOIN articles a ON a.id = e.article_id
		WHERE e.author_id = $1
		GROUP BY a.id, a.title
		ORDER BY SUM(e.amount_cents) DESC
		LIMIT 10`, authorID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ae models.ArticleEarnings
		if err := rows.Scan(&ae.ArticleID, &ae.Title, &ae.EarningsCents, &ae.Sales); err != nil {
			rows.Close()
			return nil, err
		}
		summary.TopArticles = append(summary.TopArticles, ae)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT id, author_id, article_id, transaction_id, amount_cents, percentage_bps, publisher_id, created_at
		FROM author_earnings
		WHERE author_id = $1
		ORDER BY created_at DESC
		LIMIT 50`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e models.AuthorEarnings
		if err := rows.Scan(&e.ID, &e.AuthorID, &e.ArticleID, &e.TransactionID, &e.AmountCents, &e.PercentageBps, &e.PublisherID, &e.CreatedAt); err != nil {
			return nil, err
		}
		summary.RecentTransactions = append(summary.RecentTransactions, e)
	}
	return summary, rows.Err()
}

// AuthorIDForUser resolves the author profile owned by a reader account.
func (r *EarningsRepo) AuthorIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM author_profiles WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}
