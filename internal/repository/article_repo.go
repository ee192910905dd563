package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
)

type ArticleRepo struct {
	db *sql.DB
}

func NewArticleRepo(db *sql.DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

func (r *ArticleRepo) GetArticle(ctx context.Context, id int64) (*models.Article, error) {
	var a models.Article
	err := r.db.QueryRowContext(ctx, `
		SELECT id, publisher_id, author_id, title, price_cents, license_type, custom_splits, status, created_at
		FROM articles
		WHERE id = $1`, id).Scan(
		&a.ID, &a.PublisherID, &a.AuthorID, &a.Title, &a.PriceCents, &a.LicenseType, &a.CustomSplits, &a.Status, &a.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *ArticleRepo) GetPublisher(ctx context.Context, id int64) (*models.Publisher, error) {
	var p models.Publisher
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, default_price_cents, default_author_split_bps
		FROM publishers
		WHERE id = $1`, id).Scan(&p.ID, &p.Name, &p.Slug, &p.DefaultPriceCents, &p.DefaultAuthorSplitBps)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// RemoveArticle deletes an article owned by authorID, or archives it when it
// has debits. The row is held FOR UPDATE from the ownership check to the write,
// so a purchase either commits first and is counted or waits and sees the
// final state. A foreign key hit on delete also falls back to archiving.
func (r *ArticleRepo) RemoveArticle(ctx context.Context, articleID, authorID int64) (archived bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin article removal: %w", err)
	}
	defer tx.Rollback()

	var owner sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT author_id FROM articles
		WHERE id = $1
		FOR UPDATE`, articleID).Scan(&owner)
	if err != nil {
		return false, notFound(err)
	}
	if !owner.Valid || owner.Int64 != authorID {
		return false, ErrNotFound
	}

	var debits int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE article_id = $1 AND type = 'debit'`, articleID).Scan(&debits)
	if err != nil {
		return false, fmt.Errorf("count debits: %w", err)
	}

	if debits == 0 {
		archived, err = deleteOrArchive(ctx, tx, articleID)
	} else {
		archived, err = true, archive(ctx, tx, articleID)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit article removal: %w", err)
	}
	return archived, nil
}

func deleteOrArchive(ctx context.Context, tx *sql.Tx, articleID int64) (bool, error) {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT article_delete`); err != nil {
		return false, err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, articleID)
	if err == nil {
		return false, nil
	}
	if !isForeignKeyViolation(err) {
		return false, fmt.Errorf("delete article: %w", err)
	}

	log.Printf("[ARTICLES] Article %d is still referenced, archiving instead", articleID)
	if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT article_delete`); err != nil {
		return false, err
	}
	return true, archive(ctx, tx, articleID)
}

func archive(ctx context.Context, tx *sql.Tx, articleID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE articles SET status = $1 WHERE id = $2`, models.ArticleArchived, articleID)
	if err != nil {
		return fmt.Errorf("archive article: %w", err)
	}
	return expectOneRow(res)
}

func (r *ArticleRepo) SetCustomSplits(ctx context.Context, articleID int64, splits money.Rules) error {
	res, err := r.db.ExecContext(ctx, `UPDATE articles SET custom_splits = $1 WHERE id = $2`, splits, articleID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
