package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
)

func TestArticleRepo_GetArticle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewArticleRepo(db)
	ctx := context.Background()

	cols := []string{"id", "publisher_id", "author_id", "title", "price_cents", "license_type", "custom_splits", "status", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, 3, 11, "Night Market", nil, "revenue_share", []byte(`{"author":7000,"publisher":3000}`), "published", time.Now()))

	a, err := repo.GetArticle(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Night Market", a.Title)
	assert.Nil(t, a.PriceCents)
	assert.Equal(t, models.LicenseRevenueShare, a.LicenseType)
	assert.Equal(t, models.ArticlePublished, a.Status)
	assert.Equal(t, money.Rules{money.RoleAuthor: 7000, money.RolePublisher: 3000}, a.CustomSplits)

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err = repo.GetArticle(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleRepo_GetPublisher(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewArticleRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM publishers WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "default_price_cents", "default_author_split_bps"}).
			AddRow(3, "Harbour Gazette", "harbour-gazette", 25, 7000))

	p, err := repo.GetPublisher(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(25), p.DefaultPriceCents)
	require.NotNil(t, p.DefaultAuthorSplitBps)
	assert.Equal(t, int64(7000), *p.DefaultAuthorSplitBps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleRepo_RemoveArticle(t *testing.T) {
	ctx := context.Background()
	lockArticle := regexp.QuoteMeta("SELECT author_id FROM articles WHERE id = $1 FOR UPDATE")
	countDebits := regexp.QuoteMeta("SELECT COUNT(*) FROM transactions WHERE article_id = $1 AND type = 'debit'")

	setup := func(t *testing.T) (*ArticleRepo, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return NewArticleRepo(db), mock
	}

	t.Run("purchased article is archived under the row lock", func(t *testing.T) {
		repo, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(11))
		mock.ExpectQuery(countDebits).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET status = $1 WHERE id = $2")).
			WithArgs("archived", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		archived, err := repo.RemoveArticle(ctx, 7, 11)
		require.NoError(t, err)
		assert.True(t, archived)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unsold article is deleted", func(t *testing.T) {
		repo, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(11))
		mock.ExpectQuery(countDebits).WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT article_delete")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM articles WHERE id = $1")).
			WithArgs(int64(8)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		archived, err := repo.RemoveArticle(ctx, 8, 11)
		require.NoError(t, err)
		assert.False(t, archived)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign key on delete falls back to archive", func(t *testing.T) {
		repo, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(11))
		mock.ExpectQuery(countDebits).WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT article_delete")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM articles WHERE id = $1")).
			WithArgs(int64(8)).
			WillReturnError(&pq.Error{Code: "23503"})
		mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT article_delete")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET status = $1 WHERE id = $2")).
			WithArgs("archived", int64(8)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		archived, err := repo.RemoveArticle(ctx, 8, 11)
		require.NoError(t, err)
		assert.True(t, archived)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("another author's article is not found", func(t *testing.T) {
		repo, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(12))
		mock.ExpectRollback()

		_, err := repo.RemoveArticle(ctx, 9, 11)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing article is not found", func(t *testing.T) {
		repo, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}))
		mock.ExpectRollback()

		_, err := repo.RemoveArticle(ctx, 404, 11)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestArticleRepo_SetCustomSplits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewArticleRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET custom_splits = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SetCustomSplits(context.Background(), 7, money.Rules{money.RoleAuthor: 10000}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET custom_splits = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetCustomSplits(context.Background(), 9, money.Rules{money.RoleAuthor: 10000}), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitRuleRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSplitRuleRepo(db)
	ctx := context.Background()

	t.Run("replace swaps the whole set", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM split_rules WHERE publisher_id = $1")).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO split_rules").
			WithArgs(int64(3), "author", int64(7000), "Staff writer").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO split_rules").
			WithArgs(int64(3), "publisher", int64(3000), "").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err := repo.ReplaceRules(ctx, 3, []models.SplitRule{
			{Role: money.RoleAuthor, PercentBps: 7000, RecipientLabel: "Staff writer"},
			{Role: money.RolePublisher, PercentBps: 3000},
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list", func(t *testing.T) {
		mock.ExpectQuery("FROM split_rules").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "publisher_id", "role", "percent_bps", "recipient_label", "created_at"}).
				AddRow(1, 3, "author", 7000, "Staff writer", time.Now()).
				AddRow(2, 3, "publisher", 3000, "", time.Now()))

		rules, err := repo.ListRules(ctx, 3)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, money.RoleAuthor, rules[0].Role)
		assert.Equal(t, int64(3000), rules[1].PercentBps)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
