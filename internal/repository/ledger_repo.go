package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paypr/backend/internal/models"
)

// LedgerTx is the set of statements a ledger operation may run inside one
// database transaction. Every wallet change goes through AdjustWallet and must
// be paired with InsertTransaction in the same LedgerTx.
type LedgerTx interface {
	LockWallet(ctx context.Context, userID int64) (int64, error)
	AdjustWallet(ctx context.Context, userID, deltaCents int64) (int64, error)
	SumDebitsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	HasRefund(ctx context.Context, transactionID int64) (bool, error)
	FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error)
	ArticleStatusForShare(ctx context.Context, articleID int64) (models.ArticleStatus, error)
}

type LedgerRepo struct {
	db *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// WithTx runs fn inside a database transaction. The transaction commits only
// if fn returns nil; any error rolls back every statement fn issued.
func (r *LedgerRepo) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlLedgerTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepo) WalletBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT wallet_cents FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

func (r *LedgerRepo) FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	return findTopupByReference(ctx, r.db, userID, reference)
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(transactionDest(&t)...); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

type sqlLedgerTx struct {
	q queryer
}

func (t *sqlLedgerTx) LockWallet(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := t.q.QueryRowContext(ctx, `
		SELECT wallet_cents FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

// AdjustWallet applies a signed delta. The conditional update refuses to take
// the balance below zero even if a caller skipped LockWallet.
func (t *sqlLedgerTx) AdjustWallet(ctx context.Context, userID, deltaCents int64) (int64, error) {
	var balance int64
	err := t.q.QueryRowContext(ctx, `
		UPDATE users
		SET wallet_cents = wallet_cents + $1
		WHERE id = $2 AND wallet_cents + $1 >= 0
		RETURNING wallet_cents`, deltaCents, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *sqlLedgerTx) SumDebitsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var total int64
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(price_cents), 0) FROM transactions
		WHERE user_id = $1 AND type = 'debit' AND created_at >= $2`, userID, since).Scan(&total)
	return total, err
}

func (t *sqlLedgerTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO transactions
		(user_id, article_id, publisher_id, price_cents, fee_cents, net_cents, type, split_breakdown, external_reference, note, refund_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		txn.UserID, txn.ArticleID, txn.PublisherID, txn.PriceCents, txn.FeeCents, txn.NetCents,
		txn.Type, txn.SplitBreakdown, txn.ExternalReference, txn.Note, txn.RefundOf,
	).Scan(&txn.ID, &txn.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *sqlLedgerTx) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := t.q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1`, id).Scan(transactionDest(&txn)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}

func (t *sqlLedgerTx) HasRefund(ctx context.Context, transactionID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE refund_of = $1)`, transactionID).Scan(&exists)
	return exists, err
}

func (t *sqlLedgerTx) FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	return findTopupByReference(ctx, t.q, userID, reference)
}

// ArticleStatusForShare reads the status under a shared row lock so it cannot
// change until the surrounding transaction ends.
func (t *sqlLedgerTx) ArticleStatusForShare(ctx context.Context, articleID int64) (models.ArticleStatus, error) {
	var status models.ArticleStatus
	err := t.q.QueryRowContext(ctx, `
		SELECT status FROM articles
		WHERE id = $1
		FOR SHARE`, articleID).Scan(&status)
	if err != nil {
		return "", notFound(err)
	}
	return status, nil
}

const transactionColumns = `id, user_id, article_id, publisher_id, price_cents, fee_cents, net_cents,
		type, split_breakdown, external_reference, note, refund_of, created_at`

func transactionDest(t *models.Transaction) []any {
	return []any{
		&t.ID, &t.UserID, &t.ArticleID, &t.PublisherID, &t.PriceCents, &t.FeeCents, &t.NetCents,
		&t.Type, &t.SplitBreakdown, &t.ExternalReference, &t.Note, &t.RefundOf, &t.CreatedAt,
	}
}

func findTopupByReference(ctx context.Context, q queryer, userID int64, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND type = 'topup' AND external_reference = $2
		LIMIT 1`, userID, reference).Scan(transactionDest(&txn)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}
