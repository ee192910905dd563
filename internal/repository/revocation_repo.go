package repository

import (
	"context"
	"database/sql"
	"time"
)

type RevocationRepo struct {
	db *sql.DB
}

func NewRevocationRepo(db *sql.DB) *RevocationRepo {
	return &RevocationRepo{db: db}
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = $1)`, tokenHash).Scan(&exists)
	return exists, err
}

// Revoke records the hash. Revoking an already revoked token is a no-op.
func (r *RevocationRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_hash) VALUES ($1)
		ON CONFLICT (token_hash) DO NOTHING`, tokenHash)
	return err
}

// Prune drops revocations recorded before cutoff. Callers pass a cutoff at
// least one token lifetime in the past so only expired tokens are affected.
func (r *RevocationRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
