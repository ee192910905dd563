package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paypr/backend/internal/models"
)

type SplitRuleRepo struct {
	db *sql.DB
}

func NewSplitRuleRepo(db *sql.DB) *SplitRuleRepo {
	return &SplitRuleRepo{db: db}
}

func (r *SplitRuleRepo) ListRules(ctx context.Context, publisherID int64) ([]models.SplitRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, publisher_id, role, percent_bps, recipient_label, created_at
		FROM split_rules
		WHERE publisher_id = $1
		ORDER BY id`, publisherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.SplitRule
	for rows.Next() {
		var rule models.SplitRule
		if err := rows.Scan(&rule.ID, &rule.PublisherID, &rule.Role, &rule.PercentBps, &rule.RecipientLabel, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ReplaceRules swaps the publisher's whole rule set in one transaction.
func (r *SplitRuleRepo) ReplaceRules(ctx context.Context, publisherID int64, rules []models.SplitRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin split rule transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM split_rules WHERE publisher_id = $1`, publisherID); err != nil {
		return err
	}

	for _, rule := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO split_rules (publisher_id, role, percent_bps, recipient_label)
			VALUES ($1, $2, $3, $4)`,
			publisherID, rule.Role, rule.PercentBps, rule.RecipientLabel); err != nil {
			return err
		}
	}

	return tx.Commit()
}
