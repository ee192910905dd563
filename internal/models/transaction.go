package models

import (
	"time"

	"github.com/paypr/backend/internal/money"
)

// TransactionType classifies one monetary event.
type TransactionType string

const (
	TransactionDebit       TransactionType = "debit"
	TransactionRefund      TransactionType = "refund"
	TransactionTopup       TransactionType = "topup"
	TransactionAdminCredit TransactionType = "admin_credit"
	TransactionAdminDebit  TransactionType = "admin_debit"
)

// Transaction is an immutable audit record of a wallet movement. Rows are only
// ever inserted.
type Transaction struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	ArticleID         *int64          `json:"article_id,omitempty" db:"article_id"`
	PublisherID       *int64          `json:"publisher_id,omitempty" db:"publisher_id"`
	PriceCents        int64           `json:"price_cents" db:"price_cents"` // magnitude
	FeeCents          int64           `json:"fee_cents" db:"fee_cents"`
	NetCents          int64           `json:"net_cents" db:"net_cents"`
	Type              TransactionType `json:"type" db:"type"`
	SplitBreakdown    money.Breakdown `json:"split_breakdown,omitempty" db:"split_breakdown"`
	ExternalReference *string         `json:"external_reference,omitempty" db:"external_reference"`
	Note              *string         `json:"note,omitempty" db:"note"`
	RefundOf          *int64          `json:"refund_of,omitempty" db:"refund_of"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
