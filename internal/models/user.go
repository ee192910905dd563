package models

import "time"

// User owns exactly one wallet. WalletCents is only changed by ledger
// operations.
type User struct {
	ID          int64     `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	WalletCents int64     `json:"wallet_cents" db:"wallet_cents"`
	IsAdmin     bool      `json:"is_admin" db:"is_admin"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
