package domain

import (
	"time"
)

// Wallet holds the balance of one party in minor currency units.
type Wallet struct {
	Owner     string    `json:"owner"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWallet returns an empty wallet for owner.
func NewWallet(owner, currency string, now time.Time) *Wallet {
	return &Wallet{
		Owner:     owner,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanDebit reports whether amount can leave the wallet without going negative.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount >= 0 && w.Balance >= amount
}
