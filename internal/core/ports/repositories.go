package ports

import (
	"context"
	"time"

	"merchant-ledger/internal/core/domain"
)

// Tx is one atomic unit of work against the record store. Everything written
// through a Tx becomes visible together on Commit or not at all.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting a Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// CreateIfMissing inserts w unless a wallet for w.Owner already exists.
	CreateIfMissing(ctx context.Context, tx Tx, w *domain.Wallet) error
	GetByOwner(ctx context.Context, owner string) (*domain.Wallet, error)
	GetByOwnerForUpdate(ctx context.Context, tx Tx, owner string) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx Tx, owner string, balance int64) error
	List(ctx context.Context) ([]domain.Wallet, error)
}

// TransactionRepository defines persistence operations for journal records.
type TransactionRepository interface {
	Create(ctx context.Context, tx Tx, rec *domain.TransactionRecord) error
	// Update persists status, processing state, timeline and updated_at.
	Update(ctx context.Context, tx Tx, rec *domain.TransactionRecord) error
	GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error)
	GetByIDForUpdate(ctx context.Context, tx Tx, id string) (*domain.TransactionRecord, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.TransactionRecord, int64, error)
	GetTotals(ctx context.Context) (*LedgerTotals, error)
}

// TransactionListParams holds filter + pagination for listing records of a party.
// A record matches the party when it is either PartyFrom or PartyTo.
type TransactionListParams struct {
	Party    string
	Status   *domain.TransactionStatus
	Method   *domain.PaymentMethod
	Page     int
	PageSize int
}

// LedgerTotals aggregates completed book entries for reconciliation.
type LedgerTotals struct {
	Deposits    int64
	Withdrawals int64
	Transfers   int64
	Payments    int64
	Pending     int64
	Failed      int64
}

// IdentifierUsageStore mirrors rotation pool counters so a restarted process
// can pick up today's usage.
type IdentifierUsageStore interface {
	IncrUsage(ctx context.Context, day string, handle string) (int64, error)
	GetUsage(ctx context.Context, day string) (map[string]int64, error)
	ClearUsage(ctx context.Context, day string) error
}

// WebhookResultCache is the Redis-layer cache of resolved callbacks (fast path).
type WebhookResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
