package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateIfMissing inserts a wallet unless one exists for the owner.
func (r *WalletRepo) CreateIfMissing(ctx context.Context, tx ports.Tx, w *domain.Wallet) error {
	pt, err := asPgxTx(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO wallets (owner, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner) DO NOTHING`

	_, err = pt.Exec(ctx, query, w.Owner, w.Balance, w.Currency, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByOwner fetches a wallet by owner.
func (r *WalletRepo) GetByOwner(ctx context.Context, owner string) (*domain.Wallet, error) {
	query := `SELECT owner, balance, currency, version, created_at, updated_at
		FROM wallets WHERE owner = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, owner))
}

// GetByOwnerForUpdate fetches a wallet with SELECT ... FOR UPDATE (pessimistic lock).
// This MUST be called within a transaction.
func (r *WalletRepo) GetByOwnerForUpdate(ctx context.Context, tx ports.Tx, owner string) (*domain.Wallet, error) {
	pt, err := asPgxTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT owner, balance, currency, version, created_at, updated_at
		FROM wallets WHERE owner = $1 FOR UPDATE`
	return scanWallet(pt.QueryRow(ctx, query, owner))
}

// UpdateBalance sets the new balance and bumps the version.
// This MUST be called within a transaction after GetByOwnerForUpdate.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx ports.Tx, owner string, balance int64) error {
	pt, err := asPgxTx(tx)
	if err != nil {
		return err
	}
	query := `UPDATE wallets SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE owner = $2`

	tag, err := pt.Exec(ctx, query, balance, owner)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", owner)
	}
	return nil
}

// List returns every wallet ordered by owner.
func (r *WalletRepo) List(ctx context.Context) ([]domain.Wallet, error) {
	query := `SELECT owner, balance, currency, version, created_at, updated_at
		FROM wallets ORDER BY owner`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := []domain.Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.Owner, &w.Balance, &w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}
