package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

// CreateIfMissing stages w unless the owner already has a wallet.
func (r *WalletRepo) CreateIfMissing(_ context.Context, tx ports.Tx, w *domain.Wallet) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	_, exists := r.store.wallets[w.Owner]
	r.store.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, staged := t.wallets[w.Owner]; exists || staged {
		return nil
	}
	t.wallets[w.Owner] = cloneWallet(w)
	return nil
}

// GetByOwner returns the committed wallet, or nil.
func (r *WalletRepo) GetByOwner(_ context.Context, owner string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[owner]
	if !ok {
		return nil, nil
	}
	return cloneWallet(w), nil
}

// GetByOwnerForUpdate returns the wallet as seen by tx, including staged writes.
func (r *WalletRepo) GetByOwnerForUpdate(ctx context.Context, tx ports.Tx, owner string) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	staged, ok := t.wallets[owner]
	t.mu.Unlock()
	if ok {
		return cloneWallet(staged), nil
	}
	return r.GetByOwner(ctx, owner)
}

// UpdateBalance stages a new balance and bumps the version.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx ports.Tx, owner string, balance int64) error {
	w, err := r.GetByOwnerForUpdate(ctx, tx, owner)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("wallet not found: %s", owner)
	}
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	t.mu.Lock()
	t.wallets[owner] = w
	t.mu.Unlock()
	return nil
}

// List returns every committed wallet ordered by owner.
func (r *WalletRepo) List(_ context.Context) ([]domain.Wallet, error) {
	r.store.mu.RLock()
	out := make([]domain.Wallet, 0, len(r.store.wallets))
	for _, w := range r.store.wallets {
		out = append(out, *w)
	}
	r.store.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}
