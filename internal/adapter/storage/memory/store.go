// Package memory is the default record store: process-local maps with
// staged, all-or-nothing transactions.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

// Store holds journal records and wallets. Row-level exclusion is the
// caller's job (the services hold keyed locks); the store only guarantees
// that a transaction's writes land together.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.TransactionRecord
	byRef   map[string]string
	wallets map[string]*domain.Wallet
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.TransactionRecord),
		byRef:   make(map[string]string),
		wallets: make(map[string]*domain.Wallet),
	}
}

// Begin starts a transaction. Implements ports.DBTransactor.
func (s *Store) Begin(_ context.Context) (ports.Tx, error) {
	return &Tx{
		store:   s,
		records: make(map[string]*domain.TransactionRecord),
		wallets: make(map[string]*domain.Wallet),
	}, nil
}

// Tx buffers writes until Commit.
type Tx struct {
	store   *Store
	mu      sync.Mutex
	records map[string]*domain.TransactionRecord
	created []string
	wallets map[string]*domain.Wallet
	done    bool
}

// Commit applies every staged write under the store lock.
func (t *Tx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Uniqueness is re-checked here; another transaction may have committed
	// the same id or reference since this one staged it.
	for _, id := range t.created {
		if _, exists := s.records[id]; exists {
			return fmt.Errorf("commit: duplicate transaction id %q", id)
		}
		rec := t.records[id]
		if rec.ExternalRef != "" {
			if _, exists := s.byRef[rec.ExternalRef]; exists {
				return fmt.Errorf("commit: duplicate external reference %q", rec.ExternalRef)
			}
		}
	}
	for id, rec := range t.records {
		s.records[id] = rec
		if rec.ExternalRef != "" {
			s.byRef[rec.ExternalRef] = id
		}
	}
	for owner, w := range t.wallets {
		s.wallets[owner] = w
	}
	return nil
}

// Rollback discards staged writes. Rolling back a committed transaction is a no-op.
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.records = nil
	t.wallets = nil
	return nil
}

func asTx(tx ports.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, fmt.Errorf("memory: unexpected transaction type %T", tx)
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.done {
		return nil, ErrTxDone
	}
	return mt, nil
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}
