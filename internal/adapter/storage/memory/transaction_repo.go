package memory

import (
	"context"
	"fmt"
	"sort"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
)

const defaultPageSize = 20

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(store *Store) *TransactionRepo {
	return &TransactionRepo{store: store}
}

// Create stages a new record.
func (r *TransactionRepo) Create(_ context.Context, tx ports.Tx, rec *domain.TransactionRecord) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	_, exists := r.store.records[rec.ID]
	_, refTaken := r.store.byRef[rec.ExternalRef]
	r.store.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, staged := t.records[rec.ID]; exists || staged {
		return fmt.Errorf("insert transaction: duplicate id %q", rec.ID)
	}
	if rec.ExternalRef != "" && refTaken {
		return fmt.Errorf("insert transaction: duplicate external reference %q", rec.ExternalRef)
	}
	t.records[rec.ID] = rec.Clone()
	t.created = append(t.created, rec.ID)
	return nil
}

// Update stages the new state of an existing record.
func (r *TransactionRepo) Update(_ context.Context, tx ports.Tx, rec *domain.TransactionRecord) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	_, exists := r.store.records[rec.ID]
	r.store.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, staged := t.records[rec.ID]; !exists && !staged {
		return fmt.Errorf("transaction not found: %s", rec.ID)
	}
	t.records[rec.ID] = rec.Clone()
	return nil
}

// GetByID returns a committed record, or nil if absent.
func (r *TransactionRepo) GetByID(_ context.Context, id string) (*domain.TransactionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// GetByIDForUpdate returns the record as seen by tx, including staged writes.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx ports.Tx, id string) (*domain.TransactionRecord, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	staged, ok := t.records[id]
	t.mu.Unlock()
	if ok {
		return staged.Clone(), nil
	}
	return r.GetByID(ctx, id)
}

// GetByExternalRef returns the committed record carrying ref, or nil.
func (r *TransactionRepo) GetByExternalRef(_ context.Context, ref string) (*domain.TransactionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.byRef[ref]
	if !ok {
		return nil, nil
	}
	return r.store.records[id].Clone(), nil
}

// List returns the party's records newest first, plus the unpaged total.
func (r *TransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	r.store.mu.RLock()
	var result []domain.TransactionRecord
	for _, rec := range r.store.records {
		if rec.PartyFrom != params.Party && rec.PartyTo != params.Party {
			continue
		}
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		if params.Method != nil && rec.PaymentMethod != *params.Method {
			continue
		}
		result = append(result, *rec.Clone())
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	page, size := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	start := (page - 1) * size
	if start >= len(result) {
		return []domain.TransactionRecord{}, total, nil
	}
	end := start + size
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// GetTotals aggregates committed records.
func (r *TransactionRepo) GetTotals(_ context.Context) (*ports.LedgerTotals, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	totals := &ports.LedgerTotals{}
	for _, rec := range r.store.records {
		switch rec.Status {
		case domain.TransactionStatusFailed, domain.TransactionStatusDeclined:
			totals.Failed++
			continue
		case domain.TransactionStatusPending, domain.TransactionStatusProcessing:
			totals.Pending++
			continue
		}
		switch rec.WalletTransactionType {
		case domain.WalletTxDeposit:
			totals.Deposits += rec.Amount
		case domain.WalletTxWithdrawal:
			totals.Withdrawals += rec.Amount
		case domain.WalletTxTransfer:
			if rec.Direction == domain.EntryDebit {
				totals.Transfers += rec.Amount
			}
		default:
			totals.Payments += rec.Amount
		}
	}
	return totals, nil
}
