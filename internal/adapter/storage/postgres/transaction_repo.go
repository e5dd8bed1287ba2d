package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const txSelectColumns = `id, created_at, updated_at, amount, fee, currency, payment_method, status,
		processing_state, party_from, party_to, wallet_transaction_type, direction, correlation_id,
		COALESCE(external_ref, ''), settlement_handle, callback_url, description, display_description, timeline`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new record within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx ports.Tx, rec *domain.TransactionRecord) error {
	pt, err := asPgxTx(tx)
	if err != nil {
		return err
	}
	timeline, err := json.Marshal(rec.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}

	query := `INSERT INTO transactions (id, created_at, updated_at, amount, fee, currency, payment_method,
		status, processing_state, party_from, party_to, wallet_transaction_type, direction, correlation_id,
		external_ref, settlement_handle, callback_url, description, display_description, timeline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = pt.Exec(ctx, query,
		rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.Amount, rec.Fee, rec.Currency, string(rec.PaymentMethod),
		string(rec.Status), string(rec.ProcessingState), rec.PartyFrom, rec.PartyTo,
		string(rec.WalletTransactionType), string(rec.Direction), rec.CorrelationID,
		nullIfEmpty(rec.ExternalRef), rec.SettlementHandle, rec.CallbackURL, rec.Description,
		rec.DisplayDescription, string(timeline),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Update persists status, processing state, fee, timeline and updated_at.
func (r *TransactionRepo) Update(ctx context.Context, tx ports.Tx, rec *domain.TransactionRecord) error {
	pt, err := asPgxTx(tx)
	if err != nil {
		return err
	}
	timeline, err := json.Marshal(rec.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}

	query := `UPDATE transactions SET status = $1, processing_state = $2, fee = $3, timeline = $4, updated_at = $5
		WHERE id = $6`

	tag, err := pt.Exec(ctx, query,
		string(rec.Status), string(rec.ProcessingState), rec.Fee, string(timeline), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", rec.ID)
	}
	return nil
}

// GetByID fetches a record by id.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	query := `SELECT ` + txSelectColumns + ` FROM transactions WHERE id = $1`
	return scanRecord(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a record by id with pessimistic locking.
// This MUST be called within a transaction.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx ports.Tx, id string) (*domain.TransactionRecord, error) {
	pt, err := asPgxTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + txSelectColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanRecord(pt.QueryRow(ctx, query, id))
}

// GetByExternalRef fetches a record by the bank's reference.
func (r *TransactionRepo) GetByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error) {
	query := `SELECT ` + txSelectColumns + ` FROM transactions WHERE external_ref = $1`
	return scanRecord(r.pool.QueryRow(ctx, query, ref))
}

// List fetches a party's records with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	conditions := []string{"(party_from = $1 OR party_to = $1)"}
	args := []any{params.Party}
	argIdx := 2

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.Method != nil {
		conditions = append(conditions, fmt.Sprintf("payment_method = $%d", argIdx))
		args = append(args, string(*params.Method))
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	page, size := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		txSelectColumns, where, argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	recs := []domain.TransactionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return recs, total, nil
}

// GetTotals aggregates committed records for reconciliation.
func (r *TransactionRepo) GetTotals(ctx context.Context) (*ports.LedgerTotals, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE status IN ('successful', 'settled') AND wallet_transaction_type = 'deposit'), 0) AS deposits,
		COALESCE(SUM(amount) FILTER (WHERE status IN ('successful', 'settled') AND wallet_transaction_type = 'withdrawal'), 0) AS withdrawals,
		COALESCE(SUM(amount) FILTER (WHERE status IN ('successful', 'settled') AND wallet_transaction_type = 'transfer' AND direction = 'debit'), 0) AS transfers,
		COALESCE(SUM(amount) FILTER (WHERE status IN ('successful', 'settled') AND wallet_transaction_type NOT IN ('deposit', 'withdrawal', 'transfer')), 0) AS payments,
		COUNT(*) FILTER (WHERE status IN ('pending', 'processing')) AS pending,
		COUNT(*) FILTER (WHERE status IN ('failed', 'declined')) AS failed
		FROM transactions`

	t := &ports.LedgerTotals{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.Deposits, &t.Withdrawals, &t.Transfers, &t.Payments, &t.Pending, &t.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get ledger totals: %w", err)
	}
	return t, nil
}

// scanRecord scans a single row into a TransactionRecord. A missing row is (nil, nil).
func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	rec := &domain.TransactionRecord{}
	var (
		method, status, state, walletType, direction string
		timeline                                     []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Amount, &rec.Fee, &rec.Currency, &method, &status,
		&state, &rec.PartyFrom, &rec.PartyTo, &walletType, &direction, &rec.CorrelationID,
		&rec.ExternalRef, &rec.SettlementHandle, &rec.CallbackURL, &rec.Description, &rec.DisplayDescription,
		&timeline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	rec.PaymentMethod = domain.PaymentMethod(method)
	rec.Status = domain.TransactionStatus(status)
	rec.ProcessingState = domain.ProcessingState(state)
	rec.WalletTransactionType = domain.WalletTransactionType(walletType)
	rec.Direction = domain.EntryDirection(direction)
	if err := json.Unmarshal(timeline, &rec.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
