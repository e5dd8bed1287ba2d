package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord() *domain.TransactionRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.TransactionRecord{
		ID:                    "pay-1",
		CreatedAt:             now,
		UpdatedAt:             now,
		Amount:                50000,
		Currency:              "INR",
		PaymentMethod:         domain.PaymentMethodUPI,
		Status:                domain.TransactionStatusPending,
		ProcessingState:       domain.StateInitiated,
		PartyFrom:             "customer-1",
		PartyTo:               "merchant-1",
		WalletTransactionType: domain.WalletTxPayment,
		ExternalRef:           "UTR-1",
		SettlementHandle:      "shop@okbank",
		CallbackURL:           "https://merchant.example/hook",
		Description:           "Order 42",
		DisplayDescription:    "Order 42",
		Timeline: []domain.TimelineEntry{
			{Stage: domain.StateInitiated, Timestamp: now, Message: "Payment initiated"},
		},
	}
}

func txColumns() []string {
	return []string{"id", "created_at", "updated_at", "amount", "fee", "currency", "payment_method", "status",
		"processing_state", "party_from", "party_to", "wallet_transaction_type", "direction", "correlation_id",
		"external_ref", "settlement_handle", "callback_url", "description", "display_description", "timeline"}
}

func txRow(t *testing.T, rows *pgxmock.Rows, rec *domain.TransactionRecord) *pgxmock.Rows {
	t.Helper()
	timeline, err := json.Marshal(rec.Timeline)
	require.NoError(t, err)
	return rows.AddRow(
		rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.Amount, rec.Fee, rec.Currency,
		string(rec.PaymentMethod), string(rec.Status), string(rec.ProcessingState),
		rec.PartyFrom, rec.PartyTo, string(rec.WalletTransactionType), string(rec.Direction),
		rec.CorrelationID, rec.ExternalRef, rec.SettlementHandle, rec.CallbackURL,
		rec.Description, rec.DisplayDescription, timeline,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	rec := newTestRecord()
	timeline, _ := json.Marshal(rec.Timeline)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.Amount, rec.Fee, rec.Currency, "upi",
			"pending", "initiated", rec.PartyFrom, rec.PartyTo, "payment", "", "",
			rec.ExternalRef, rec.SettlementHandle, rec.CallbackURL, rec.Description,
			rec.DisplayDescription, string(timeline),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_RejectsForeignTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = NewTransactionRepo(mock).Create(context.Background(), nil, newTestRecord())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected transaction type")
}

func TestTransactionRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	rec := newTestRecord()
	require.NoError(t, rec.Transition(domain.StateGatewayProcessing, rec.CreatedAt.Add(time.Second), "accepted"))
	timeline, _ := json.Marshal(rec.Timeline)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs("pending", "gateway_processing", int64(0), string(timeline), rec.UpdatedAt, rec.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), dbTx, rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "pay-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), dbTx, newTestRecord())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "transaction not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	rec := newTestRecord()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(rec.ID).
		WillReturnRows(txRow(t, pgxmock.NewRows(txColumns()), rec))

	result, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, rec.ID, result.ID)
	assert.Equal(t, rec.Amount, result.Amount)
	assert.Equal(t, domain.PaymentMethodUPI, result.PaymentMethod)
	assert.Equal(t, domain.StateInitiated, result.ProcessingState)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, "Payment initiated", result.Timeline[0].Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	rec := newTestRecord()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id .+ FOR UPDATE").
		WithArgs(rec.ID).
		WillReturnRows(txRow(t, pgxmock.NewRows(txColumns()), rec))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIDForUpdate(context.Background(), dbTx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, rec.ExternalRef, result.ExternalRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByExternalRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	rec := newTestRecord()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE external_ref").
		WithArgs("UTR-1").
		WillReturnRows(txRow(t, pgxmock.NewRows(txColumns()), rec))

	result, err := repo.GetByExternalRef(context.Background(), "UTR-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, rec.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	first := newTestRecord()
	second := newTestRecord()
	second.ID = "pay-2"
	second.ExternalRef = "UTR-2"
	status := domain.TransactionStatusPending

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE \\(party_from = \\$1 OR party_to = \\$1\\) AND status = \\$2").
		WithArgs("merchant-1", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	rows := txRow(t, pgxmock.NewRows(txColumns()), second)
	rows = txRow(t, rows, first)
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE .+ ORDER BY created_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("merchant-1", "pending", 10, 10).
		WillReturnRows(rows)

	recs, total, err := repo.List(context.Background(), ports.TransactionListParams{
		Party:    "merchant-1",
		Status:   &status,
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, recs, 2)
	assert.Equal(t, "pay-2", recs[0].ID)
	assert.Equal(t, "pay-1", recs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_CountError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("merchant-1").
		WillReturnError(errors.New("connection reset"))

	_, _, err = repo.List(context.Background(), ports.TransactionListParams{Party: "merchant-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "count transactions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetTotals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FILTER .+ FROM transactions").
		WillReturnRows(pgxmock.NewRows(
			[]string{"deposits", "withdrawals", "transfers", "payments", "pending", "failed"},
		).AddRow(int64(150000), int64(20000), int64(3000), int64(50000), int64(4), int64(2)))

	totals, err := repo.GetTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(150000), totals.Deposits)
	assert.Equal(t, int64(20000), totals.Withdrawals)
	assert.Equal(t, int64(3000), totals.Transfers)
	assert.Equal(t, int64(50000), totals.Payments)
	assert.Equal(t, int64(4), totals.Pending)
	assert.Equal(t, int64(2), totals.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
