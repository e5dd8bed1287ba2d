package service

import (
	"context"
	"testing"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/internal/core/ports/mocks"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentTestDeps struct {
	svc     *PaymentServiceImpl
	journal *mocks.MockJournalService
	pool    *mocks.MockRotationPool
}

func setupPaymentService(t *testing.T) *paymentTestDeps {
	ctrl := gomock.NewController(t)
	d := &paymentTestDeps{
		journal: mocks.NewMockJournalService(ctrl),
		pool:    mocks.NewMockRotationPool(ctrl),
	}
	d.svc = NewPaymentService(d.journal, d.pool, zerolog.Nop())
	return d
}

func paymentRequest(assign bool) ports.PaymentRequest {
	return ports.PaymentRequest{
		CreateRecordRequest: ports.CreateRecordRequest{
			Amount:        50000,
			PaymentMethod: domain.PaymentMethodUPI,
			PartyFrom:     "customer-1",
			PartyTo:       "merchant-1",
			ExternalRef:   "ORDER-001",
		},
		AssignIdentifier: assign,
	}
}

// ==================== Initiate Tests ====================

func TestPaymentService_Initiate_WithoutIdentifier(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()
	req := paymentRequest(false)

	d.journal.EXPECT().Create(ctx, req.CreateRecordRequest).Return(&domain.TransactionRecord{ID: "tx-1"}, nil)

	res, err := d.svc.Initiate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", res.Record.ID)
	assert.Nil(t, res.Selection)
}

func TestPaymentService_Initiate_AssignsIdentifier(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()

	d.pool.EXPECT().SelectWithFallback(ctx, "merchant-1").Return(&domain.Selection{Handle: "m1@okbank", UsedToday: 1, DailyLimit: 10}, nil)
	d.journal.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.CreateRecordRequest) (*domain.TransactionRecord, error) {
			assert.Equal(t, "m1@okbank", req.SettlementHandle)
			return &domain.TransactionRecord{ID: "tx-1", SettlementHandle: req.SettlementHandle}, nil
		})

	res, err := d.svc.Initiate(ctx, paymentRequest(true))
	require.NoError(t, err)
	require.NotNil(t, res.Selection)
	assert.False(t, res.Selection.Degraded)
	assert.Equal(t, "m1@okbank", res.Record.SettlementHandle)
}

func TestPaymentService_Initiate_DegradedSelectionSurfaced(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()

	d.pool.EXPECT().SelectWithFallback(ctx, "merchant-1").Return(&domain.Selection{Handle: "default@okbank", Degraded: true}, nil)
	d.journal.EXPECT().Create(ctx, gomock.Any()).Return(&domain.TransactionRecord{ID: "tx-1"}, nil)

	res, err := d.svc.Initiate(ctx, paymentRequest(true))
	require.NoError(t, err)
	assert.True(t, res.Selection.Degraded)
}

func TestPaymentService_Initiate_PoolExhausted(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()

	d.pool.EXPECT().SelectWithFallback(ctx, "merchant-1").Return(nil, apperror.ErrPoolExhausted())

	res, err := d.svc.Initiate(ctx, paymentRequest(true))
	assert.Nil(t, res)
	assertAppError(t, err, apperror.CodePoolExhausted)
}

func TestPaymentService_Initiate_InvalidInputSkipsPool(t *testing.T) {
	d := setupPaymentService(t)

	req := paymentRequest(true)
	req.Amount = 0
	_, err := d.svc.Initiate(context.Background(), req)
	assertAppError(t, err, apperror.CodeInvalidAmount)

	req = paymentRequest(true)
	req.PartyTo = ""
	_, err = d.svc.Initiate(context.Background(), req)
	assertAppError(t, err, apperror.CodeUnknownParty)
}

func TestPaymentService_Initiate_JournalError(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()

	d.journal.EXPECT().Create(ctx, gomock.Any()).Return(nil, apperror.ErrDuplicateRecord("ORDER-001"))

	_, err := d.svc.Initiate(ctx, paymentRequest(false))
	assertAppError(t, err, apperror.CodeDuplicateRecord)
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
