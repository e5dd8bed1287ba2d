package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/internal/core/ports/mocks"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type resolverTestDeps struct {
	*ledgerTestDeps
	resolver *WebhookResolverImpl
	tokens   *mocks.MockTokenService
	cache    *mocks.MockWebhookResultCache
	notifier *mocks.MockStatusNotifier
}

func setupResolver(t *testing.T, withCache bool) *resolverTestDeps {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := &resolverTestDeps{
		ledgerTestDeps: setupLedger(t, "0"),
		tokens:         mocks.NewMockTokenService(ctrl),
		notifier:       mocks.NewMockStatusNotifier(ctrl),
	}
	var cache ports.WebhookResultCache
	if withCache {
		d.cache = mocks.NewMockWebhookResultCache(ctrl)
		cache = d.cache
	}
	d.resolver = NewWebhookResolver(d.tokens, d.journal, d.ledger, cache, d.notifier, time.Hour, zerolog.Nop())
	return d
}

func (d *resolverTestDeps) acceptToken(slug string) {
	d.tokens.EXPECT().Validate("tok").Return(&ports.TokenClaims{BankSlug: slug}, nil).AnyTimes()
}

func callback(ref, status string) domain.WebhookCallback {
	return domain.WebhookCallback{BankSlug: "okbank", Token: "tok", ExternalRef: ref, Status: status}
}

func TestWebhookResolver_SuccessCreditsOnce(t *testing.T) {
	d := setupResolver(t, false)
	ctx := context.Background()
	d.acceptToken("okbank")
	createTestPayment(t, d.journal, "pay-1", "BANKREF-1")

	d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *domain.TransactionRecord) error {
			assert.Equal(t, domain.TransactionStatusSuccessful, rec.Status)
			return nil
		}).Times(1)

	first, err := d.resolver.Resolve(ctx, callback("BANKREF-1", "completed"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(50000), first.Credited)
	assert.Equal(t, domain.StateCompleted, first.Record.ProcessingState)

	second, err := d.resolver.Resolve(ctx, callback("BANKREF-1", "completed"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Zero(t, second.Credited)
	assert.Equal(t, first.Record.Status, second.Record.Status)
	assert.Equal(t, len(first.Record.Timeline), len(second.Record.Timeline))

	assert.Equal(t, int64(50000), d.balance(t, "merchant-1"))
	d.assertConserved(t)
}

func TestWebhookResolver_ExampleScenario(t *testing.T) {
	d := setupResolver(t, false)
	ctx := context.Background()
	d.acceptToken("okbank")
	d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := d.ledger.Deposit(ctx, ports.LedgerRequest{Owner: "A", Amount: 1000})
	require.NoError(t, err)
	_, err = d.ledger.TransferWithFee(ctx, ports.TransferRequest{From: "A", To: "B", Amount: 300})
	require.NoError(t, err)

	_, err = d.journal.Create(ctx, ports.CreateRecordRequest{
		ID: "pay-500", Amount: 500, PaymentMethod: domain.PaymentMethodUPI,
		PartyFrom: "customer", PartyTo: "B", ExternalRef: "UTR-500",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = d.resolver.Resolve(ctx, callback("UTR-500", "success"))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(697), d.balance(t, "A"))
	assert.Equal(t, int64(800), d.balance(t, "B"))
	d.assertConserved(t)
}

func TestWebhookResolver_FailureAndDecline(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   domain.TransactionStatus
	}{
		{"declined", "declined", domain.TransactionStatusDeclined},
		{"rejected", "REJECTED", domain.TransactionStatusDeclined},
		{"unknown status fails", "timeout", domain.TransactionStatusFailed},
		{"explicit failure", "failed", domain.TransactionStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupResolver(t, false)
			d.acceptToken("okbank")
			d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
			createTestPayment(t, d.journal, "pay-1", "BANKREF-1")

			res, err := d.resolver.Resolve(context.Background(), callback("BANKREF-1", tt.status))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Record.Status)
			assert.Zero(t, res.Credited)
			assert.Zero(t, d.balance(t, "merchant-1"))
		})
	}
}

func TestWebhookResolver_ReportedAmount(t *testing.T) {
	amount := func(v int64) *int64 { return &v }
	tests := []struct {
		name     string
		reported *int64
		want     domain.TransactionStatus
		credited int64
	}{
		{"omitted", nil, domain.TransactionStatusSuccessful, 50000},
		{"matches", amount(50000), domain.TransactionStatusSuccessful, 50000},
		{"short paid", amount(100), domain.TransactionStatusFailed, 0},
		{"over reported", amount(90000), domain.TransactionStatusFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupResolver(t, false)
			d.acceptToken("okbank")
			d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
			createTestPayment(t, d.journal, "pay-1", "BANKREF-1")

			cb := callback("BANKREF-1", "success")
			cb.Amount = tt.reported
			res, err := d.resolver.Resolve(context.Background(), cb)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Record.Status)
			assert.Equal(t, tt.credited, res.Credited)
			assert.Equal(t, tt.credited, d.balance(t, "merchant-1"))

			if tt.want == domain.TransactionStatusFailed {
				last, _ := res.Record.LastEntry()
				assert.Contains(t, last.Message, "Amount mismatch")
			}
			d.assertConserved(t)
		})
	}
}

func TestWebhookResolver_TokenErrorsDoNotMutate(t *testing.T) {
	d := setupResolver(t, false)
	ctx := context.Background()
	createTestPayment(t, d.journal, "pay-1", "BANKREF-1")

	d.tokens.EXPECT().Validate("expired").Return(nil, apperror.ErrTokenExpired())
	d.tokens.EXPECT().Validate("other-bank").Return(&ports.TokenClaims{BankSlug: "otherbank"}, nil)

	cb := callback("BANKREF-1", "completed")
	cb.Token = "expired"
	_, err := d.resolver.Resolve(ctx, cb)
	assertAppError(t, err, apperror.CodeTokenExpired)

	cb.Token = "other-bank"
	_, err = d.resolver.Resolve(ctx, cb)
	assertAppError(t, err, apperror.CodeInvalidToken)

	rec, err := d.journal.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitiated, rec.ProcessingState)
	assert.Zero(t, d.balance(t, "merchant-1"))
}

func TestWebhookResolver_MissingReference(t *testing.T) {
	d := setupResolver(t, false)
	d.acceptToken("okbank")

	_, err := d.resolver.Resolve(context.Background(), callback("  ", "completed"))
	assertAppError(t, err, apperror.CodeMissingReference)
}

func TestWebhookResolver_UnknownReference(t *testing.T) {
	d := setupResolver(t, false)
	d.acceptToken("okbank")

	_, err := d.resolver.Resolve(context.Background(), callback("NOPE", "completed"))
	assertAppError(t, err, apperror.CodeRecordNotFound)
}

func TestWebhookResolver_CacheFastPath(t *testing.T) {
	d := setupResolver(t, true)
	ctx := context.Background()
	d.acceptToken("okbank")
	createTestPayment(t, d.journal, "pay-1", "BANKREF-1")
	d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	var stored []byte
	gomock.InOrder(
		d.cache.EXPECT().Get(ctx, "okbank:BANKREF-1").Return(nil, nil),
		d.cache.EXPECT().Set(ctx, "okbank:BANKREF-1", gomock.Any(), time.Hour).DoAndReturn(
			func(_ context.Context, _ string, value []byte, _ time.Duration) error {
				stored = value
				return nil
			}),
		d.cache.EXPECT().Get(ctx, "okbank:BANKREF-1").DoAndReturn(
			func(context.Context, string) ([]byte, error) { return stored, nil }),
	)

	first, err := d.resolver.Resolve(ctx, callback("BANKREF-1", "completed"))
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	var cached domain.WebhookResult
	require.NoError(t, json.Unmarshal(stored, &cached))
	assert.Equal(t, "pay-1", cached.Record.ID)

	second, err := d.resolver.Resolve(ctx, callback("BANKREF-1", "completed"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Zero(t, second.Credited)
	assert.Equal(t, int64(50000), d.balance(t, "merchant-1"))
}

func TestWebhookResolver_CacheFailureFallsBackToJournal(t *testing.T) {
	d := setupResolver(t, true)
	ctx := context.Background()
	d.acceptToken("okbank")
	createTestPayment(t, d.journal, "pay-1", "BANKREF-1")
	d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	d.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down")).Times(2)
	d.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down")).Times(2)

	for i := 0; i < 2; i++ {
		_, err := d.resolver.Resolve(ctx, callback("BANKREF-1", "completed"))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(50000), d.balance(t, "merchant-1"))
}

func TestWebhookResolver_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	d := setupResolver(t, false)
	d.acceptToken("okbank")
	createTestPayment(t, d.journal, "pay-1", "BANKREF-1")
	d.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.resolver.Resolve(context.Background(), callback("BANKREF-1", "paid"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50000), d.balance(t, "merchant-1"))
	d.assertConserved(t)
}
