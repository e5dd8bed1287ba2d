package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/keylock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultFeeAccount receives transfer and processing fees unless configured otherwise.
const DefaultFeeAccount = "platform:fees"

// LedgerOptions configures NewWalletLedger.
type LedgerOptions struct {
	Currency          string
	FeeRate           decimal.Decimal
	ProcessingFeeRate decimal.Decimal
	FeeAccount        string
}

// WalletLedgerImpl implements ports.WalletLedger. Balance changes and the
// book entries explaining them are written in one store transaction.
type WalletLedgerImpl struct {
	wallets           ports.WalletRepository
	journal           *JournalImpl
	transactor        ports.DBTransactor
	locks             *keylock.KeyedMutex
	currency          string
	feeRate           decimal.Decimal
	processingFeeRate decimal.Decimal
	feeAccount        string
	now               func() time.Time
	log               zerolog.Logger
}

// NewWalletLedger creates a new WalletLedgerImpl.
func NewWalletLedger(
	wallets ports.WalletRepository,
	journal *JournalImpl,
	transactor ports.DBTransactor,
	opts LedgerOptions,
	log zerolog.Logger,
) *WalletLedgerImpl {
	feeAccount := opts.FeeAccount
	if feeAccount == "" {
		feeAccount = DefaultFeeAccount
	}
	currency := opts.Currency
	if currency == "" {
		currency = journal.currency
	}
	return &WalletLedgerImpl{
		wallets:           wallets,
		journal:           journal,
		transactor:        transactor,
		locks:             keylock.New(),
		currency:          currency,
		feeRate:           opts.FeeRate,
		processingFeeRate: opts.ProcessingFeeRate,
		feeAccount:        feeAccount,
		now:               journal.now,
		log:               log,
	}
}

// Deposit credits owner and records a completed deposit entry.
func (l *WalletLedgerImpl) Deposit(ctx context.Context, req ports.LedgerRequest) (*domain.TransactionRecord, error) {
	if err := l.validate(req.Owner, req.Amount); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(req.Owner)
	defer unlock()

	var rec *domain.TransactionRecord
	err := l.inTx(ctx, func(tx ports.Tx) error {
		if err := l.credit(ctx, tx, req.Owner, req.Amount); err != nil {
			return err
		}
		rec = l.bookEntry(domain.WalletTxDeposit, domain.EntryCredit, "", req.Owner, req.Amount, req.Method, req.Description)
		return l.journal.createInTx(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("owner", req.Owner).Int64("amount", req.Amount).Str("tx_id", rec.ID).Msg("deposit recorded")
	return rec, nil
}

// Withdraw debits owner. A missing wallet has nothing to withdraw.
func (l *WalletLedgerImpl) Withdraw(ctx context.Context, req ports.LedgerRequest) (*domain.TransactionRecord, error) {
	if err := l.validate(req.Owner, req.Amount); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(req.Owner)
	defer unlock()

	var rec *domain.TransactionRecord
	err := l.inTx(ctx, func(tx ports.Tx) error {
		w, err := l.wallets.GetByOwnerForUpdate(ctx, tx, req.Owner)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if w == nil || !w.CanDebit(req.Amount) {
			return apperror.ErrInsufficientBalance()
		}
		if err := l.wallets.UpdateBalance(ctx, tx, req.Owner, w.Balance-req.Amount); err != nil {
			return apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
		rec = l.bookEntry(domain.WalletTxWithdrawal, domain.EntryDebit, req.Owner, "", req.Amount, req.Method, req.Description)
		return l.journal.createInTx(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("owner", req.Owner).Int64("amount", req.Amount).Str("tx_id", rec.ID).Msg("withdrawal recorded")
	return rec, nil
}

// Transfer moves amount between two wallets without a fee.
func (l *WalletLedgerImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	return l.transfer(ctx, req, 0)
}

// TransferWithFee moves amount and additionally charges the sender the
// configured fee, which is credited to the fee account.
func (l *WalletLedgerImpl) TransferWithFee(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	return l.transfer(ctx, req, computeFee(req.Amount, l.feeRate))
}

// Balance returns owner's wallet, creating an empty one on first access.
func (l *WalletLedgerImpl) Balance(ctx context.Context, owner string) (*domain.Wallet, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, apperror.ErrUnknownParty(owner)
	}
	w, err := l.wallets.GetByOwner(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w != nil {
		return w, nil
	}

	unlock := l.locks.Lock(owner)
	defer unlock()

	err = l.inTx(ctx, func(tx ports.Tx) error {
		_, err := l.ensureWallet(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	w, err = l.wallets.GetByOwner(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	return w, nil
}

// Wallets lists every wallet.
func (l *WalletLedgerImpl) Wallets(ctx context.Context) ([]domain.Wallet, error) {
	ws, err := l.wallets.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}
	return ws, nil
}

// FeeAccount is the owner that collects fees.
func (l *WalletLedgerImpl) FeeAccount() string { return l.feeAccount }

// LockSettlement acquires the owner locks settleInTx needs for rec.
// The caller must hold them until the resolving transaction has committed.
func (l *WalletLedgerImpl) LockSettlement(rec *domain.TransactionRecord) func() {
	return l.locks.LockAll(rec.PartyTo, l.feeAccount)
}

// settleInTx credits the receiving party of a completed payment with the
// gross amount less the processing fee. Caller holds LockSettlement.
func (l *WalletLedgerImpl) settleInTx(ctx context.Context, tx ports.Tx, payment *domain.TransactionRecord) (int64, error) {
	fee := computeFee(payment.Amount, l.processingFeeRate)
	net := payment.Amount - fee

	if net > 0 {
		if err := l.credit(ctx, tx, payment.PartyTo, net); err != nil {
			return 0, err
		}
		rec := l.bookEntry(domain.WalletTxDeposit, domain.EntryCredit, payment.PartyFrom, payment.PartyTo, net,
			domain.PaymentMethodWebhook, payment.Description)
		rec.CorrelationID = payment.ID
		rec.Currency = payment.Currency
		if err := l.journal.createInTx(ctx, tx, rec); err != nil {
			return 0, err
		}
	}
	if fee > 0 {
		if err := l.credit(ctx, tx, l.feeAccount, fee); err != nil {
			return 0, err
		}
		rec := l.bookEntry(domain.WalletTxDeposit, domain.EntryFee, payment.PartyFrom, l.feeAccount, fee,
			domain.PaymentMethodWebhook, "Processing fee")
		rec.CorrelationID = payment.ID
		rec.Currency = payment.Currency
		if err := l.journal.createInTx(ctx, tx, rec); err != nil {
			return 0, err
		}
	}

	payment.Fee = fee
	l.log.Info().
		Str("tx_id", payment.ID).
		Str("party_to", payment.PartyTo).
		Int64("net", net).
		Int64("fee", fee).
		Msg("payment settled to wallet")
	return net, nil
}

func (l *WalletLedgerImpl) transfer(ctx context.Context, req ports.TransferRequest, fee int64) (*ports.TransferResult, error) {
	if strings.TrimSpace(req.From) == "" {
		return nil, apperror.ErrUnknownParty(req.From)
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, apperror.ErrUnknownParty(req.To)
	}
	if req.From == req.To {
		return nil, apperror.Validation("cannot transfer to the same wallet")
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if fee > 0 && req.From == l.feeAccount {
		fee = 0
	}
	if req.Amount > math.MaxInt64-fee {
		return nil, apperror.ErrInvalidAmount()
	}

	keys := []string{req.From, req.To}
	if fee > 0 {
		keys = append(keys, l.feeAccount)
	}
	unlock := l.locks.LockAll(keys...)
	defer unlock()

	corr := uuid.New().String()
	result := &ports.TransferResult{CorrelationID: corr}

	err := l.inTx(ctx, func(tx ports.Tx) error {
		sender, err := l.wallets.GetByOwnerForUpdate(ctx, tx, req.From)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if sender == nil {
			return apperror.ErrUnknownParty(req.From)
		}
		if !sender.CanDebit(req.Amount + fee) {
			return apperror.ErrInsufficientBalance()
		}
		if err := l.wallets.UpdateBalance(ctx, tx, req.From, sender.Balance-req.Amount-fee); err != nil {
			return apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
		if err := l.credit(ctx, tx, req.To, req.Amount); err != nil {
			return err
		}

		debit := l.bookEntry(domain.WalletTxTransfer, domain.EntryDebit, req.From, req.To, req.Amount, domain.PaymentMethodInternal, req.Description)
		debit.Fee = fee
		credit := l.bookEntry(domain.WalletTxTransfer, domain.EntryCredit, req.From, req.To, req.Amount, domain.PaymentMethodInternal, req.Description)
		legs := []*domain.TransactionRecord{debit, credit}
		result.Debit, result.Credit = debit, credit

		if fee > 0 {
			if err := l.credit(ctx, tx, l.feeAccount, fee); err != nil {
				return err
			}
			feeLeg := l.bookEntry(domain.WalletTxTransfer, domain.EntryFee, req.From, l.feeAccount, fee, domain.PaymentMethodInternal, "Transfer fee")
			legs = append(legs, feeLeg)
			result.Fee = feeLeg
		}

		for _, leg := range legs {
			leg.CorrelationID = corr
			if err := l.journal.createInTx(ctx, tx, leg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("from", req.From).
		Str("to", req.To).
		Int64("amount", req.Amount).
		Int64("fee", fee).
		Str("correlation_id", corr).
		Msg("transfer recorded")

	return result, nil
}

// credit adds amount to owner's wallet, creating it if needed.
func (l *WalletLedgerImpl) credit(ctx context.Context, tx ports.Tx, owner string, amount int64) error {
	w, err := l.ensureWallet(ctx, tx, owner)
	if err != nil {
		return err
	}
	if w.Balance > math.MaxInt64-amount {
		l.log.Warn().Str("owner", owner).Int64("amount", amount).Msg("credit rejected: balance would overflow")
		return apperror.ErrInvalidAmount()
	}
	if err := l.wallets.UpdateBalance(ctx, tx, owner, w.Balance+amount); err != nil {
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	return nil
}

// ensureWallet returns owner's wallet locked for update, creating it if needed.
func (l *WalletLedgerImpl) ensureWallet(ctx context.Context, tx ports.Tx, owner string) (*domain.Wallet, error) {
	if err := l.wallets.CreateIfMissing(ctx, tx, domain.NewWallet(owner, l.currency, l.now())); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	w, err := l.wallets.GetByOwnerForUpdate(ctx, tx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet %s missing after create", owner))
	}
	return w, nil
}

// bookEntry builds a completed ledger record.
func (l *WalletLedgerImpl) bookEntry(
	typ domain.WalletTransactionType,
	dir domain.EntryDirection,
	from, to string,
	amount int64,
	method domain.PaymentMethod,
	description string,
) *domain.TransactionRecord {
	if method == "" {
		method = domain.PaymentMethodInternal
	}
	now := l.now()
	rec := &domain.TransactionRecord{
		ID:                    uuid.New().String(),
		CreatedAt:             now,
		UpdatedAt:             now,
		Amount:                amount,
		Currency:              l.currency,
		PaymentMethod:         method,
		Status:                domain.TransactionStatusPending,
		ProcessingState:       domain.StateInitiated,
		PartyFrom:             from,
		PartyTo:               to,
		WalletTransactionType: typ,
		Direction:             dir,
		Description:           description,
		Timeline: []domain.TimelineEntry{
			{Stage: domain.StateInitiated, Timestamp: now, Message: fmt.Sprintf("%s initiated", typ)},
		},
	}
	// initiated -> completed is always legal for a fresh book entry.
	_ = rec.Transition(domain.StateCompleted, now, fmt.Sprintf("%s completed", typ))
	return rec
}

func (l *WalletLedgerImpl) validate(owner string, amount int64) error {
	if strings.TrimSpace(owner) == "" {
		return apperror.ErrUnknownParty(owner)
	}
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	return nil
}

// inTx runs fn in a store transaction, committing only if fn succeeds.
func (l *WalletLedgerImpl) inTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := l.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// computeFee returns amount × rate rounded half-up to the minor unit.
func computeFee(amount int64, rate decimal.Decimal) int64 {
	if rate.IsZero() || amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
