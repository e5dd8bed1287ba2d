package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/keylock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SettleFunc runs inside the resolving transaction, under the record lock,
// exactly once per record: on its first transition into completed. It
// returns the amount credited.
type SettleFunc func(ctx context.Context, tx ports.Tx, rec *domain.TransactionRecord) (int64, error)

// JournalImpl implements ports.JournalService.
type JournalImpl struct {
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	rules      ports.RuleEngine
	locks      *keylock.KeyedMutex
	currency   string
	now        func() time.Time
	log        zerolog.Logger
}

// NewJournal creates a new JournalImpl.
func NewJournal(
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	rules ports.RuleEngine,
	currency string,
	log zerolog.Logger,
) *JournalImpl {
	return &JournalImpl{
		txRepo:     txRepo,
		transactor: transactor,
		rules:      rules,
		locks:      keylock.New(),
		currency:   currency,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Create records a new payment in the initiated stage.
func (j *JournalImpl) Create(ctx context.Context, req ports.CreateRecordRequest) (*domain.TransactionRecord, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(req.PartyTo) == "" {
		return nil, apperror.ErrUnknownParty(req.PartyTo)
	}
	if req.PaymentMethod == "" {
		return nil, apperror.Validation("payment method is required")
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	currency := req.Currency
	if currency == "" {
		currency = j.currency
	}

	unlock := j.locks.Lock(id)
	defer unlock()

	existing, err := j.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check transaction id: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateRecord(id)
	}
	if req.ExternalRef != "" {
		existing, err = j.txRepo.GetByExternalRef(ctx, req.ExternalRef)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check external reference: %w", err))
		}
		if existing != nil {
			return nil, apperror.ErrDuplicateRecord(req.ExternalRef)
		}
		if req.ExternalRef != id {
			existing, err = j.txRepo.GetByID(ctx, req.ExternalRef)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("check external reference: %w", err))
			}
			if existing != nil {
				return nil, apperror.ErrDuplicateRecord(req.ExternalRef)
			}
		}
	}
	// Webhooks resolve by reference first, then by id, so an id may not
	// shadow another record's reference either.
	existing, err = j.txRepo.GetByExternalRef(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check transaction id: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateRecord(id)
	}

	now := j.now()
	rec := &domain.TransactionRecord{
		ID:                    id,
		CreatedAt:             now,
		UpdatedAt:             now,
		Amount:                req.Amount,
		Currency:              currency,
		PaymentMethod:         req.PaymentMethod,
		Status:                domain.TransactionStatusPending,
		ProcessingState:       domain.StateInitiated,
		PartyFrom:             req.PartyFrom,
		PartyTo:               req.PartyTo,
		WalletTransactionType: domain.WalletTxPayment,
		ExternalRef:           req.ExternalRef,
		SettlementHandle:      req.SettlementHandle,
		CallbackURL:           req.CallbackURL,
		Description:           req.Description,
		Timeline: []domain.TimelineEntry{
			{Stage: domain.StateInitiated, Timestamp: now, Message: domain.StateInitiated.DefaultMessage()},
		},
	}

	dbTx, err := j.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := j.createInTx(ctx, dbTx, rec); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	j.log.Info().
		Str("tx_id", rec.ID).
		Str("party_to", rec.PartyTo).
		Int64("amount", rec.Amount).
		Str("method", string(rec.PaymentMethod)).
		Msg("payment recorded")

	return rec, nil
}

// Advance moves a record one stage forward.
func (j *JournalImpl) Advance(ctx context.Context, id string, to domain.ProcessingState, message string) (*domain.TransactionRecord, error) {
	return j.mutate(ctx, id, func(rec *domain.TransactionRecord, now time.Time) error {
		if message == "" {
			message = to.DefaultMessage()
		}
		return rec.Transition(to, now, message)
	})
}

// AdvanceTo walks a record forward to target, one timeline entry per stage.
// Intermediate stages get their default message; target gets message.
func (j *JournalImpl) AdvanceTo(ctx context.Context, id string, target domain.ProcessingState, message string) (*domain.TransactionRecord, error) {
	return j.mutate(ctx, id, func(rec *domain.TransactionRecord, now time.Time) error {
		return walk(rec, target, now, message)
	})
}

// Fail moves a record to failed. A human-readable reason is required.
func (j *JournalImpl) Fail(ctx context.Context, id string, reason string) (*domain.TransactionRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("failure reason is required")
	}
	rec, err := j.mutate(ctx, id, func(rec *domain.TransactionRecord, now time.Time) error {
		return rec.Transition(domain.StateFailed, now, reason)
	})
	if err != nil {
		return nil, err
	}
	j.log.Warn().Str("tx_id", id).Str("reason", reason).Msg("transaction failed")
	return rec, nil
}

// Get fetches a record by id.
func (j *JournalImpl) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	rec, err := j.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrRecordNotFound(id)
	}
	return rec, nil
}

// GetByExternalRef fetches a record by the bank's reference.
func (j *JournalImpl) GetByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error) {
	rec, err := j.txRepo.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction by reference: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrRecordNotFound(ref)
	}
	return rec, nil
}

// ListByParty returns a page of the party's records, newest first.
func (j *JournalImpl) ListByParty(ctx context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	if strings.TrimSpace(params.Party) == "" {
		return nil, 0, apperror.ErrUnknownParty(params.Party)
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	recs, total, err := j.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return recs, total, nil
}

// Resolve finalizes the record identified by ref from a bank report. A
// report whose amount differs from the record fails it instead. The
// terminal check, the transition and settle all run under one record lock
// and in one store transaction. A record that is already terminal is
// returned unchanged with Duplicate set.
func (j *JournalImpl) Resolve(
	ctx context.Context,
	ref string,
	report domain.BankReport,
	settle SettleFunc,
) (*domain.WebhookResult, error) {
	found, err := j.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	id := found.ID

	unlock := j.locks.Lock(id)
	defer unlock()

	dbTx, err := j.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	rec, err := j.txRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrRecordNotFound(ref)
	}
	if rec.IsTerminal() {
		return &domain.WebhookResult{Record: rec, Duplicate: true}, nil
	}

	now := j.now()
	target := outcomeTarget(rec, report.Outcome)
	message := report.Message
	if report.AmountMismatch(rec.Amount) {
		target = domain.StateFailed
		message = fmt.Sprintf("Amount mismatch: bank reported %d, expected %d", *report.Amount, rec.Amount)
		j.log.Warn().
			Str("tx_id", rec.ID).
			Int64("reported", *report.Amount).
			Int64("expected", rec.Amount).
			Msg("webhook amount mismatch, failing record")
	} else if target == domain.StateFailed && message == "" {
		message = fmt.Sprintf("Bank reported %s", report.Outcome)
	}
	if err := walk(rec, target, now, message); err != nil {
		return nil, err
	}

	result := &domain.WebhookResult{Record: rec}
	if target == domain.StateCompleted && settle != nil {
		credited, err := settle(ctx, dbTx, rec)
		if err != nil {
			return nil, err
		}
		result.Credited = credited
	}

	if err := j.txRepo.Update(ctx, dbTx, rec); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return result, nil
}

// createInTx masks the description and stages rec in tx.
func (j *JournalImpl) createInTx(ctx context.Context, tx ports.Tx, rec *domain.TransactionRecord) error {
	if j.rules != nil {
		rec.DisplayDescription = j.rules.MaskDescription(rec.Description)
	} else {
		rec.DisplayDescription = rec.Description
	}
	if err := j.txRepo.Create(ctx, tx, rec); err != nil {
		return apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}
	return nil
}

// mutate applies fn to the locked record and persists the result.
func (j *JournalImpl) mutate(ctx context.Context, id string, fn func(rec *domain.TransactionRecord, now time.Time) error) (*domain.TransactionRecord, error) {
	unlock := j.locks.Lock(id)
	defer unlock()

	dbTx, err := j.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	rec, err := j.txRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrRecordNotFound(id)
	}

	if err := mapTransitionError(fn(rec, j.now())); err != nil {
		return nil, err
	}

	if err := j.txRepo.Update(ctx, dbTx, rec); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	j.log.Debug().
		Str("tx_id", rec.ID).
		Str("state", string(rec.ProcessingState)).
		Str("status", string(rec.Status)).
		Msg("transaction advanced")

	return rec, nil
}

// lookup finds a committed record by external reference, falling back to
// the record id since banks may echo our own id back. Create keeps ids and
// references disjoint across records, so at most one record matches.
func (j *JournalImpl) lookup(ctx context.Context, ref string) (*domain.TransactionRecord, error) {
	rec, err := j.txRepo.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction by reference: %w", err))
	}
	if rec == nil {
		rec, err = j.txRepo.GetByID(ctx, ref)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
		}
	}
	if rec == nil {
		return nil, apperror.ErrRecordNotFound(ref)
	}
	return rec, nil
}

// walk advances rec to target through every intermediate stage.
func walk(rec *domain.TransactionRecord, target domain.ProcessingState, now time.Time, message string) error {
	if rec.IsTerminal() {
		return apperror.ErrAlreadyTerminal()
	}
	path, ok := rec.Pipeline().Path(rec.ProcessingState, target)
	if !ok {
		return apperror.ErrInvalidTransition(&domain.TransitionError{From: rec.ProcessingState, To: target})
	}
	for i, stage := range path {
		msg := stage.DefaultMessage()
		if i == len(path)-1 && message != "" {
			msg = message
		}
		if err := rec.Transition(stage, now, msg); err != nil {
			return mapTransitionError(err)
		}
	}
	return nil
}

// outcomeTarget maps a bank outcome onto the terminal state to walk to.
// Declined is only reachable before settlement recording; later declines
// are recorded as failures.
func outcomeTarget(rec *domain.TransactionRecord, outcome domain.WebhookOutcome) domain.ProcessingState {
	switch outcome {
	case domain.WebhookOutcomeSuccess:
		return domain.StateCompleted
	case domain.WebhookOutcomeDeclined:
		if _, ok := rec.Pipeline().Path(rec.ProcessingState, domain.StateDeclined); ok {
			return domain.StateDeclined
		}
	}
	return domain.StateFailed
}

func mapTransitionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrAlreadyTerminal) {
		return apperror.ErrAlreadyTerminal()
	}
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return apperror.ErrInvalidTransition(err)
	}
	return err
}
