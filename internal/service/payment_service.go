package service

import (
	"context"
	"strings"

	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	journal ports.JournalService
	pool    ports.RotationPool
	log     zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(journal ports.JournalService, pool ports.RotationPool, log zerolog.Logger) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		journal: journal,
		pool:    pool,
		log:     log,
	}
}

// Initiate records a new payment. With AssignIdentifier set, a settlement
// handle is reserved from the rotation pool first; a degraded fallback is
// passed through on the result so the caller can surface it.
func (s *PaymentServiceImpl) Initiate(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentResult, error) {
	// Cheap checks first so a rejected request never consumes pool capacity.
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(req.PartyTo) == "" {
		return nil, apperror.ErrUnknownParty(req.PartyTo)
	}

	result := &ports.PaymentResult{}
	create := req.CreateRecordRequest

	if req.AssignIdentifier {
		if s.pool == nil {
			return nil, apperror.ErrPoolExhausted()
		}
		sel, err := s.pool.SelectWithFallback(ctx, req.PartyTo)
		if err != nil {
			return nil, err
		}
		create.SettlementHandle = sel.Handle
		result.Selection = sel
	}

	rec, err := s.journal.Create(ctx, create)
	if err != nil {
		if result.Selection != nil {
			s.log.Warn().
				Err(err).
				Str("handle", result.Selection.Handle).
				Msg("payment rejected after identifier reservation")
		}
		return nil, err
	}
	result.Record = rec

	s.log.Info().
		Str("tx_id", rec.ID).
		Str("handle", rec.SettlementHandle).
		Bool("degraded", result.Selection != nil && result.Selection.Degraded).
		Msg("payment initiated")

	return result, nil
}
