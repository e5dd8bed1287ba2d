package service

import (
	"context"
	"fmt"

	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// reconciliationService implements ports.ReconciliationService.
type reconciliationService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	log        zerolog.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	log zerolog.Logger,
) ports.ReconciliationService {
	return &reconciliationService{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		log:        log,
	}
}

// Summary compares the sum of wallet balances with deposits minus
// withdrawals. Transfers are zero-sum and do not enter the comparison.
func (s *reconciliationService) Summary(ctx context.Context) (*ports.LedgerSummary, error) {
	wallets, err := s.walletRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}
	totals, err := s.txRepo.GetTotals(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger totals: %w", err))
	}

	sum := &ports.LedgerSummary{
		WalletCount: len(wallets),
		Deposits:    totals.Deposits,
		Withdrawals: totals.Withdrawals,
		Transfers:   totals.Transfers,
		Payments:    totals.Payments,
		Pending:     totals.Pending,
		Failed:      totals.Failed,
	}
	for _, w := range wallets {
		sum.TotalBalance += w.Balance
		if w.Balance < 0 {
			sum.NegativeCount++
		}
	}
	sum.Discrepancy = sum.TotalBalance - (totals.Deposits - totals.Withdrawals)
	sum.Balanced = sum.Discrepancy == 0 && sum.NegativeCount == 0

	if !sum.Balanced {
		s.log.Error().
			Int64("discrepancy", sum.Discrepancy).
			Int("negative_wallets", sum.NegativeCount).
			Msg("ledger out of balance")
	}
	return sum, nil
}
