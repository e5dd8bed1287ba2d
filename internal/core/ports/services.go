package ports

import (
	"context"
	"time"

	"merchant-ledger/internal/core/domain"
)

// TokenService issues and validates webhook authenticity tokens (JWT).
type TokenService interface {
	Generate(bankSlug string) (string, time.Time, error)
	// Validate returns an *apperror.AppError with code WHK_001 or WHK_002 on failure.
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	BankSlug  string
	ExpiresAt time.Time
}

// RandomSource picks values for masking. Tests inject a fixed source.
type RandomSource interface {
	Intn(n int) int
}

// StatusNotifier pushes final record status to the caller-supplied callback URL.
type StatusNotifier interface {
	Notify(ctx context.Context, rec *domain.TransactionRecord) error
}

// --- Service Ports (Business Logic) ---

// RuleEngine rewrites free text against the restricted-term policy.
type RuleEngine interface {
	IsRestricted(text string) bool
	MaskDescription(text string) string
	MaskPartyName(text string) string
}

// JournalService defines the transaction journal and its state machine.
type JournalService interface {
	Create(ctx context.Context, req CreateRecordRequest) (*domain.TransactionRecord, error)
	Advance(ctx context.Context, id string, to domain.ProcessingState, message string) (*domain.TransactionRecord, error)
	AdvanceTo(ctx context.Context, id string, target domain.ProcessingState, message string) (*domain.TransactionRecord, error)
	Fail(ctx context.Context, id string, reason string) (*domain.TransactionRecord, error)
	Get(ctx context.Context, id string) (*domain.TransactionRecord, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error)
	ListByParty(ctx context.Context, params TransactionListParams) ([]domain.TransactionRecord, int64, error)
}

// CreateRecordRequest holds validated input for a new payment record.
type CreateRecordRequest struct {
	ID               string // optional; generated when empty
	Amount           int64
	Currency         string
	PaymentMethod    domain.PaymentMethod
	PartyFrom        string
	PartyTo          string
	Description      string
	ExternalRef      string
	CallbackURL      string
	SettlementHandle string
}

// WalletLedger defines balance-moving operations.
type WalletLedger interface {
	Deposit(ctx context.Context, req LedgerRequest) (*domain.TransactionRecord, error)
	Withdraw(ctx context.Context, req LedgerRequest) (*domain.TransactionRecord, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	TransferWithFee(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Balance(ctx context.Context, owner string) (*domain.Wallet, error)
	Wallets(ctx context.Context) ([]domain.Wallet, error)
}

// LedgerRequest holds validated input for a single-party deposit or withdrawal.
type LedgerRequest struct {
	Owner       string
	Amount      int64
	Method      domain.PaymentMethod
	Description string
}

// TransferRequest holds validated input for a two-party transfer.
type TransferRequest struct {
	From        string
	To          string
	Amount      int64
	Description string
}

// TransferResult links the legs of one transfer by correlation id.
type TransferResult struct {
	CorrelationID string                    `json:"correlation_id"`
	Debit         *domain.TransactionRecord `json:"debit"`
	Credit        *domain.TransactionRecord `json:"credit"`
	Fee           *domain.TransactionRecord `json:"fee,omitempty"`
}

// WebhookResolver finalizes journal records from bank callbacks exactly once.
type WebhookResolver interface {
	// Authenticate checks that token was issued to bankSlug. Resolve
	// performs the same check; callers use it to reject before parsing.
	Authenticate(bankSlug, token string) error
	Resolve(ctx context.Context, cb domain.WebhookCallback) (*domain.WebhookResult, error)
}

// RotationPool selects settlement identifiers under daily caps.
type RotationPool interface {
	Select(ctx context.Context, contextKey string) (*domain.Selection, error)
	SelectWithFallback(ctx context.Context, contextKey string) (*domain.Selection, error)
	ResetDaily(ctx context.Context) error
	Snapshot() []domain.SettlementIdentifier
}

// PaymentService initiates externally processed payments.
type PaymentService interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}

// PaymentRequest holds validated input for payment initiation.
type PaymentRequest struct {
	CreateRecordRequest
	AssignIdentifier bool
}

// PaymentResult is the created record plus the identifier reservation, if any.
type PaymentResult struct {
	Record    *domain.TransactionRecord `json:"record"`
	Selection *domain.Selection         `json:"selection,omitempty"`
}

// ReconciliationService checks that balances are explained by committed entries.
type ReconciliationService interface {
	Summary(ctx context.Context) (*LedgerSummary, error)
}

// LedgerSummary compares wallet balances against committed book entries.
type LedgerSummary struct {
	WalletCount   int   `json:"wallet_count"`
	TotalBalance  int64 `json:"total_balance"`
	Deposits      int64 `json:"deposits"`
	Withdrawals   int64 `json:"withdrawals"`
	Transfers     int64 `json:"transfers"`
	Payments      int64 `json:"payments"`
	Pending       int64 `json:"pending"`
	Failed        int64 `json:"failed"`
	Discrepancy   int64 `json:"discrepancy"`
	Balanced      bool  `json:"balanced"`
	NegativeCount int   `json:"negative_count"`
}
