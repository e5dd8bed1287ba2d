package dto

import (
	"strings"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
)

// CreatePaymentRequest is the request body for payment initiation.
// Amount is validated by the journal so that a non-positive value maps to LED_003.
type CreatePaymentRequest struct {
	ID               string `json:"id,omitempty" binding:"omitempty,max=64,safe_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency,omitempty" binding:"omitempty,len=3"`
	PaymentMethod    string `json:"payment_method" binding:"required,oneof=card upi netbanking wallet webhook internal"`
	PartyFrom        string `json:"party_from" binding:"omitempty,max=100,safe_id"`
	PartyTo          string `json:"party_to" binding:"required,max=100,safe_id"`
	Description      string `json:"description" binding:"max=500" sanitize:"trim"`
	ExternalRef      string `json:"external_ref,omitempty" binding:"omitempty,max=100,safe_id"`
	CallbackURL      string `json:"callback_url,omitempty" binding:"omitempty,max=2048,safe_url" sanitize:"trim"`
	AssignIdentifier bool   `json:"assign_identifier"`
}

// AdvanceRequest moves a payment forward. Walk=true walks every intermediate
// stage up to Stage; otherwise Stage must be the single next stage.
type AdvanceRequest struct {
	Stage   string `json:"stage" binding:"required"`
	Message string `json:"message,omitempty" binding:"max=500" sanitize:"trim"`
	Walk    bool   `json:"walk"`
}

// FailRequest is the request body for failing a payment.
type FailRequest struct {
	Reason string `json:"reason" binding:"required,max=500" sanitize:"trim"`
}

// LedgerEntryRequest is the request body for deposits and withdrawals.
type LedgerEntryRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method,omitempty" binding:"omitempty,oneof=card upi netbanking wallet webhook internal"`
	Description   string `json:"description" binding:"max=500" sanitize:"trim"`
}

// TransferRequest is the request body for wallet-to-wallet transfers.
type TransferRequest struct {
	From        string `json:"from" binding:"required,max=100,safe_id" sanitize:"trim"`
	To          string `json:"to" binding:"required,max=100,safe_id" sanitize:"trim"`
	Amount      int64  `json:"amount"`
	Description string `json:"description" binding:"max=500" sanitize:"trim"`
	WithFee     bool   `json:"with_fee"`
}

// SelectIdentifierRequest is the request body for a manual pool pick.
type SelectIdentifierRequest struct {
	ContextKey string `json:"context_key" binding:"max=100"`
}

// WebhookPayload accepts the reference and status field spellings banks use.
type WebhookPayload struct {
	TransactionID string `json:"transaction_id"`
	TxnID         string `json:"txnId"`
	OrderID       string `json:"orderId"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	TxnStatus     string `json:"txnStatus"`
	Amount        *int64 `json:"amount,omitempty"`
	Message       string `json:"message" sanitize:"trim"`
}

// Reference returns the first non-blank reference field.
func (p WebhookPayload) Reference() string {
	for _, ref := range []string{p.TransactionID, p.TxnID, p.OrderID, p.PaymentID} {
		if s := strings.TrimSpace(ref); s != "" {
			return s
		}
	}
	return ""
}

// StatusValue returns status, falling back to txnStatus.
func (p WebhookPayload) StatusValue() string {
	if s := strings.TrimSpace(p.Status); s != "" {
		return s
	}
	return strings.TrimSpace(p.TxnStatus)
}

// TimelineEntryResponse is one timeline step.
type TimelineEntryResponse struct {
	Stage     string `json:"stage"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// TransactionResponse is the response body for journal records. The raw
// description is never exposed; callers see the masked display text.
type TransactionResponse struct {
	ID                    string                  `json:"id"`
	Amount                int64                   `json:"amount"`
	Fee                   int64                   `json:"fee"`
	Currency              string                  `json:"currency"`
	PaymentMethod         string                  `json:"payment_method"`
	Status                string                  `json:"status"`
	ProcessingState       string                  `json:"processing_state"`
	PartyFrom             string                  `json:"party_from"`
	PartyTo               string                  `json:"party_to"`
	WalletTransactionType string                  `json:"wallet_transaction_type,omitempty"`
	Direction             string                  `json:"direction,omitempty"`
	CorrelationID         string                  `json:"correlation_id,omitempty"`
	ExternalRef           string                  `json:"external_ref,omitempty"`
	SettlementHandle      string                  `json:"settlement_handle,omitempty"`
	Description           string                  `json:"description"`
	CreatedAt             string                  `json:"created_at"`
	UpdatedAt             string                  `json:"updated_at"`
	Timeline              []TimelineEntryResponse `json:"timeline"`
}

// NewTransactionResponse converts a domain record to its DTO.
func NewTransactionResponse(rec *domain.TransactionRecord) TransactionResponse {
	resp := TransactionResponse{
		ID:                    rec.ID,
		Amount:                rec.Amount,
		Fee:                   rec.Fee,
		Currency:              rec.Currency,
		PaymentMethod:         string(rec.PaymentMethod),
		Status:                string(rec.Status),
		ProcessingState:       string(rec.ProcessingState),
		PartyFrom:             rec.PartyFrom,
		PartyTo:               rec.PartyTo,
		WalletTransactionType: string(rec.WalletTransactionType),
		Direction:             string(rec.Direction),
		CorrelationID:         rec.CorrelationID,
		ExternalRef:           rec.ExternalRef,
		SettlementHandle:      rec.SettlementHandle,
		Description:           rec.DisplayDescription,
		CreatedAt:             rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             rec.UpdatedAt.Format(time.RFC3339),
		Timeline:              make([]TimelineEntryResponse, 0, len(rec.Timeline)),
	}
	for _, e := range rec.Timeline {
		resp.Timeline = append(resp.Timeline, TimelineEntryResponse{
			Stage:     string(e.Stage),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Message:   e.Message,
		})
	}
	return resp
}

// PaymentResponse is the response body for payment initiation.
type PaymentResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Selection   *domain.Selection   `json:"selection,omitempty"`
}

// TransferResponse groups the legs of one transfer.
type TransferResponse struct {
	CorrelationID string               `json:"correlation_id"`
	Debit         TransactionResponse  `json:"debit"`
	Credit        TransactionResponse  `json:"credit"`
	Fee           *TransactionResponse `json:"fee,omitempty"`
}

// NewTransferResponse converts a ledger transfer result.
func NewTransferResponse(res *ports.TransferResult) TransferResponse {
	out := TransferResponse{
		CorrelationID: res.CorrelationID,
		Debit:         NewTransactionResponse(res.Debit),
		Credit:        NewTransactionResponse(res.Credit),
	}
	if res.Fee != nil {
		fee := NewTransactionResponse(res.Fee)
		out.Fee = &fee
	}
	return out
}

// WalletResponse is the response for balance queries.
type WalletResponse struct {
	Owner     string `json:"owner"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updated_at"`
}

// NewWalletResponse converts a domain wallet.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		Owner:     w.Owner,
		Balance:   w.Balance,
		Currency:  w.Currency,
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

// WebhookResponse is the response body for a processed callback.
type WebhookResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate"`
	Credited      int64  `json:"credited"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
