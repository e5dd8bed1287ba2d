package domain

import (
	"time"
)

// TransactionStatus is the coarse, publicly visible status of a record.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusDeclined   TransactionStatus = "declined"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusSettled    TransactionStatus = "settled"
)

// IsTerminal returns true if no further transition can occur from this status.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSuccessful, TransactionStatusDeclined,
		TransactionStatusFailed, TransactionStatusSettled:
		return true
	}
	return false
}

// PaymentMethod is the instrument a record was paid with.
type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetbanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodWebhook    PaymentMethod = "webhook"
	PaymentMethodInternal   PaymentMethod = "internal"
)

// WalletTransactionType classifies records that move wallet balances.
type WalletTransactionType string

const (
	WalletTxDeposit    WalletTransactionType = "deposit"
	WalletTxWithdrawal WalletTransactionType = "withdrawal"
	WalletTxTransfer   WalletTransactionType = "transfer"
	WalletTxPayment    WalletTransactionType = "payment"
)

// EntryDirection marks which side of a double-entry pair a book entry is.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
	// EntryFee is the sender-to-fee-account leg of a fee-bearing transfer.
	EntryFee    EntryDirection = "fee"
)

// TimelineEntry records one state transition.
type TimelineEntry struct {
	Stage     ProcessingState `json:"stage"`
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message"`
}

// TransactionRecord is a journal entry. Amounts are in minor currency units.
type TransactionRecord struct {
	ID                    string                `json:"id"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
	Amount                int64                 `json:"amount"`
	Fee                   int64                 `json:"fee"`
	Currency              string                `json:"currency"`
	PaymentMethod         PaymentMethod         `json:"payment_method"`
	Status                TransactionStatus     `json:"status"`
	ProcessingState       ProcessingState       `json:"processing_state"`
	PartyFrom             string                `json:"party_from"`
	PartyTo               string                `json:"party_to"`
	WalletTransactionType WalletTransactionType `json:"wallet_transaction_type,omitempty"`
	Direction             EntryDirection        `json:"direction,omitempty"`
	CorrelationID         string                `json:"correlation_id,omitempty"`
	ExternalRef           string                `json:"external_ref,omitempty"`
	SettlementHandle      string                `json:"settlement_handle,omitempty"`
	CallbackURL           string                `json:"callback_url,omitempty"`
	Description           string                `json:"description"`
	DisplayDescription    string                `json:"display_description"`
	Timeline              []TimelineEntry       `json:"timeline"`
}

// IsTerminal returns true if the record can no longer change.
func (t *TransactionRecord) IsTerminal() bool {
	return t.Status.IsTerminal() || t.ProcessingState.IsTerminal()
}

// IsBookEntry reports whether the record is a wallet ledger entry rather
// than an externally processed payment.
func (t *TransactionRecord) IsBookEntry() bool {
	switch t.WalletTransactionType {
	case WalletTxDeposit, WalletTxWithdrawal, WalletTxTransfer:
		return true
	}
	return false
}

// Pipeline returns the transition table that governs this record.
func (t *TransactionRecord) Pipeline() Pipeline {
	if t.IsBookEntry() {
		return BookEntryPipeline
	}
	return PaymentPipeline
}

// Clone returns a deep copy so callers never share the timeline slice.
func (t *TransactionRecord) Clone() *TransactionRecord {
	c := *t
	c.Timeline = make([]TimelineEntry, len(t.Timeline))
	copy(c.Timeline, t.Timeline)
	return &c
}

// LastEntry returns the most recent timeline entry.
func (t *TransactionRecord) LastEntry() (TimelineEntry, bool) {
	if len(t.Timeline) == 0 {
		return TimelineEntry{}, false
	}
	return t.Timeline[len(t.Timeline)-1], true
}

// Transition moves the record to stage `to`, appending a timeline entry.
// The caller is responsible for holding the record lock.
func (t *TransactionRecord) Transition(to ProcessingState, at time.Time, message string) error {
	if t.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !t.Pipeline().CanTransition(t.ProcessingState, to) {
		return &TransitionError{From: t.ProcessingState, To: to}
	}
	if last, ok := t.LastEntry(); ok && at.Before(last.Timestamp) {
		at = last.Timestamp
	}
	t.Timeline = append(t.Timeline, TimelineEntry{Stage: to, Timestamp: at, Message: message})
	t.ProcessingState = to
	t.Status = to.Status()
	t.UpdatedAt = at
	return nil
}
