package domain

import "strings"

// WebhookOutcome is the normalized result reported by a bank callback.
type WebhookOutcome string

const (
	WebhookOutcomeSuccess  WebhookOutcome = "success"
	WebhookOutcomeDeclined WebhookOutcome = "declined"
	WebhookOutcomeFailed   WebhookOutcome = "failed"
)

// ParseWebhookOutcome maps a free-form bank status onto an outcome.
func ParseWebhookOutcome(status string) WebhookOutcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success", "successful", "captured", "paid", "settled":
		return WebhookOutcomeSuccess
	case "declined", "rejected", "denied":
		return WebhookOutcomeDeclined
	}
	return WebhookOutcomeFailed
}

// WebhookCallback is an inbound bank or processor callback after field normalization.
type WebhookCallback struct {
	BankSlug    string
	Token       string
	ExternalRef string
	Status      string
	Message     string
	Amount      *int64 // as reported by the bank; nil when omitted
}

// BankReport is what a callback asserts about one record.
type BankReport struct {
	Outcome WebhookOutcome
	Message string
	Amount  *int64
}

// AmountMismatch reports whether the bank stated an amount other than expected.
func (r BankReport) AmountMismatch(expected int64) bool {
	return r.Amount != nil && *r.Amount != expected
}

// WebhookResult is what the resolver reports back to the caller.
type WebhookResult struct {
	Record    *TransactionRecord `json:"record"`
	Duplicate bool               `json:"duplicate"`
	Credited  int64              `json:"credited"`
}
