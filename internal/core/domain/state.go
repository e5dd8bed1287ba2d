package domain

import (
	"errors"
	"fmt"
)

// ProcessingState is a stage of the payment pipeline.
type ProcessingState string

const (
	StateInitiated             ProcessingState = "initiated"
	StateGatewayProcessing     ProcessingState = "gateway_processing"
	StateProcessorRouting      ProcessingState = "processor_routing"
	StateCardNetworkProcessing ProcessingState = "card_network_processing"
	StateBankAuthorization     ProcessingState = "bank_authorization"
	StateAuthorizationDecision ProcessingState = "authorization_decision"
	StateDeclined              ProcessingState = "declined"
	StateSettlementRecording   ProcessingState = "settlement_recording"
	StateSettlementInitiated   ProcessingState = "settlement_initiated"
	StateSettlementProcessing  ProcessingState = "settlement_processing"
	StateFundsTransferred      ProcessingState = "funds_transferred"
	StateMerchantCredited      ProcessingState = "merchant_credited"
	StateCompleted             ProcessingState = "completed"
	StateFailed                ProcessingState = "failed"
)

// ErrAlreadyTerminal is returned when a terminal record is asked to change.
var ErrAlreadyTerminal = errors.New("record is already terminal")

// TransitionError reports a transition the pipeline does not allow.
type TransitionError struct {
	From ProcessingState
	To   ProcessingState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

// IsTerminal returns true for declined, completed and failed.
func (s ProcessingState) IsTerminal() bool {
	return s == StateDeclined || s == StateCompleted || s == StateFailed
}

// Status projects a processing state onto the coarse public status.
func (s ProcessingState) Status() TransactionStatus {
	switch s {
	case StateCompleted:
		return TransactionStatusSuccessful
	case StateDeclined:
		return TransactionStatusDeclined
	case StateFailed:
		return TransactionStatusFailed
	}
	return TransactionStatusPending
}

// Pipeline is an explicit transition table. Failed is reachable from
// every non-terminal stage and is therefore not listed per stage.
type Pipeline struct {
	Name  string
	Order []ProcessingState
	Next  map[ProcessingState][]ProcessingState
}

// PaymentPipeline governs externally processed payments.
var PaymentPipeline = Pipeline{
	Name: "payment",
	Order: []ProcessingState{
		StateInitiated,
		StateGatewayProcessing,
		StateProcessorRouting,
		StateCardNetworkProcessing,
		StateBankAuthorization,
		StateAuthorizationDecision,
		StateSettlementRecording,
		StateSettlementInitiated,
		StateSettlementProcessing,
		StateFundsTransferred,
		StateMerchantCredited,
		StateCompleted,
	},
	Next: map[ProcessingState][]ProcessingState{
		StateInitiated:             {StateGatewayProcessing},
		StateGatewayProcessing:     {StateProcessorRouting},
		StateProcessorRouting:      {StateCardNetworkProcessing},
		StateCardNetworkProcessing: {StateBankAuthorization},
		StateBankAuthorization:     {StateAuthorizationDecision},
		StateAuthorizationDecision: {StateDeclined, StateSettlementRecording},
		StateSettlementRecording:   {StateSettlementInitiated},
		StateSettlementInitiated:   {StateSettlementProcessing},
		StateSettlementProcessing:  {StateFundsTransferred},
		StateFundsTransferred:      {StateMerchantCredited},
		StateMerchantCredited:      {StateCompleted},
	},
}

// BookEntryPipeline governs wallet ledger entries, which complete in one step.
var BookEntryPipeline = Pipeline{
	Name:  "book_entry",
	Order: []ProcessingState{StateInitiated, StateCompleted},
	Next: map[ProcessingState][]ProcessingState{
		StateInitiated: {StateCompleted},
	},
}

// CanTransition reports whether from -> to is a single legal step.
func (p Pipeline) CanTransition(from, to ProcessingState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		_, known := p.Next[from]
		return known
	}
	for _, n := range p.Next[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Rank returns the position of s in the main pipeline order. Declined
// ranks right after authorization_decision; failed and unknown states rank -1.
func (p Pipeline) Rank(s ProcessingState) int {
	if s == StateDeclined {
		return p.Rank(StateAuthorizationDecision) + 1
	}
	for i, st := range p.Order {
		if st == s {
			return i
		}
	}
	return -1
}

// Path returns the stages to walk from `from` (exclusive) to `to` (inclusive).
// It returns false if `to` is not reachable going forward.
func (p Pipeline) Path(from, to ProcessingState) ([]ProcessingState, bool) {
	if from == to || from.IsTerminal() {
		return nil, false
	}
	if to == StateFailed {
		return []ProcessingState{StateFailed}, p.CanTransition(from, to)
	}

	target := to
	if to == StateDeclined {
		target = StateAuthorizationDecision
	}

	var path []ProcessingState
	cur := from
	if cur != target {
		start := p.Rank(cur)
		end := p.Rank(target)
		if start < 0 || end < 0 || end <= start {
			return nil, false
		}
		path = append(path, p.Order[start+1:end+1]...)
		cur = target
	}
	if to == StateDeclined {
		if !p.CanTransition(cur, StateDeclined) {
			return nil, false
		}
		path = append(path, StateDeclined)
	}
	return path, len(path) > 0
}

var stageMessages = map[ProcessingState]string{
	StateInitiated:             "Payment initiated",
	StateGatewayProcessing:     "Accepted by payment gateway",
	StateProcessorRouting:      "Routed to processor",
	StateCardNetworkProcessing: "Forwarded to card network",
	StateBankAuthorization:     "Awaiting bank authorization",
	StateAuthorizationDecision: "Authorization decision received",
	StateDeclined:              "Declined by issuing bank",
	StateSettlementRecording:   "Settlement recorded",
	StateSettlementInitiated:   "Settlement initiated",
	StateSettlementProcessing:  "Settlement processing",
	StateFundsTransferred:      "Funds transferred",
	StateMerchantCredited:      "Merchant credited",
	StateCompleted:             "Completed",
	StateFailed:                "Failed",
}

// DefaultMessage is the timeline text used when a caller supplies none.
func (s ProcessingState) DefaultMessage() string {
	if m, ok := stageMessages[s]; ok {
		return m
	}
	return string(s)
}

// ParseProcessingState validates a state name.
func ParseProcessingState(s string) (ProcessingState, bool) {
	st := ProcessingState(s)
	_, ok := stageMessages[st]
	return st, ok
}
