package dto

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreatePaymentRequest{
		PaymentMethod: "  upi ",
		PartyFrom:     "  customer-1  ",
		PartyTo:       " merchant-1 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "upi", req.PaymentMethod)
	assert.Equal(t, "customer-1", req.PartyFrom)
	assert.Equal(t, "merchant-1", req.PartyTo)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := TransferRequest{From: "<b>A</b>", To: "B"}
	SanitizeStruct(&req)

	assert.Equal(t, "&lt;b&gt;A&lt;/b&gt;", req.From)
}

func TestSanitizeStruct_TrimOnlyFieldsKeepText(t *testing.T) {
	req := CreatePaymentRequest{
		Description: "  Tom & Jerry <Crypto> ",
		CallbackURL: " https://shop.example/cb?a=1&b=2 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "Tom & Jerry <Crypto>", req.Description)
	assert.Equal(t, "https://shop.example/cb?a=1&b=2", req.CallbackURL)
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	type withPtr struct {
		Note *string
		Nil  *string
	}
	note := "  <i>hi</i>  "
	req := withPtr{Note: &note}
	SanitizeStruct(&req)

	assert.Equal(t, "&lt;i&gt;hi&lt;/i&gt;", *req.Note)
	assert.Nil(t, req.Nil)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"ref-001",
		"REF_002",
		"a.b.c",
		"platform:fees",
		"shop@okbank",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"ref 001",
		"ref<001>",
		"ref;DROP",
		"",
		"ref\n001",
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestBinding_CreatePaymentRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     CreatePaymentRequest
		wantErr bool
	}{
		{"valid", CreatePaymentRequest{PaymentMethod: "upi", PartyTo: "merchant-1", Amount: 100}, false},
		{"unknown method", CreatePaymentRequest{PaymentMethod: "cash", PartyTo: "merchant-1"}, true},
		{"missing party", CreatePaymentRequest{PaymentMethod: "card"}, true},
		{"unsafe party", CreatePaymentRequest{PaymentMethod: "card", PartyTo: "a b"}, true},
		{"bad callback scheme", CreatePaymentRequest{PaymentMethod: "card", PartyTo: "m", CallbackURL: "ftp://x"}, true},
		{"https callback", CreatePaymentRequest{PaymentMethod: "card", PartyTo: "m", CallbackURL: "https://shop.example/cb"}, false},
		{"bad currency", CreatePaymentRequest{PaymentMethod: "card", PartyTo: "m", Currency: "RUPEE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBinding_TransferRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     TransferRequest
		wantErr bool
	}{
		{"valid", TransferRequest{From: "alice", To: "platform:fees", Amount: 100}, false},
		{"missing sender", TransferRequest{To: "bob", Amount: 100}, true},
		{"missing recipient", TransferRequest{From: "alice", Amount: 100}, true},
		{"ampersand recipient", TransferRequest{From: "alice", To: "a&b", Amount: 100}, true},
		{"apostrophe sender", TransferRequest{From: "o'brien", To: "bob", Amount: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsSafeID(t *testing.T) {
	assert.True(t, IsSafeID("merchant-1"))
	assert.True(t, IsSafeID("platform:fees"))
	assert.False(t, IsSafeID("o'brien"))
	assert.False(t, IsSafeID("a&b"))
	assert.False(t, IsSafeID(""))
	assert.False(t, IsSafeID(strings.Repeat("a", 101)))
	assert.True(t, IsSafeID(strings.Repeat("a", 100)))
}

func TestWebhookPayload_FieldAliases(t *testing.T) {
	tests := []struct {
		name       string
		payload    WebhookPayload
		wantRef    string
		wantStatus string
	}{
		{"transaction_id", WebhookPayload{TransactionID: "T1", Status: "success"}, "T1", "success"},
		{"txnId", WebhookPayload{TxnID: " T2 ", TxnStatus: "FAILED"}, "T2", "FAILED"},
		{"orderId", WebhookPayload{OrderID: "O3", Status: "paid", TxnStatus: "ignored"}, "O3", "paid"},
		{"payment_id", WebhookPayload{PaymentID: "P4"}, "P4", ""},
		{"first wins", WebhookPayload{TransactionID: "T5", PaymentID: "P5"}, "T5", ""},
		{"none", WebhookPayload{TransactionID: "  "}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRef, tt.payload.Reference())
			assert.Equal(t, tt.wantStatus, tt.payload.StatusValue())
		})
	}
}
