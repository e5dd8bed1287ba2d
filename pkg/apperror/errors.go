package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error kinds. Codes are stable and part of the API contract.
const (
	CodeInsufficientBalance = "LED_001"
	CodeUnknownParty        = "LED_002"
	CodeInvalidAmount       = "LED_003"
	CodeRecordNotFound      = "JRN_001"
	CodeAlreadyTerminal     = "JRN_002"
	CodeInvalidTransition   = "JRN_003"
	CodeDuplicateRecord     = "JRN_004"
	CodeInvalidToken        = "WHK_001"
	CodeTokenExpired        = "WHK_002"
	CodeMissingReference    = "WHK_003"
	CodePoolExhausted       = "POOL_001"
	CodeValidation          = "REQ_001"
	CodeRateLimitExceeded   = "RATE_001"
	CodeInternal            = "SYS_001"
)

// ---- Wallet Ledger (LED) ----

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrUnknownParty(party string) *AppError {
	return New(CodeUnknownParty, fmt.Sprintf("Unknown party %q", party), http.StatusNotFound)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be a positive number of minor units", http.StatusBadRequest)
}

// ---- Transaction Journal (JRN) ----

func ErrRecordNotFound(id string) *AppError {
	return New(CodeRecordNotFound, fmt.Sprintf("Transaction %q not found", id), http.StatusNotFound)
}

func ErrAlreadyTerminal() *AppError {
	return New(CodeAlreadyTerminal, "Transaction is already in a terminal state", http.StatusConflict)
}

func ErrInvalidTransition(err error) *AppError {
	return Wrap(CodeInvalidTransition, "Processing state transition not allowed", http.StatusConflict, err)
}

func ErrDuplicateRecord(key string) *AppError {
	return New(CodeDuplicateRecord, fmt.Sprintf("Transaction %q already exists", key), http.StatusConflict)
}

// ---- Webhooks (WHK) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid webhook token", http.StatusUnauthorized)
}

func ErrTokenExpired() *AppError {
	return New(CodeTokenExpired, "Webhook token expired", http.StatusUnauthorized)
}

func ErrMissingReference() *AppError {
	return New(CodeMissingReference, "Webhook payload carries no transaction reference", http.StatusBadRequest)
}

// ---- Identifier Rotation Pool (POOL) ----

func ErrPoolExhausted() *AppError {
	return New(CodePoolExhausted, "No settlement identifier available", http.StatusServiceUnavailable)
}

// ---- Request & Rate Limiting ----

// Validation returns a REQ_001 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
