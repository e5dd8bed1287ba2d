package response

import (
	"errors"
	"net/http"
	"time"

	"merchant-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	send(c, http.StatusOK, "", data)
}

// OKMessage sends a 200 response with a human-readable message.
func OKMessage(c *gin.Context, message string, data interface{}) {
	send(c, http.StatusOK, message, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	send(c, http.StatusCreated, "", data)
}

func send(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, SuccessResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// Error writes the error envelope. AppErrors keep their code and status;
// anything else is reported as SYS_000 without leaking its text. The error
// is also attached to the gin context so the request logger records it.
func Error(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	appErr := asAppError(err)
	c.JSON(appErr.HTTPStatus, ErrorResponse{
		Status:    StatusError,
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

func asAppError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.Wrap("SYS_000", "Internal server error", http.StatusInternalServerError, err)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// getRequestID falls back to a fresh UUID outside the RequestID middleware.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
