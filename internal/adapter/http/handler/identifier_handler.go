package handler

import (
	"merchant-ledger/internal/adapter/http/dto"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// IdentifierHandler exposes the settlement identifier rotation pool.
type IdentifierHandler struct {
	pool ports.RotationPool
}

// NewIdentifierHandler creates a new IdentifierHandler.
func NewIdentifierHandler(pool ports.RotationPool) *IdentifierHandler {
	return &IdentifierHandler{pool: pool}
}

// List handles GET /api/v1/identifiers.
func (h *IdentifierHandler) List(c *gin.Context) {
	response.OK(c, h.pool.Snapshot())
}

// Select handles POST /api/v1/identifiers/select.
func (h *IdentifierHandler) Select(c *gin.Context) {
	var req dto.SelectIdentifierRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		dto.SanitizeStruct(&req)
	}

	sel, err := h.pool.SelectWithFallback(c.Request.Context(), req.ContextKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	if sel.Degraded {
		c.Header(HeaderDegraded, "true")
	}
	response.OK(c, sel)
}

// Reset handles POST /api/v1/identifiers/reset.
func (h *IdentifierHandler) Reset(c *gin.Context) {
	if err := h.pool.ResetDaily(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.OKMessage(c, "Identifier usage counters reset", h.pool.Snapshot())
}
