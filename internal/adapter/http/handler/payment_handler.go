package handler

import (
	"math"
	"strconv"

	"merchant-ledger/internal/adapter/http/dto"
	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderDegraded flags responses served from the default settlement handle.
const HeaderDegraded = "X-Degraded"

// PaymentHandler handles payment initiation and the operator state controls.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
	journal    ports.JournalService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService, journal ports.JournalService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, journal: journal}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.paymentSvc.Initiate(c.Request.Context(), ports.PaymentRequest{
		CreateRecordRequest: ports.CreateRecordRequest{
			ID:            req.ID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
			PartyFrom:     req.PartyFrom,
			PartyTo:       req.PartyTo,
			Description:   req.Description,
			ExternalRef:   req.ExternalRef,
			CallbackURL:   req.CallbackURL,
		},
		AssignIdentifier: req.AssignIdentifier,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Selection != nil && result.Selection.Degraded {
		c.Header(HeaderDegraded, "true")
	}
	response.Created(c, dto.PaymentResponse{
		Transaction: dto.NewTransactionResponse(result.Record),
		Selection:   result.Selection,
	})
}

// Get handles GET /api/v1/payments/:id. With ?by=external_ref the path
// value is looked up as the bank's reference instead.
func (h *PaymentHandler) Get(c *gin.Context) {
	var (
		rec *domain.TransactionRecord
		err error
	)
	if c.Query("by") == "external_ref" {
		rec, err = h.journal.GetByExternalRef(c.Request.Context(), c.Param("id"))
	} else {
		rec, err = h.journal.Get(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTransactionResponse(rec))
}

// Advance handles POST /api/v1/payments/:id/advance.
func (h *PaymentHandler) Advance(c *gin.Context) {
	var req dto.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	stage, ok := domain.ParseProcessingState(req.Stage)
	if !ok {
		response.Error(c, apperror.Validation("unknown processing stage "+strconv.Quote(req.Stage)))
		return
	}

	var (
		rec *domain.TransactionRecord
		err error
	)
	if req.Walk {
		rec, err = h.journal.AdvanceTo(c.Request.Context(), c.Param("id"), stage, req.Message)
	} else {
		rec, err = h.journal.Advance(c.Request.Context(), c.Param("id"), stage, req.Message)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTransactionResponse(rec))
}

// Fail handles POST /api/v1/payments/:id/fail.
func (h *PaymentHandler) Fail(c *gin.Context) {
	var req dto.FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	rec, err := h.journal.Fail(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTransactionResponse(rec))
}

// ListByParty handles GET /api/v1/parties/:party/transactions.
func (h *PaymentHandler) ListByParty(c *gin.Context) {
	party, ok := idParam(c, "party")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	params := ports.TransactionListParams{
		Party:    party,
		Page:     page,
		PageSize: pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		params.Status = &status
	}
	if m := c.Query("method"); m != "" {
		method := domain.PaymentMethod(m)
		params.Method = &method
	}

	recs, total, err := h.journal.ListByParty(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Echo the paging the journal clamped to.
	if params.Page < 1 {
		params.Page = 1
	}
	switch {
	case params.PageSize < 1:
		params.PageSize = 20
	case params.PageSize > 100:
		params.PageSize = 100
	}

	items := make([]dto.TransactionResponse, 0, len(recs))
	for i := range recs {
		items = append(items, dto.NewTransactionResponse(&recs[i]))
	}
	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(params.PageSize))),
	})
}
