package handler

import (
	"fmt"

	"merchant-ledger/internal/adapter/http/dto"
	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet balance and movement endpoints.
type WalletHandler struct {
	ledger ports.WalletLedger
	recon  ports.ReconciliationService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.WalletLedger, recon ports.ReconciliationService) *WalletHandler {
	return &WalletHandler{ledger: ledger, recon: recon}
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	wallets, err := h.ledger.Wallets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		out = append(out, dto.NewWalletResponse(&wallets[i]))
	}
	response.OK(c, out)
}

// GetBalance handles GET /api/v1/wallets/:owner.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	owner, ok := idParam(c, "owner")
	if !ok {
		return
	}
	w, err := h.ledger.Balance(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// Deposit handles POST /api/v1/wallets/:owner/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	req, ok := bindLedgerEntry(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Deposit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewTransactionResponse(rec))
}

// Withdraw handles POST /api/v1/wallets/:owner/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	req, ok := bindLedgerEntry(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Withdraw(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewTransactionResponse(rec))
}

// Transfer handles POST /api/v1/transfers.
func (h *WalletHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	in := ports.TransferRequest{
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		Description: req.Description,
	}
	var (
		res *ports.TransferResult
		err error
	)
	if req.WithFee {
		res, err = h.ledger.TransferWithFee(c.Request.Context(), in)
	} else {
		res, err = h.ledger.Transfer(c.Request.Context(), in)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewTransferResponse(res))
}

// Summary handles GET /api/v1/ledger/summary.
func (h *WalletHandler) Summary(c *gin.Context) {
	summary, err := h.recon.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

func bindLedgerEntry(c *gin.Context) (ports.LedgerRequest, bool) {
	owner, ok := idParam(c, "owner")
	if !ok {
		return ports.LedgerRequest{}, false
	}
	var req dto.LedgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return ports.LedgerRequest{}, false
	}
	dto.SanitizeStruct(&req)

	method := domain.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = domain.PaymentMethodInternal
	}
	return ports.LedgerRequest{
		Owner:       owner,
		Amount:      req.Amount,
		Method:      method,
		Description: req.Description,
	}, true
}

// idParam returns the named path id, or writes REQ_001 when it fails the
// same rule as ids in request bodies.
func idParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if !dto.IsSafeID(v) {
		response.Error(c, apperror.Validation(fmt.Sprintf("invalid %s %q", name, v)))
		return "", false
	}
	return v, true
}
