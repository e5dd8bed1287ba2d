package handler

import (
	"net/http"
	"net/url"
	"strings"

	"merchant-ledger/internal/adapter/http/dto"
	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"
	"merchant-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderWebhookToken is the alternative to "Authorization: Bearer <token>".
const HeaderWebhookToken = "X-Webhook-Token"

// WebhookHandler receives asynchronous bank callbacks.
type WebhookHandler struct {
	resolver ports.WebhookResolver
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(resolver ports.WebhookResolver) *WebhookHandler {
	return &WebhookHandler{resolver: resolver}
}

// Receive handles POST /api/v1/webhooks/:slug. The token is checked before
// the body is parsed. With ?redirect=true the caller is sent to the
// record's callback URL with the final status appended.
func (h *WebhookHandler) Receive(c *gin.Context) {
	slug, token := c.Param("slug"), webhookToken(c)
	if err := h.resolver.Authenticate(slug, token); err != nil {
		response.Error(c, err)
		return
	}

	var payload dto.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&payload)

	result, err := h.resolver.Resolve(c.Request.Context(), domain.WebhookCallback{
		BankSlug:    slug,
		Token:       token,
		ExternalRef: payload.Reference(),
		Status:      payload.StatusValue(),
		Message:     payload.Message,
		Amount:      payload.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("redirect") == "true" && result.Record.CallbackURL != "" {
		if target, ok := withStatus(result.Record.CallbackURL, result.Record.Status); ok {
			c.Redirect(http.StatusFound, target)
			return
		}
	}

	msg := "Webhook processed"
	if result.Duplicate {
		msg = "Duplicate webhook ignored"
	}
	response.OKMessage(c, msg, dto.WebhookResponse{
		TransactionID: result.Record.ID,
		Status:        string(result.Record.Status),
		Duplicate:     result.Duplicate,
		Credited:      result.Credited,
	})
}

func webhookToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if tok := c.GetHeader(HeaderWebhookToken); tok != "" {
		return tok
	}
	return c.Query("token")
}

// withStatus appends status=<final status> to raw, keeping its existing query.
func withStatus(raw string, status domain.TransactionStatus) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	q := u.Query()
	q.Set("status", string(status))
	u.RawQuery = q.Encode()
	return u.String(), true
}
