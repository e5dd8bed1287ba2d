package handler

import (
	"merchant-ledger/internal/adapter/http/middleware"
	"merchant-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	Journal        ports.JournalService
	Ledger         ports.WalletLedger
	Resolver       ports.WebhookResolver
	Pool           ports.RotationPool
	Reconciliation ports.ReconciliationService
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	WebhookLimit   middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	var webhookLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.RateLimitStore != nil && deps.WebhookLimit.Limit > 0 {
		webhookLimit = middleware.RateLimiter(deps.RateLimitStore, "webhook", "slug", deps.WebhookLimit, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.Journal)
	payments := v1.Group("/payments")
	{
		payments.POST("", paymentHandler.Initiate)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/advance", paymentHandler.Advance)
		payments.POST("/:id/fail", paymentHandler.Fail)
	}
	v1.GET("/parties/:party/transactions", paymentHandler.ListByParty)

	walletHandler := NewWalletHandler(deps.Ledger, deps.Reconciliation)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("", walletHandler.List)
		wallets.GET("/:owner", walletHandler.GetBalance)
		wallets.POST("/:owner/deposit", walletHandler.Deposit)
		wallets.POST("/:owner/withdraw", walletHandler.Withdraw)
	}
	v1.POST("/transfers", walletHandler.Transfer)
	v1.GET("/ledger/summary", walletHandler.Summary)

	webhookHandler := NewWebhookHandler(deps.Resolver)
	v1.POST("/webhooks/:slug", webhookLimit, webhookHandler.Receive)

	identifierHandler := NewIdentifierHandler(deps.Pool)
	identifiers := v1.Group("/identifiers")
	{
		identifiers.GET("", identifierHandler.List)
		identifiers.POST("/select", identifierHandler.Select)
		identifiers.POST("/reset", identifierHandler.Reset)
	}

	return r
}
