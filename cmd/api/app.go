package main

import (
	"context"
	"fmt"
	"net/http"

	"merchant-ledger/config"
	httpHandler "merchant-ledger/internal/adapter/http/handler"
	"merchant-ledger/internal/adapter/http/middleware"
	memStorage "merchant-ledger/internal/adapter/storage/memory"
	pgStorage "merchant-ledger/internal/adapter/storage/postgres"
	redisStorage "merchant-ledger/internal/adapter/storage/redis"
	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/internal/service"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the fully wired process. Close releases the storage connections.
type app struct {
	router   *gin.Engine
	pool     *service.RotationPoolImpl
	notifier *service.Notifier
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type storage struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker // nil for the in-memory store
	close      func()
}

type redisDeps struct {
	client    *goredis.Client
	cache     *redisStorage.WebhookResultCache
	usage     *redisStorage.IdentifierUsageStore
	rateLimit *redisStorage.RateLimitStore
	health    *redisStorage.HealthCheck
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}

	store, err := newStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.close)

	var checkers []ports.HealthChecker
	if store.health != nil {
		checkers = append(checkers, store.health)
	}

	var (
		cache     ports.WebhookResultCache
		usage     ports.IdentifierUsageStore
		rateLimit middleware.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := newRedis(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.client.Close() })
		cache, usage, rateLimit = rdb.cache, rdb.usage, rdb.rateLimit
		checkers = append(checkers, rdb.health)
	}

	rules, err := service.NewRuleEngine(service.RuleEngineOptions{
		Rules:           maskingRules(cfg.Masking),
		Labels:          cfg.Masking.Labels,
		PartyNames:      cfg.Masking.PartyNames,
		ReferenceSuffix: cfg.Masking.ReferenceSuffix,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	feeRate, processingRate, err := cfg.Ledger.Rates()
	if err != nil {
		a.Close()
		return nil, err
	}

	journal := service.NewJournal(store.txRepo, store.transactor, rules, cfg.Ledger.Currency, log)
	ledger := service.NewWalletLedger(store.walletRepo, journal, store.transactor, service.LedgerOptions{
		Currency:          cfg.Ledger.Currency,
		FeeRate:           feeRate,
		ProcessingFeeRate: processingRate,
		FeeAccount:        cfg.Ledger.FeeAccount,
	}, log)

	tokens := service.NewJWTTokenService(cfg.Webhook.Secret, cfg.Webhook.Expiry, cfg.Webhook.Issuer)
	a.notifier = service.NewNotifier(&http.Client{}, nil, cfg.Webhook.NotifyTimeout, log)
	resolver := service.NewWebhookResolver(tokens, journal, ledger, cache, a.notifier, cfg.Webhook.ResultTTL, log)

	pool, err := newRotationPool(cfg, usage, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := pool.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore identifier usage, starting from zero")
	}
	a.pool = pool

	gin.SetMode(cfg.Server.Mode)
	a.router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     service.NewPaymentService(journal, pool, log),
		Journal:        journal,
		Ledger:         ledger,
		Resolver:       resolver,
		Pool:           pool,
		Reconciliation: service.NewReconciliationService(store.txRepo, store.walletRepo, log),
		RateLimitStore: rateLimit,
		WebhookLimit: middleware.RateLimitRule{
			Limit:  int64(cfg.Webhook.RateLimit),
			Window: cfg.Webhook.RateWindow,
		},
		HealthCheckers: checkers,
		Logger:         log,
	})
	return a, nil
}

func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, balances are lost on restart")
		store := memStorage.NewStore()
		return &storage{
			txRepo:     memStorage.NewTransactionRepo(store),
			walletRepo: memStorage.NewWalletRepo(store),
			transactor: store,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgresql: %w", err)
	}
	if cfg.Database.Migrate {
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("Database schema is up to date")
	}
	return &storage{
		txRepo:     pgStorage.NewTransactionRepo(pool),
		walletRepo: pgStorage.NewWalletRepo(pool),
		transactor: pgStorage.NewTransactor(pool),
		health:     pgStorage.NewHealthCheck(pool),
		close:      pool.Close,
	}, nil
}

func newRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redisDeps, error) {
	client, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &redisDeps{
		client:    client,
		cache:     redisStorage.NewWebhookResultCache(client),
		usage:     redisStorage.NewIdentifierUsageStore(client),
		rateLimit: redisStorage.NewRateLimitStore(client),
		health:    redisStorage.NewHealthCheck(client),
	}, nil
}

func newRotationPool(cfg *config.Config, usage ports.IdentifierUsageStore, log zerolog.Logger) (*service.RotationPoolImpl, error) {
	loc, err := cfg.Pool.Location()
	if err != nil {
		return nil, err
	}
	ids := make([]domain.SettlementIdentifier, 0, len(cfg.Pool.Identifiers))
	for _, id := range cfg.Pool.Identifiers {
		ids = append(ids, domain.SettlementIdentifier{
			Handle:     id.Handle,
			Issuer:     id.Issuer,
			DailyLimit: id.DailyLimit,
			Active:     id.Active,
		})
	}
	return service.NewRotationPool(service.RotationPoolOptions{
		Identifiers:   ids,
		DefaultHandle: cfg.Pool.DefaultHandle,
		Location:      loc,
		UsageStore:    usage,
	}, log), nil
}

func maskingRules(cfg config.MaskingConfig) []domain.MaskingRule {
	if len(cfg.Rules) == 0 {
		return nil
	}
	rules := make([]domain.MaskingRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, domain.MaskingRule{Pattern: r.Pattern, Replacement: r.Replacement, Priority: r.Priority})
	}
	return rules
}
