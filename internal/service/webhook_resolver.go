package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const defaultResultTTL = 24 * time.Hour

// WebhookResolverImpl implements ports.WebhookResolver.
type WebhookResolverImpl struct {
	tokens    ports.TokenService
	journal   *JournalImpl
	ledger    *WalletLedgerImpl
	cache     ports.WebhookResultCache // optional
	notifier  ports.StatusNotifier     // optional
	resultTTL time.Duration
	log       zerolog.Logger
}

// NewWebhookResolver creates a new WebhookResolverImpl. cache and notifier may be nil.
func NewWebhookResolver(
	tokens ports.TokenService,
	journal *JournalImpl,
	ledger *WalletLedgerImpl,
	cache ports.WebhookResultCache,
	notifier ports.StatusNotifier,
	resultTTL time.Duration,
	log zerolog.Logger,
) *WebhookResolverImpl {
	if resultTTL <= 0 {
		resultTTL = defaultResultTTL
	}
	return &WebhookResolverImpl{
		tokens:    tokens,
		journal:   journal,
		ledger:    ledger,
		cache:     cache,
		notifier:  notifier,
		resultTTL: resultTTL,
		log:       log,
	}
}

// Resolve authenticates cb and finalizes the referenced record. Repeated
// deliveries return the stored outcome with Duplicate set and move no money.
func (r *WebhookResolverImpl) Resolve(ctx context.Context, cb domain.WebhookCallback) (*domain.WebhookResult, error) {
	if err := r.Authenticate(cb.BankSlug, cb.Token); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(cb.ExternalRef)
	if ref == "" {
		return nil, apperror.ErrMissingReference()
	}

	cacheKey := cb.BankSlug + ":" + ref
	if cached := r.cached(ctx, cacheKey); cached != nil {
		r.log.Info().Str("bank", cb.BankSlug).Str("ref", ref).Msg("duplicate webhook absorbed (cache)")
		return cached, nil
	}

	rec, err := r.journal.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	var result *domain.WebhookResult
	if rec.IsTerminal() {
		result = &domain.WebhookResult{Record: rec, Duplicate: true}
	} else {
		unlock := r.ledger.LockSettlement(rec)
		report := domain.BankReport{
			Outcome: domain.ParseWebhookOutcome(cb.Status),
			Message: cb.Message,
			Amount:  cb.Amount,
		}
		result, err = r.journal.Resolve(ctx, rec.ID, report, r.ledger.settleInTx)
		unlock()
		if err != nil {
			return nil, err
		}
	}

	if result.Duplicate {
		r.log.Info().
			Str("bank", cb.BankSlug).
			Str("ref", ref).
			Str("tx_id", result.Record.ID).
			Str("status", string(result.Record.Status)).
			Msg("duplicate webhook absorbed")
	} else {
		r.log.Info().
			Str("bank", cb.BankSlug).
			Str("ref", ref).
			Str("tx_id", result.Record.ID).
			Str("status", string(result.Record.Status)).
			Int64("credited", result.Credited).
			Msg("webhook resolved")
		if r.notifier != nil {
			if err := r.notifier.Notify(ctx, result.Record); err != nil {
				r.log.Warn().Err(err).Str("tx_id", result.Record.ID).Msg("status notification not enqueued")
			}
		}
	}

	r.store(ctx, cacheKey, result)
	return result, nil
}

// Authenticate validates token and checks it was issued to bankSlug.
func (r *WebhookResolverImpl) Authenticate(bankSlug, token string) error {
	claims, err := r.tokens.Validate(token)
	if err != nil {
		r.log.Warn().Err(err).Str("bank", bankSlug).Msg("webhook rejected: token")
		return err
	}
	if claims.BankSlug != bankSlug {
		r.log.Warn().Str("bank", bankSlug).Str("token_bank", claims.BankSlug).Msg("webhook rejected: token issued to another bank")
		return apperror.ErrInvalidToken()
	}
	return nil
}

// cached returns a stored terminal result, marked as a duplicate.
func (r *WebhookResolverImpl) cached(ctx context.Context, key string) *domain.WebhookResult {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("webhook result cache read failed")
		return nil
	}
	if raw == nil {
		return nil
	}
	var res domain.WebhookResult
	if err := json.Unmarshal(raw, &res); err != nil || res.Record == nil || !res.Record.IsTerminal() {
		return nil
	}
	res.Duplicate = true
	res.Credited = 0
	return &res
}

func (r *WebhookResolverImpl) store(ctx context.Context, key string, result *domain.WebhookResult) {
	if r.cache == nil || !result.Record.IsTerminal() {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.resultTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("webhook result cache write failed")
	}
}
