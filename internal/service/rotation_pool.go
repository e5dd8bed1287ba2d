package service

import (
	"context"
	"sync"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const dayLayout = "2006-01-02"

// RotationPoolOptions configures NewRotationPool.
type RotationPoolOptions struct {
	Identifiers   []domain.SettlementIdentifier
	DefaultHandle string
	Location      *time.Location
	UsageStore    ports.IdentifierUsageStore // nil = no mirroring
	Clock         func() time.Time
}

// RotationPoolImpl implements ports.RotationPool.
type RotationPoolImpl struct {
	mu            sync.Mutex
	ids           []*domain.SettlementIdentifier
	defaultHandle string
	loc           *time.Location
	day           string
	usage         ports.IdentifierUsageStore
	now           func() time.Time
	log           zerolog.Logger
}

// NewRotationPool creates a pool over a copy of opts.Identifiers.
func NewRotationPool(opts RotationPoolOptions, log zerolog.Logger) *RotationPoolImpl {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := make([]*domain.SettlementIdentifier, 0, len(opts.Identifiers))
	for _, id := range opts.Identifiers {
		c := id
		ids = append(ids, &c)
	}
	return &RotationPoolImpl{
		ids:           ids,
		defaultHandle: opts.DefaultHandle,
		loc:           loc,
		day:           clock().In(loc).Format(dayLayout),
		usage:         opts.UsageStore,
		now:           clock,
		log:           log,
	}
}

// Select picks the least-utilized active identifier with capacity left,
// counts the use and stamps it. Ties go to the identifier used longest ago,
// then to configuration order.
func (p *RotationPoolImpl) Select(ctx context.Context, contextKey string) (*domain.Selection, error) {
	p.mu.Lock()
	now := p.now()
	p.rolloverLocked(now)

	var best *domain.SettlementIdentifier
	for _, id := range p.ids {
		if !id.HasCapacity() {
			continue
		}
		if best == nil || lessUsed(id, best) {
			best = id
		}
	}
	if best == nil {
		p.mu.Unlock()
		return nil, apperror.ErrPoolExhausted()
	}

	best.UsedToday++
	best.LastUsedAt = now
	sel := &domain.Selection{
		Handle:     best.Handle,
		Issuer:     best.Issuer,
		UsedToday:  best.UsedToday,
		DailyLimit: best.DailyLimit,
	}
	day := p.day
	p.mu.Unlock()

	if p.usage != nil {
		if _, err := p.usage.IncrUsage(ctx, day, sel.Handle); err != nil {
			p.log.Warn().Err(err).Str("handle", sel.Handle).Msg("failed to mirror identifier usage")
		}
	}

	p.log.Debug().
		Str("handle", sel.Handle).
		Str("context_key", contextKey).
		Int64("used_today", sel.UsedToday).
		Int64("daily_limit", sel.DailyLimit).
		Msg("settlement identifier selected")

	return sel, nil
}

// SelectWithFallback behaves like Select but answers exhaustion with the
// configured default handle, flagged as degraded. Without a default handle
// the PoolExhausted error is returned.
func (p *RotationPoolImpl) SelectWithFallback(ctx context.Context, contextKey string) (*domain.Selection, error) {
	sel, err := p.Select(ctx, contextKey)
	if err == nil {
		return sel, nil
	}
	if !apperror.Is(err, apperror.CodePoolExhausted) || p.defaultHandle == "" {
		return nil, err
	}

	p.log.Warn().
		Str("context_key", contextKey).
		Str("default_handle", p.defaultHandle).
		Msg("identifier pool exhausted, using default handle (degraded)")

	return &domain.Selection{Handle: p.defaultHandle, Degraded: true}, nil
}

// ResetDaily zeroes every usage counter.
func (p *RotationPoolImpl) ResetDaily(ctx context.Context) error {
	p.mu.Lock()
	for _, id := range p.ids {
		id.UsedToday = 0
	}
	p.day = p.now().In(p.loc).Format(dayLayout)
	day := p.day
	p.mu.Unlock()

	if p.usage != nil {
		if err := p.usage.ClearUsage(ctx, day); err != nil {
			p.log.Warn().Err(err).Str("day", day).Msg("failed to clear mirrored identifier usage")
		}
	}
	p.log.Info().Str("day", day).Msg("identifier usage counters reset")
	return nil
}

// Restore loads today's counters from the usage store.
func (p *RotationPoolImpl) Restore(ctx context.Context) error {
	if p.usage == nil {
		return nil
	}
	p.mu.Lock()
	p.rolloverLocked(p.now())
	day := p.day
	p.mu.Unlock()

	used, err := p.usage.GetUsage(ctx, day)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.day != day {
		return nil
	}
	for _, id := range p.ids {
		n, ok := used[id.Handle]
		if !ok {
			continue
		}
		if n > id.DailyLimit {
			n = id.DailyLimit
		}
		id.UsedToday = n
	}
	return nil
}

// RunDailyReset resets the counters at every local midnight until ctx is done.
func (p *RotationPoolImpl) RunDailyReset(ctx context.Context) {
	for {
		now := p.now().In(p.loc)
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, p.loc)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_ = p.ResetDaily(ctx)
		}
	}
}

// Snapshot returns copies of every identifier in configuration order.
func (p *RotationPoolImpl) Snapshot() []domain.SettlementIdentifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rolloverLocked(p.now())
	out := make([]domain.SettlementIdentifier, 0, len(p.ids))
	for _, id := range p.ids {
		out = append(out, *id)
	}
	return out
}

// rolloverLocked zeroes the counters when the calendar day changed since the
// last reset, covering a missed reset job.
func (p *RotationPoolImpl) rolloverLocked(now time.Time) {
	today := now.In(p.loc).Format(dayLayout)
	if today == p.day {
		return
	}
	for _, id := range p.ids {
		id.UsedToday = 0
	}
	p.day = today
}

func lessUsed(a, b *domain.SettlementIdentifier) bool {
	ua, ub := a.Utilization(), b.Utilization()
	if ua != ub {
		return ua < ub
	}
	return a.LastUsedAt.Before(b.LastUsedAt)
}
