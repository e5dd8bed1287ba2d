package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"merchant-ledger/internal/core/domain"
	"merchant-ledger/internal/core/ports/mocks"
	"merchant-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testIdentifiers(n int, limit int64) []domain.SettlementIdentifier {
	ids := make([]domain.SettlementIdentifier, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, domain.SettlementIdentifier{
			Handle:     fmt.Sprintf("merchant%d@okbank", i+1),
			Issuer:     "okbank",
			DailyLimit: limit,
			Active:     true,
		})
	}
	return ids
}

func newTestPool(ids []domain.SettlementIdentifier, defaultHandle string) (*RotationPoolImpl, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	p := NewRotationPool(RotationPoolOptions{
		Identifiers:   ids,
		DefaultHandle: defaultHandle,
		Clock:         clock.Now,
	}, zerolog.Nop())
	return p, clock
}

func TestRotationPool_Fairness(t *testing.T) {
	p, _ := newTestPool(testIdentifiers(3, 100), "")
	ctx := context.Background()

	for k := 1; k <= 50; k++ {
		_, err := p.Select(ctx, "order")
		require.NoError(t, err)

		lo, hi := int64(1<<62), int64(0)
		for _, id := range p.Snapshot() {
			lo = min(lo, id.UsedToday)
			hi = max(hi, id.UsedToday)
		}
		assert.LessOrEqual(t, hi-lo, int64(1), "after %d selections", k)
	}
}

func TestRotationPool_LeastUtilizationAcrossDifferentCaps(t *testing.T) {
	ids := []domain.SettlementIdentifier{
		{Handle: "small@bank", DailyLimit: 2, UsedToday: 1, Active: true},
		{Handle: "large@bank", DailyLimit: 10, UsedToday: 3, Active: true},
	}
	p, _ := newTestPool(ids, "")

	sel, err := p.Select(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "large@bank", sel.Handle)
	assert.Equal(t, int64(4), sel.UsedToday)
}

func TestRotationPool_TieBrokenByLastUsed(t *testing.T) {
	p, _ := newTestPool(testIdentifiers(2, 10), "")
	ctx := context.Background()

	first, err := p.Select(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "merchant1@okbank", first.Handle, "configuration order breaks the initial tie")

	second, err := p.Select(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "merchant2@okbank", second.Handle)

	third, err := p.Select(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "merchant1@okbank", third.Handle, "used longest ago wins")
}

func TestRotationPool_SkipsInactiveAndFull(t *testing.T) {
	ids := []domain.SettlementIdentifier{
		{Handle: "off@bank", DailyLimit: 10, Active: false},
		{Handle: "full@bank", DailyLimit: 1, UsedToday: 1, Active: true},
		{Handle: "ok@bank", DailyLimit: 5, UsedToday: 4, Active: true},
	}
	p, _ := newTestPool(ids, "")
	ctx := context.Background()

	sel, err := p.Select(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "ok@bank", sel.Handle)

	_, err = p.Select(ctx, "k")
	assert.True(t, apperror.Is(err, apperror.CodePoolExhausted))
}

func TestRotationPool_NeverExceedsCapUnderConcurrency(t *testing.T) {
	p, _ := newTestPool(testIdentifiers(4, 25), "")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		exhausted int
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Select(ctx, "burst")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				exhausted++
				return
			}
			granted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, granted)
	assert.Equal(t, 50, exhausted)
	for _, id := range p.Snapshot() {
		assert.Equal(t, int64(25), id.UsedToday)
	}
}

func TestRotationPool_SelectWithFallback(t *testing.T) {
	t.Run("degraded default", func(t *testing.T) {
		p, _ := newTestPool(nil, "fallback@bank")
		sel, err := p.SelectWithFallback(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "fallback@bank", sel.Handle)
		assert.True(t, sel.Degraded)
	})

	t.Run("no default surfaces exhaustion", func(t *testing.T) {
		p, _ := newTestPool(nil, "")
		_, err := p.SelectWithFallback(context.Background(), "k")
		assert.True(t, apperror.Is(err, apperror.CodePoolExhausted))
	})

	t.Run("capacity left is not degraded", func(t *testing.T) {
		p, _ := newTestPool(testIdentifiers(1, 1), "fallback@bank")
		sel, err := p.SelectWithFallback(context.Background(), "k")
		require.NoError(t, err)
		assert.False(t, sel.Degraded)
		assert.Equal(t, "merchant1@okbank", sel.Handle)
	})
}

func TestRotationPool_ResetDaily(t *testing.T) {
	p, _ := newTestPool(testIdentifiers(2, 1), "")
	ctx := context.Background()

	_, _ = p.Select(ctx, "k")
	_, _ = p.Select(ctx, "k")
	_, err := p.Select(ctx, "k")
	require.Error(t, err)

	require.NoError(t, p.ResetDaily(ctx))
	for _, id := range p.Snapshot() {
		assert.Zero(t, id.UsedToday)
	}
	_, err = p.Select(ctx, "k")
	assert.NoError(t, err)
}

func TestRotationPool_DayRolloverResetsCounters(t *testing.T) {
	p, clock := newTestPool(testIdentifiers(1, 1), "")
	ctx := context.Background()

	_, err := p.Select(ctx, "k")
	require.NoError(t, err)
	_, err = p.Select(ctx, "k")
	require.Error(t, err)

	clock.Set(time.Date(2026, 5, 11, 0, 0, 1, 0, time.UTC))
	sel, err := p.Select(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sel.UsedToday)
}

func TestRotationPool_MirrorsUsage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	usage := mocks.NewMockIdentifierUsageStore(ctrl)
	clock := &fakeClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	p := NewRotationPool(RotationPoolOptions{
		Identifiers: testIdentifiers(2, 10),
		UsageStore:  usage,
		Clock:       clock.Now,
	}, zerolog.Nop())
	ctx := context.Background()

	usage.EXPECT().GetUsage(ctx, "2026-05-10").Return(map[string]int64{"merchant1@okbank": 4, "merchant2@okbank": 99}, nil)
	require.NoError(t, p.Restore(ctx))

	snap := p.Snapshot()
	assert.Equal(t, int64(4), snap[0].UsedToday)
	assert.Equal(t, int64(10), snap[1].UsedToday, "restored usage is capped at the limit")

	usage.EXPECT().IncrUsage(ctx, "2026-05-10", "merchant1@okbank").Return(int64(5), errors.New("redis down"))
	sel, err := p.Select(ctx, "k")
	require.NoError(t, err, "mirror failures do not fail selection")
	assert.Equal(t, "merchant1@okbank", sel.Handle)

	usage.EXPECT().ClearUsage(ctx, "2026-05-10").Return(nil)
	require.NoError(t, p.ResetDaily(ctx))
}

func TestRotationPool_RunDailyResetStopsOnCancel(t *testing.T) {
	p, _ := newTestPool(testIdentifiers(1, 1), "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.RunDailyReset(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunDailyReset did not stop")
	}
}
