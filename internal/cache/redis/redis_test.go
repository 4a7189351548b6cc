package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "resolve:m1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "resolve:m1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "resolve:m2", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:resolve:m1"))

	again, err := lm.Acquire(ctx, "resolve:m1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockExpiresWithTTL(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "m1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lm.Acquire(ctx, "m1", time.Minute)
	require.NoError(t, err)

	// the expired holder must not release the new holder's lock
	stale()
	assert.True(t, mr.Exists("lock:m1"))
	fresh()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "quota:gnews", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "quota:gnews", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys are independent
	ok, err = rl.Allow(ctx, "quota:other", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Hour + time.Second)
	ok, err = rl.Allow(ctx, "quota:gnews", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "window slid past the first requests")

	_, err = rl.Allow(ctx, "quota:gnews", 0, time.Hour)
	assert.Error(t, err)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Limit, rl.Window = 1, time.Hour

	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestResultCache(t *testing.T) {
	c, mr := newTestClient(t)
	rc := NewResultCache(c, time.Hour)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := rc.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	newer := domain.ResolutionResult{
		MarketID: "m1", Outcome: domain.OutcomeYes, SettlementAction: domain.ActionSettle,
		Confidence: 0.9, Flags: []string{}, ResolvedAt: t0.Add(time.Minute),
	}
	older := newer
	older.SettlementAction = domain.ActionDefer
	older.ResolvedAt = t0

	require.NoError(t, rc.Set(ctx, newer))
	require.NoError(t, rc.Set(ctx, older))

	got, err := rc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSettle, got.SettlementAction, "older result does not replace newer")
	assert.Equal(t, "SETTLE", mr.HGet("resolution:m1", "action"))
	assert.Equal(t, time.Hour, mr.TTL("resolution:m1"))

	require.NoError(t, rc.Invalidate(ctx, "m1"))
	_, err = rc.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBus(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, domain.ChannelResolutions)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelResolutions, []byte(`{"marketId":"m1"}`)))

	select {
	case msg := <-sub:
		assert.JSONEq(t, `{"marketId":"m1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	msgs, err := bus.StreamRead(ctx, domain.StreamResolutions, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamResolutions, []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamResolutions, []byte("b")))

	msgs, err = bus.StreamRead(ctx, domain.StreamResolutions, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamResolutions, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("b"), rest[0].Payload)

	cancel()
	for range sub {
	}
}
