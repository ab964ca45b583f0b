package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/core"
)

type memoryRateStore struct {
	mu    sync.Mutex
	state map[string]*core.RateLimitState
}

func (m *memoryRateStore) GetRateLimit(_ context.Context, service string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.state[service]; ok {
		copied := *val
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryRateStore) UpdateRateLimit(_ context.Context, service string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[service] = state
	return nil
}

func TestRateLimiterWindow(t *testing.T) {
	store := &memoryRateStore{}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Limits: map[string]RateLimit{
			ServicePageSpeed: {RequestsPerWindow: 1, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return clock },
	}
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, ServicePageSpeed)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(ctx, ServicePageSpeed))

	allowed, wait, err := limiter.Allow(ctx, ServicePageSpeed)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)

	clock = clock.Add(61 * time.Second)
	allowed, _, err = limiter.Allow(ctx, ServicePageSpeed)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(ctx, ServicePageSpeed))
	require.Equal(t, 1, store.state[ServicePageSpeed].RequestCount, "an expired window restarts the count")
}

func TestRateLimiterBackoff(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Clock: func() time.Time { return now },
	}

	require.NoError(t, limiter.RecordThrottled(context.Background(), ServiceScrape, 30*time.Second))

	allowed, wait, err := limiter.Allow(context.Background(), ServiceScrape)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 30*time.Second, wait)
}

func TestRateLimiterUnlimitedService(t *testing.T) {
	limiter := &RateLimiter{Store: &memoryRateStore{}}
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Record(context.Background(), ServiceFetch))
	}
	allowed, _, err := limiter.Allow(context.Background(), ServiceFetch)
	require.NoError(t, err)
	require.True(t, allowed)

	var nilLimiter *RateLimiter
	allowed, _, err = nilLimiter.Allow(context.Background(), ServiceScrape)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterMarginAndOverrides(t *testing.T) {
	limiter := &RateLimiter{
		Store: &memoryRateStore{},
		Limits: map[string]RateLimit{
			ServiceGrader: {RequestsPerWindow: 10, WindowDuration: time.Minute},
		},
	}

	limiter.ApplySafetyMargin(0.9)
	limit, ok := limiter.limitFor(ServiceGrader)
	require.True(t, ok)
	require.Equal(t, 9, limit.RequestsPerWindow)

	fresh := &RateLimiter{}
	fresh.ApplyOverrides(map[string]int{" Scrape ": 5, "": 3, ServiceGrader: 0})
	limit, ok = fresh.limitFor(ServiceScrape)
	require.True(t, ok)
	require.Equal(t, 5, limit.RequestsPerWindow)
	limit, _ = fresh.limitFor(ServicePageSpeed)
	require.Equal(t, DefaultLimits[ServicePageSpeed], limit)
}

func TestRateLimiterBacksOffUnlimitedService(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{Store: &memoryRateStore{}, Clock: func() time.Time { return now }}

	require.NoError(t, limiter.RecordThrottled(context.Background(), ServiceFetch, 10*time.Second))
	allowed, wait, err := limiter.Allow(context.Background(), ServiceFetch)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 10*time.Second, wait)
}

func TestRecordKeepsBackoffAcrossWindows(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{Store: store, Clock: func() time.Time { return now }}
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, ServiceGrader))
	require.NoError(t, limiter.RecordThrottled(ctx, ServiceGrader, time.Hour))
	now = now.Add(2 * time.Minute)
	require.NoError(t, limiter.Record(ctx, ServiceGrader))

	state := store.state[ServiceGrader]
	require.Equal(t, 1, state.RequestCount)
	require.True(t, now.Equal(state.WindowStart))
	require.NotNil(t, state.BackoffUntil)
	require.NotNil(t, state.Last429At)
}

func TestRateLimitScaled(t *testing.T) {
	limit := RateLimit{RequestsPerWindow: 3, WindowDuration: time.Minute}
	require.Equal(t, 1, limit.scaled(0.1).RequestsPerWindow)
	require.Equal(t, 3, limit.scaled(1).RequestsPerWindow)
	require.Equal(t, 2, limit.scaled(0.9).RequestsPerWindow)
}
