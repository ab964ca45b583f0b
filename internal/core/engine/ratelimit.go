package engine

import (
	"context"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/core"
)

// Service keys used for quota accounting.
const (
	ServiceScrape    = "scrape"
	ServiceFetch     = "fetch"
	ServicePageSpeed = "pagespeed"
	ServiceGrader    = "grader"
)

// Services lists every service key the pipeline accounts for.
var Services = []string{ServiceScrape, ServiceFetch, ServicePageSpeed, ServiceGrader}

// RateLimiter keeps outbound calls to paid services inside their quotas. A
// denied call is treated as a failed call, so the stage falls back instead
// of waiting.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, service string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, service string, state *core.RateLimitState) error
}

// DefaultLimits are conservative per-service quotas. PageSpeed Insights
// allows 400 queries per 100 seconds per project.
var DefaultLimits = map[string]RateLimit{
	ServiceScrape:    {RequestsPerWindow: 60, WindowDuration: time.Minute},
	ServicePageSpeed: {RequestsPerWindow: 240, WindowDuration: time.Minute},
	ServiceGrader:    {RequestsPerWindow: 30, WindowDuration: time.Minute},
}

func (l RateLimit) valid() bool {
	return l.RequestsPerWindow > 0 && l.WindowDuration > 0
}

// expired reports whether the window recorded in s is over at now.
func (l RateLimit) expired(s *core.RateLimitState, now time.Time) bool {
	return s.WindowStart.IsZero() || now.After(s.WindowStart.Add(l.WindowDuration))
}

// scaled keeps margin of the quota, never less than one request.
func (l RateLimit) scaled(margin float64) RateLimit {
	if margin <= 0 || margin >= 1 {
		return l
	}
	l.RequestsPerWindow = max(1, int(math.Floor(float64(l.RequestsPerWindow)*margin)))
	return l
}

// Allow reports whether a call may go out now and, if not, how long until
// it could. A 429 backoff applies to every service; quotas only to limited
// ones.
func (r *RateLimiter) Allow(ctx context.Context, service string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}
	state, now, err := r.load(ctx, service)
	if err != nil {
		return true, 0, err
	}
	if state.BackingOff(now) {
		return false, state.BackoffUntil.Sub(now), nil
	}

	limit, limited := r.limitFor(service)
	if !limited || limit.expired(state, now) || state.RequestCount < limit.RequestsPerWindow {
		return true, 0, nil
	}
	return false, state.WindowStart.Add(limit.WindowDuration).Sub(now), nil
}

// Record counts one outgoing call, opening a new window when the last one
// expired. Backoff fields survive the new window.
func (r *RateLimiter) Record(ctx context.Context, service string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	limit, limited := r.limitFor(service)
	if !limited {
		return nil
	}
	state, now, err := r.load(ctx, service)
	if err != nil {
		return err
	}
	if limit.expired(state, now) {
		state.WindowStart, state.RequestCount = now, 0
	}
	state.RequestCount++
	return r.Store.UpdateRateLimit(ctx, service, state)
}

// RecordThrottled notes a 429 and, given a retry delay, suspends calls
// until it passes.
func (r *RateLimiter) RecordThrottled(ctx context.Context, service string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}
	state, now, err := r.load(ctx, service)
	if err != nil {
		return err
	}
	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}
	return r.Store.UpdateRateLimit(ctx, service, state)
}

// load returns the stored state of service, or a fresh window at now.
func (r *RateLimiter) load(ctx context.Context, service string) (*core.RateLimitState, time.Time, error) {
	now := r.now()
	state, err := r.Store.GetRateLimit(ctx, service)
	if err != nil {
		return nil, now, err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: now}
	}
	return state, now, nil
}

// ApplyOverrides replaces quotas with per-minute request counts. Blank
// services and non-positive counts are ignored.
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}
	if r.Limits == nil {
		r.Limits = maps.Clone(DefaultLimits)
	}
	for service, perMinute := range overrides {
		service = strings.ToLower(strings.TrimSpace(service))
		if service != "" && perMinute > 0 {
			r.Limits[service] = RateLimit{RequestsPerWindow: perMinute, WindowDuration: time.Minute}
		}
	}
}

// ApplySafetyMargin keeps only margin (0, 1] of every quota. Other values
// are ignored.
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r != nil && margin > 0 && margin <= 1 {
		r.Margin = margin
	}
}

// limitFor returns the effective quota of service. Services without one
// are unlimited.
func (r *RateLimiter) limitFor(service string) (RateLimit, bool) {
	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	limit, ok := limits[service]
	if !ok || !limit.valid() {
		return RateLimit{}, false
	}
	return limit.scaled(r.Margin), true
}

func (r *RateLimiter) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
