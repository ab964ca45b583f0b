package core

import "time"

// RateLimitState is the persisted quota window of one outbound service.
// BackoffUntil is set from the Retry-After of the last 429.
type RateLimitState struct {
	RequestCount int        `json:"request_count"`
	WindowStart  time.Time  `json:"window_start"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty"`
}

// BackingOff reports whether calls are still suspended at now.
func (s RateLimitState) BackingOff(now time.Time) bool {
	return s.BackoffUntil != nil && now.Before(*s.BackoffUntil)
}
