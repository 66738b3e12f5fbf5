// Package ratelimit tracks the catalog API's request budget and gates
// requests. It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers
// (and Retry-After on 429 responses) so a browsing session backs off before
// the service starts rejecting it.
package ratelimit

import (
	"time"
)

// Redis keys for shared rate limit state.
const (
	RedisKeyRemaining      = "catalog:rate_limit:remaining"
	RedisKeyResetTimestamp = "catalog:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "catalog:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests while the remaining budget is below it
	// and the window has not reset yet.
	ThresholdCritical = 1

	// ThresholdWarning delays requests while the remaining budget is below it.
	ThresholdWarning = 5

	// ThresholdHealthy marks the budget as healthy at or above it.
	ThresholdHealthy = 20
)

// StateMaxAge is how long a recorded state is trusted after its window
// has ended. Older state is replaced by the default healthy state.
const StateMaxAge = 10 * time.Minute

// defaultRemaining is assumed until the service reports a real budget.
const defaultRemaining = 100

// RateLimitState is the last known request budget of the catalog API.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is the optimistic state used before any headers were seen.
func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  defaultRemaining,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// expired reports whether the state is too old to describe the service:
// its window has ended and it has not been refreshed for StateMaxAge.
func (s *RateLimitState) expired() bool {
	return !s.windowOpen() && s.IsStale(StateMaxAge)
}

// windowOpen reports whether the reported window is still running. Once it
// has reset, the recorded budget no longer applies.
func (s *RateLimitState) windowOpen() bool {
	return time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.windowOpen() && s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be delayed.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.windowOpen() && s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
