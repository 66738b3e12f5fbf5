package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	catalogRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_rate_limit_remaining",
		Help: "Requests remaining in the current catalog API rate limit window",
	})

	catalogRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the budget was exhausted",
	})

	catalogRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the budget was low",
	})
)

// Rate limit headers sent by the catalog API.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultThrottleDelay is how long a request waits in the warning range.
const DefaultThrottleDelay = 1 * time.Second

// Tracker monitors the catalog API rate limit and gates requests. With a
// redis client the state is shared by every process using the same redis;
// without one it is kept in memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu            sync.Mutex
	throttleDelay time.Duration
	memory        *RateLimitState
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay changes the delay applied in the warning range.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.mu.Lock()
	t.throttleDelay = d
	t.mu.Unlock()
}

func (t *Tracker) delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.throttleDelay
}

// GetState returns the current rate limit state, or a default healthy state
// if nothing has been recorded yet or the recorded state has expired.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.memory == nil || t.memory.expired() {
			return defaultState(), nil
		}
		state := *t.memory
		return &state, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	var lastUpdate time.Time
	if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &RateLimitState{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	if state.expired() {
		t.logger.Debug().
			Time("last_update", lastUpdate).
			Msg("Rate limit state in Redis expired, returning default healthy state")
		return defaultState(), nil
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders records the budget reported in response headers.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := time.Now()
	state := &RateLimitState{LastUpdate: now}

	remainStr := headers.Get(HeaderRemaining)
	retryAfter := headers.Get(HeaderRetryAfter)

	switch {
	case remainStr != "":
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}

		resetStr := headers.Get(HeaderReset)
		if resetStr == "" {
			return fmt.Errorf("%s header missing", HeaderReset)
		}
		resetSeconds, err := strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}

		state.Remaining = remain
		state.ResetAt = now.Add(time.Duration(resetSeconds) * time.Second)

	case retryAfter != "":
		seconds, err := strconv.Atoi(retryAfter)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
		}
		state.Remaining = 0
		state.ResetAt = now.Add(time.Duration(seconds) * time.Second)

	default:
		return nil
	}
	state.UpdateHealth()

	if err := t.store(ctx, state); err != nil {
		return err
	}

	catalogRateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Catalog rate limit exhausted - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Catalog rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("Catalog rate limit state updated")
	}

	return nil
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.memory = state
		t.mu.Unlock()
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest reports whether a request may be sent. In the warning
// range it waits for the throttle delay first, returning early with the
// context's error if ctx ends.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Catalog rate limit exhausted - blocking request")
		catalogRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if delay := t.delay(); state.NeedsThrottling() && delay > 0 {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", delay).
			Msg("Catalog rate limit low - throttling request")
		catalogRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
