//go:build integration

package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != defaultRemaining {
		t.Errorf("Default Remaining = %d, want %d", state.Remaining, defaultRemaining)
	}

	headers := http.Header{}
	headers.Set(HeaderRemaining, "75")
	headers.Set(HeaderReset, "120")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if !state.IsHealthy {
		t.Error("State with 75 remaining should be healthy")
	}

	expected := 120 * time.Second
	actual := state.TimeUntilReset()
	tolerance := 5 * time.Second
	if actual < expected-tolerance || actual > expected+tolerance {
		t.Errorf("TimeUntilReset = %v, want approximately %v", actual, expected)
	}
}

func TestTracker_Integration_SharedAcrossTrackers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	writer := NewTracker(redisClient, logger)
	reader := NewTracker(redisClient, logger)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRetryAfter, "60")
	if err := writer.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := reader.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("ShouldAllowRequest() = true, want false after another tracker saw Retry-After")
	}
}

func TestTracker_Integration_ExpiredState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)
	ctx := context.Background()

	lastUpdate, err := json.Marshal(time.Now().Add(-2 * StateMaxAge))
	if err != nil {
		t.Fatalf("marshal last update: %v", err)
	}
	pipe := redisClient.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, 0, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, time.Now().Add(-StateMaxAge).Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdate, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != defaultRemaining || !state.IsHealthy {
		t.Errorf("state = %+v, want the default healthy state", state)
	}
}
