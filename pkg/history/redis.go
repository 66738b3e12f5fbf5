package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionTTL is how long an untouched view session is kept.
const SessionTTL = 24 * time.Hour

// LocationKey returns the redis key holding a session's location.
func LocationKey(id string) string {
	return fmt.Sprintf("catalog:view:%s:location", id)
}

// NavChannel returns the pub/sub channel carrying a session's navigations.
func NavChannel(id string) string {
	return fmt.Sprintf("catalog:view:%s:nav", id)
}

// Redis is a view session stored in redis. The location lives under
// LocationKey and can be read by any process; Navigate publishes on
// NavChannel so that a browsing process follows navigations made elsewhere.
type Redis struct {
	client *redis.Client
	id     string
	ctx    context.Context
	logger zerolog.Logger

	mu       sync.RWMutex
	location string
}

// NewSession creates a view session with a fresh id.
func NewSession(ctx context.Context, client *redis.Client, initial string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	r := newRedis(ctx, client, uuid.NewString())
	if err := client.Set(ctx, LocationKey(r.id), trimQuery(initial), SessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("create view session: %w", err)
	}
	r.location = trimQuery(initial)

	r.logger.Info().Msg("View session created")
	return r, nil
}

// OpenSession opens an existing view session.
func OpenSession(ctx context.Context, client *redis.Client, id string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}

	location, err := client.Get(ctx, LocationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open view session: %w", err)
	}

	r := newRedis(ctx, client, id)
	r.location = location
	return r, nil
}

func newRedis(ctx context.Context, client *redis.Client, id string) *Redis {
	return &Redis{
		client: client,
		id:     id,
		ctx:    ctx,
		logger: log.With().Str("component", "history-redis").Str("session", id).Logger(),
	}
}

// ID returns the session id.
func (r *Redis) ID() string {
	return r.id
}

// Location returns the last location seen by this process.
func (r *Redis) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.location
}

// Replace rewrites the stored location without publishing a navigation.
func (r *Redis) Replace(rawQuery string) error {
	rawQuery = trimQuery(rawQuery)
	if err := r.client.Set(r.ctx, LocationKey(r.id), rawQuery, SessionTTL).Err(); err != nil {
		return fmt.Errorf("replace location: %w", err)
	}

	r.mu.Lock()
	r.location = rawQuery
	r.mu.Unlock()
	return nil
}

// Navigate stores a new location and publishes it to every listener of the
// session, including listeners in other processes.
func (r *Redis) Navigate(ctx context.Context, rawQuery string) error {
	rawQuery = trimQuery(rawQuery)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, LocationKey(r.id), rawQuery, SessionTTL)
		pipe.Publish(ctx, NavChannel(r.id), rawQuery)
		return nil
	})
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	r.logger.Debug().Str("location", rawQuery).Msg("Navigation published")
	return nil
}

// Listen subscribes to the session's navigation channel. The subscription is
// confirmed before Listen returns, so a Navigate issued afterwards is seen.
func (r *Redis) Listen(fn func(rawQuery string)) (stop func(), err error) {
	pubsub := r.client.Subscribe(r.ctx, NavChannel(r.id))
	if _, err := pubsub.Receive(r.ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to navigation channel: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			r.mu.Lock()
			r.location = msg.Payload
			r.mu.Unlock()

			r.logger.Debug().Str("location", msg.Payload).Msg("Navigation received")
			fn(msg.Payload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to close navigation subscription")
			}
			<-done
		})
	}, nil
}
