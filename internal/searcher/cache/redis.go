package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// RedisClient is the subset of *pkgredis.Client the backend uses.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
}

// Redis stores JSON-encoded result lists under prefix+"query:"+key. Calls go
// through a circuit breaker so an unreachable server fails fast.
type Redis struct {
	client  RedisClient
	prefix  string
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewRedis builds the backend. onState, if non-nil, observes breaker
// transitions.
func NewRedis(client RedisClient, prefix string, ttl time.Duration, onState func(name string, from, to resilience.State)) *Redis {
	return &Redis{
		client: client,
		prefix: prefix + "query:",
		ttl:    ttl,
		breaker: resilience.NewBreaker("redis-cache", resilience.BreakerConfig{
			Threshold: 3,
			Cooldown:  10 * time.Second,
			Ignore:    pkgredis.IsNilError,
			OnChange:  onState,
		}),
	}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Load(ctx context.Context, key string) ([]executor.Match, bool, error) {
	var data string
	err := r.breaker.Do(func() error {
		var err error
		data, err = r.client.Get(ctx, r.prefix+key)
		return err
	})
	if pkgredis.IsNilError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var matches []executor.Match
	if err := json.Unmarshal([]byte(data), &matches); err != nil {
		return nil, false, fmt.Errorf("decoding cached results: %w", err)
	}
	return matches, true, nil
}

func (r *Redis) Store(ctx context.Context, key string, matches []executor.Match) error {
	if matches == nil {
		matches = []executor.Match{}
	}
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return r.breaker.Do(func() error {
		return r.client.Set(ctx, r.prefix+key, data, r.ttl)
	})
}

func (r *Redis) Clear(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.breaker.Do(func() error {
		n, err := r.client.FlushByPattern(ctx, r.prefix+"*")
		deleted = n
		return err
	})
	return deleted, err
}

func (r *Redis) Len(ctx context.Context) (int64, error) {
	var n int64
	err := r.breaker.Do(func() error {
		var err error
		n, err = r.client.CountByPattern(ctx, r.prefix+"*")
		return err
	})
	return n, err
}

// Ping bypasses the breaker so health checks see the server itself.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// BreakerState exposes the circuit state for health reporting.
func (r *Redis) BreakerState() resilience.State {
	return r.breaker.State()
}
