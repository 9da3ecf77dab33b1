package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pgx-risk-engine/internal/domain"
)

// redisEntry wraps a cached response with its timestamps so a stale
// entry is detectable even if the server-side TTL was lost.
type redisEntry struct {
	Value     []byte    `json:"value"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Redis is the shared backend. Every command runs through a circuit
// breaker; while the breaker is open the cache reports misses and
// drops writes, so a Redis outage costs recomputation, not requests.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger

	statsMu sync.Mutex
	hits    int64
	misses  int64
}

// NewRedis connects to the configured Redis and verifies the connection
// before returning.
func NewRedis(cfg domain.CacheConfig, logger *logrus.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "response-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker state changed")
		},
	})

	return &Redis{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger,
	}, nil
}

// Get returns the cached response for key. Transport failures and open
// breaker both surface as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// A miss is a healthy answer, not a breaker failure.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []byte(val), nil
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.WithError(err).Debug("Cache get failed")
		}
		r.recordMiss()
		return nil, false
	}
	raw, _ := result.([]byte)
	if raw == nil {
		r.recordMiss()
		return nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupted entry: drop it and treat as a miss.
		r.client.Del(ctx, key)
		r.recordMiss()
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		r.client.Del(ctx, key)
		r.recordMiss()
		return nil, false
	}

	r.recordHit()
	return entry.Value, true
}

// Set stores a response under key for the configured TTL. Failures are
// logged and dropped.
func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	entry := redisEntry{
		Value:     value,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(r.ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		r.logger.WithError(err).Debug("Cache entry marshal failed")
		return
	}

	if _, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, key, raw, r.ttl).Err()
	}); err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.WithError(err).Debug("Cache set failed")
		}
	}
}

// Invalidate removes a single entry.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if _, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, key).Err()
	}); err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.WithError(err).Debug("Cache invalidate failed")
		}
	}
}

// Stats reports counters since construction. Degraded is set while the
// breaker is not closed.
func (r *Redis) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return Stats{
		Backend:  "redis",
		Hits:     r.hits,
		Misses:   r.misses,
		Degraded: r.breaker.State() != gobreaker.StateClosed,
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) recordHit() {
	r.statsMu.Lock()
	r.hits++
	r.statsMu.Unlock()
}

func (r *Redis) recordMiss() {
	r.statsMu.Lock()
	r.misses++
	r.statsMu.Unlock()
}
