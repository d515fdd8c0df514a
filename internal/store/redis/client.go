// Package redis holds the Redis-backed OHLCV cache and the signal publisher.
// Both sit behind a gobreaker circuit so an unreachable Redis degrades to
// direct exchange reads and skipped broadcasts instead of stalling a scan.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("component", "redis").Str("addr", cfg.Addr).Msg("connected")
	return client, nil
}

// newBreaker trips after 3+ requests at a 60% failure ratio and probes again after 30s.
// A cache miss (redis.Nil) and caller cancellation are not failures.
func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			ratio := float64(c.TotalFailures) / float64(c.Requests)
			return c.Requests >= 3 && ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
