package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

const (
	signalStream    = "signals"
	signalStreamMax = 1000
	latestSignalTTL = 24 * time.Hour
)

// Publisher broadcasts new signals: XADD to the "signals" stream, SET
// signal:latest:{symbol} and PUBLISH on pub:signal:{symbol}, in one pipeline.
type Publisher struct {
	client *goredis.Client
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

var _ model.SignalPublisher = (*Publisher)(nil)

// NewPublisher creates a Publisher on client.
func NewPublisher(client *goredis.Client, logger zerolog.Logger) *Publisher {
	l := logger.With().Str("component", "redis-publisher").Logger()
	return &Publisher{client: client, cb: newBreaker("redis-publisher", l), logger: l}
}

// SignalChannel is the pubsub channel for symbol.
func SignalChannel(symbol string) string { return "pub:signal:" + symbol }

// LatestKey holds the most recent signal of symbol.
func LatestKey(symbol string) string { return "signal:latest:" + symbol }

// PublishSignal writes sig to the stream, latest key and pubsub channel.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %d: %w", sig.ID, err)
	}
	payload := string(data)

	_, err = p.cb.Execute(func() (interface{}, error) {
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: signalStream,
			MaxLen: signalStreamMax,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Set(ctx, LatestKey(sig.Symbol), payload, latestSignalTTL)
		pipe.Publish(ctx, SignalChannel(sig.Symbol), payload)
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis: publish signal %d: %w", sig.ID, err)
	}
	return nil
}

// Name identifies the channel in logs and metrics.
func (p *Publisher) Name() string { return "redis" }
