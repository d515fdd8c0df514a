package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vladr1050/crypto-long-signals-bot/internal/marketdata"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// DefaultCacheTTL bounds how stale a cached series may be.
const DefaultCacheTTL = 60 * time.Second

// Cache decorates a MarketDataProvider with a short-lived Redis copy of each
// series. Redis errors are logged and the call falls through to the inner
// provider.
type Cache struct {
	client *goredis.Client
	inner  model.MarketDataProvider
	ttl    time.Duration
	fetch  marketdata.Options
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

var _ model.MarketDataProvider = (*Cache)(nil)

// NewCache wraps inner. ttl <= 0 selects DefaultCacheTTL.
func NewCache(client *goredis.Client, inner model.MarketDataProvider, ttl time.Duration, fetch marketdata.Options, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	l := logger.With().Str("component", "ohlcv-cache").Logger()
	return &Cache{
		client: client,
		inner:  inner,
		ttl:    ttl,
		fetch:  fetch,
		cb:     newBreaker("redis-cache", l),
		logger: l,
	}
}

// CacheKey is "ohlcv:{timeframe}:{symbol}:{limit}".
func CacheKey(symbol, timeframe string, limit int) string {
	return "ohlcv:" + timeframe + ":" + symbol + ":" + strconv.Itoa(limit)
}

// GetOHLCV serves from Redis when fresh, else from the inner provider.
func (c *Cache) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error) {
	key := CacheKey(symbol, timeframe, limit)

	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, key).Bytes()
	})
	if err == nil {
		var s model.Series
		if jerr := json.Unmarshal(raw.([]byte), &s); jerr == nil && s.Len() > 0 {
			return s, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, goredis.Nil) {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache read skipped")
	}

	s, err := c.inner.GetOHLCV(ctx, symbol, timeframe, limit)
	if err != nil {
		return model.Series{}, err
	}
	if s.Len() > 0 {
		_, werr := c.cb.Execute(func() (interface{}, error) {
			return nil, c.client.Set(ctx, key, s.JSON(), c.ttl).Err()
		})
		if werr != nil {
			c.logger.Debug().Err(werr).Str("key", key).Msg("cache write skipped")
		}
	}
	return s, nil
}

// GetMultipleOHLCV fans out through the cache with the configured concurrency.
func (c *Cache) GetMultipleOHLCV(ctx context.Context, symbols, timeframes []string, limit int) (model.MarketData, error) {
	res, err := marketdata.FetchAll(ctx, c, symbols, timeframes, limit, c.fetch, c.logger)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// BreakerState returns "closed", "half-open" or "open".
func (c *Cache) BreakerState() string { return c.cb.State().String() }
