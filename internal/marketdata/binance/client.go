// Package binance implements the market data provider on the Binance spot
// REST API. Calls go through a circuit breaker so a failing exchange is not
// hammered every scan cycle.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vladr1050/crypto-long-signals-bot/internal/marketdata"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// ErrUnknownSymbol is returned when the exchange has no such market.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Config configures the client.
type Config struct {
	APIKey       string
	SecretKey    string
	BaseURL      string // overrides the API endpoint, used by tests
	MinVolume24h float64
	Fetch        marketdata.Options
	// OnBreakerState is called with the new breaker state (0 closed, 1 half-open, 2 open).
	OnBreakerState func(state int)
}

// Client fetches klines and 24h statistics.
type Client struct {
	api    *gobinance.Client
	cb     *gobreaker.CircuitBreaker
	cfg    Config
	logger zerolog.Logger
}

// New creates a Client. Empty keys are fine for public market data.
func New(cfg Config, logger zerolog.Logger) *Client {
	api := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	c := &Client{
		api:    api,
		cfg:    cfg,
		logger: logger.With().Str("component", "binance").Logger(),
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// cancellation and unknown symbols do not count against the exchange
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnknownSymbol)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
			if cfg.OnBreakerState != nil {
				cfg.OnBreakerState(int(to))
			}
		},
	})
	return c
}

// ExchangeSymbol converts "ETH/USDC" to "ETHUSDC".
func ExchangeSymbol(symbol string) string {
	return strings.ReplaceAll(model.NormalizeSymbol(symbol), "/", "")
}

// GetOHLCV returns up to limit klines, oldest first.
func (c *Client) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.api.NewKlinesService().
			Symbol(ExchangeSymbol(symbol)).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return model.Series{}, fmt.Errorf("binance: klines %s %s: %w", symbol, timeframe, err)
	}

	klines := out.([]*gobinance.Kline)
	s := model.Series{Symbol: symbol, Timeframe: timeframe, Candles: make([]model.Candle, 0, len(klines))}
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			return model.Series{}, fmt.Errorf("binance: klines %s %s: %w", symbol, timeframe, err)
		}
		s.Candles = append(s.Candles, c)
	}
	return s, nil
}

// GetMultipleOHLCV fetches every symbol x timeframe with bounded concurrency.
// Symbols with any failed timeframe are omitted.
func (c *Client) GetMultipleOHLCV(ctx context.Context, symbols, timeframes []string, limit int) (model.MarketData, error) {
	res, err := marketdata.FetchAll(ctx, c, symbols, timeframes, limit, c.cfg.Fetch, c.logger)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Volume24h returns the 24h quote-asset volume of a symbol.
func (c *Client) Volume24h(ctx context.Context, symbol string) (float64, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		stats, err := c.api.NewListPriceChangeStatsService().Symbol(ExchangeSymbol(symbol)).Do(ctx)
		if err != nil {
			var apiErr *common.APIError
			if errors.As(err, &apiErr) && apiErr.Code == -1121 {
				return nil, ErrUnknownSymbol
			}
			return nil, err
		}
		return stats, nil
	})
	if err != nil {
		return 0, fmt.Errorf("binance: 24h stats %s: %w", symbol, err)
	}
	stats := out.([]*gobinance.PriceChangeStats)
	if len(stats) == 0 {
		return 0, fmt.Errorf("binance: 24h stats %s: %w", symbol, ErrUnknownSymbol)
	}
	return strconv.ParseFloat(stats[0].QuoteVolume, 64)
}

// ValidateSymbol reports whether symbol is listed and traded above the
// minimum 24h quote volume.
func (c *Client) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	vol, err := c.Volume24h(ctx, symbol)
	if errors.Is(err, ErrUnknownSymbol) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if vol < c.cfg.MinVolume24h {
		c.logger.Info().Str("symbol", symbol).Float64("volume_24h", vol).
			Float64("min", c.cfg.MinVolume24h).Msg("symbol below minimum volume")
		return false, nil
	}
	return true, nil
}

// BreakerState returns the current breaker state name.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func toCandle(k *gobinance.Kline) (model.Candle, error) {
	var (
		c   = model.Candle{OpenTime: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&c.Open, k.Open}, {&c.High, k.High}, {&c.Low, k.Low}, {&c.Close, k.Close}, {&c.Volume, k.Volume},
	} {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return model.Candle{}, fmt.Errorf("parse kline field %q: %w", f.src, err)
		}
	}
	return c, nil
}
