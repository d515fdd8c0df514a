package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vladr1050/crypto-long-signals-bot/internal/marketdata"
	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// deadClient points at a port nothing listens on.
func deadClient(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) GetOHLCV(_ context.Context, symbol, tf string, limit int) (model.Series, error) {
	p.calls.Add(1)
	return model.Series{Symbol: symbol, Timeframe: tf, Candles: []model.Candle{{Close: 1}, {Close: 2}}}, nil
}

func (p *countingProvider) GetMultipleOHLCV(context.Context, []string, []string, int) (model.MarketData, error) {
	return nil, errors.New("not used")
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("ETH/USDC", "15m", 250); got != "ohlcv:15m:ETH/USDC:250" {
		t.Errorf("CacheKey = %q", got)
	}
	if got := SignalChannel("ETH/USDC"); got != "pub:signal:ETH/USDC" {
		t.Errorf("SignalChannel = %q", got)
	}
	if got := LatestKey("SOL/USDC"); got != "signal:latest:SOL/USDC" {
		t.Errorf("LatestKey = %q", got)
	}
}

func TestCacheFallsThroughWhenRedisDown(t *testing.T) {
	inner := &countingProvider{}
	c := NewCache(deadClient(t), inner, time.Minute, marketdata.Options{Concurrency: 2, Timeout: time.Second}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s, err := c.GetOHLCV(ctx, "ETH/USDC", "1h", 250)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if s.Len() != 2 {
			t.Fatalf("call %d: got %d candles", i, s.Len())
		}
	}
	if got := inner.calls.Load(); got != 5 {
		t.Errorf("inner calls = %d, want 5", got)
	}
	if c.BreakerState() != gobreaker.StateOpen.String() {
		t.Errorf("breaker = %s, want open", c.BreakerState())
	}
}

func TestCacheMultipleDelegatesPerSeries(t *testing.T) {
	inner := &countingProvider{}
	c := NewCache(deadClient(t), inner, 0, marketdata.Options{Concurrency: 3, Timeout: time.Second}, zerolog.Nop())
	if c.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %v, want default", c.ttl)
	}

	data, err := c.GetMultipleOHLCV(context.Background(), []string{"A/USDC", "B/USDC"}, []string{"1h", "15m", "5m"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || len(data["A/USDC"]) != 3 {
		t.Fatalf("unexpected data: %v", data.Symbols())
	}
	if got := inner.calls.Load(); got != 6 {
		t.Errorf("inner calls = %d, want 6", got)
	}
}

func TestPublisherReportsFailure(t *testing.T) {
	p := NewPublisher(deadClient(t), zerolog.Nop())
	sig := model.Signal{ID: 7, SignalProposal: model.SignalProposal{Symbol: "ETH/USDC"}}
	if err := p.PublishSignal(context.Background(), sig); err == nil {
		t.Fatal("expected error with redis down")
	}
	if p.Name() != "redis" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestBreakerIgnoresMisses(t *testing.T) {
	cb := newBreaker("test", zerolog.Nop())
	for i := 0; i < 10; i++ {
		cb.Execute(func() (interface{}, error) { return nil, goredis.Nil })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("misses tripped the breaker: %s", cb.State())
	}
}
