package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const klinesBody = `[
 [1709251200000,"100.0","101.5","99.5","101.0","12.5",1709252099999,"1260.0",42,"6.0","600.0","0"],
 [1709252100000,"101.0","102.0","100.5","101.8","8.25",1709252999999,"840.0",30,"4.0","400.0","0"]
]`

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/v3/klines":
			if q.Get("symbol") != "ETHUSDC" || q.Get("interval") != "15m" || q.Get("limit") != "2" {
				http.Error(w, `{"code":-1100,"msg":"bad params"}`, http.StatusBadRequest)
				return
			}
			w.Write([]byte(klinesBody))
		case "/api/v3/ticker/24hr":
			switch q.Get("symbol") {
			case "ETHUSDC":
				w.Write([]byte(`{"symbol":"ETHUSDC","quoteVolume":"25000000.5"}`))
			case "DUSTUSDC":
				w.Write([]byte(`{"symbol":"DUSTUSDC","quoteVolume":"1200.0"}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			}
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
}

func TestExchangeSymbol(t *testing.T) {
	if got := ExchangeSymbol(" eth/usdc "); got != "ETHUSDC" {
		t.Errorf("ExchangeSymbol = %q", got)
	}
}

func TestGetOHLCV(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	s, err := c.GetOHLCV(context.Background(), "ETH/USDC", "15m", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 || s.Symbol != "ETH/USDC" || s.Timeframe != "15m" {
		t.Fatalf("series = %+v", s)
	}
	first := s.Candles[0]
	if first.Open != 100 || first.High != 101.5 || first.Low != 99.5 || first.Close != 101 || first.Volume != 12.5 {
		t.Errorf("first candle = %+v", first)
	}
	if first.OpenTime.UnixMilli() != 1709251200000 {
		t.Errorf("open time = %v", first.OpenTime)
	}
	if s.Last().Close != 101.8 {
		t.Errorf("last close = %v", s.Last().Close)
	}
}

func TestValidateSymbol(t *testing.T) {
	srv := newTestServer(t, nil)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, MinVolume24h: 1_000_000}, zerolog.Nop())
	ctx := context.Background()

	if ok, err := c.ValidateSymbol(ctx, "ETH/USDC"); err != nil || !ok {
		t.Errorf("ETH/USDC: ok=%v err=%v", ok, err)
	}
	if ok, err := c.ValidateSymbol(ctx, "DUST/USDC"); err != nil || ok {
		t.Errorf("low volume: ok=%v err=%v", ok, err)
	}
	if ok, err := c.ValidateSymbol(ctx, "NOPE/USDC"); err != nil || ok {
		t.Errorf("unknown symbol: ok=%v err=%v", ok, err)
	}
}

func TestBreakerOpensOnFailures(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	var states []int
	c := New(Config{BaseURL: srv.URL, OnBreakerState: func(s int) { states = append(states, s) }}, zerolog.Nop())

	// bad interval -> 400 from the server, counted as an exchange failure
	for i := 0; i < 3; i++ {
		if _, err := c.GetOHLCV(context.Background(), "ETH/USDC", "1d", 2); err == nil {
			t.Fatal("expected error")
		}
	}
	before := hits.Load()
	_, err := c.GetOHLCV(context.Background(), "ETH/USDC", "15m", 2)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if hits.Load() != before {
		t.Error("open breaker must not reach the exchange")
	}
	if c.BreakerState() != "open" || len(states) == 0 || states[len(states)-1] != 2 {
		t.Errorf("state = %s, transitions = %v", c.BreakerState(), states)
	}
}
