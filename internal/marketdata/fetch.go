// Package marketdata fetches OHLCV series for many symbols and timeframes
// with bounded concurrency and per-call timeouts.
package marketdata

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// SeriesFetcher fetches one series.
type SeriesFetcher interface {
	GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) (model.Series, error)
}

// Options bounds a FetchAll call.
type Options struct {
	Concurrency int           // max in-flight requests, default 5
	Timeout     time.Duration // per request, default 10s
}

// DefaultOptions are 5 workers and a 10s per-call timeout.
var DefaultOptions = Options{Concurrency: 5, Timeout: 10 * time.Second}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultOptions.Concurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions.Timeout
	}
	return o
}

// Failure records one failed (symbol, timeframe) fetch.
type Failure struct {
	Symbol    string
	Timeframe string
	Err       error
}

// Result is the outcome of FetchAll.
type Result struct {
	Data     model.MarketData
	Failures []Failure
}

// FailedSymbols returns the distinct symbols that had at least one failure, sorted.
func (r Result) FailedSymbols() []string {
	seen := make(map[string]struct{}, len(r.Failures))
	var out []string
	for _, f := range r.Failures {
		if _, ok := seen[f.Symbol]; ok {
			continue
		}
		seen[f.Symbol] = struct{}{}
		out = append(out, f.Symbol)
	}
	sort.Strings(out)
	return out
}

// FetchAll fetches every symbol x timeframe combination. A failed or empty
// fetch drops only its symbol from Data; other symbols are unaffected. The
// returned error is non-nil only when ctx itself is done.
func FetchAll(ctx context.Context, f SeriesFetcher, symbols, timeframes []string, limit int, opt Options, logger zerolog.Logger) (Result, error) {
	opt = opt.withDefaults()

	var (
		mu       sync.Mutex
		got      = make(model.MarketData, len(symbols))
		failures []Failure
	)

	g := new(errgroup.Group)
	g.SetLimit(opt.Concurrency)
	for _, sym := range symbols {
		for _, tf := range timeframes {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(ctx, opt.Timeout)
				defer cancel()

				s, err := f.GetOHLCV(callCtx, sym, tf, limit)
				if err == nil && s.Len() == 0 {
					err = errors.New("empty series")
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, Failure{Symbol: sym, Timeframe: tf, Err: err})
					return nil
				}
				s.Symbol, s.Timeframe = sym, tf
				got.Set(s)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Data: got, Failures: failures}
	for _, sym := range res.FailedSymbols() {
		delete(got, sym)
	}
	for _, fl := range failures {
		logger.Warn().
			Str("symbol", fl.Symbol).
			Str("timeframe", fl.Timeframe).
			Err(fl.Err).
			Msg("fetch failed, symbol skipped this cycle")
	}
	return res, nil
}
