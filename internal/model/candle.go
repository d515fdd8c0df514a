package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Candle is one OHLCV bar as delivered by the exchange.
type Candle struct {
	OpenTime time.Time `json:"open_time"` // bar start (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"` // base asset volume
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the bar closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Series is an ordered (oldest first) run of candles for one symbol and timeframe.
// A Series is treated as immutable once fetched.
type Series struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent bar. The zero Candle is returned for an empty series.
func (s Series) Last() Candle {
	if len(s.Candles) == 0 {
		return Candle{}
	}
	return s.Candles[len(s.Candles)-1]
}

// At returns the bar i positions back from the latest (At(0) == Last()).
func (s Series) At(back int) (Candle, bool) {
	i := len(s.Candles) - 1 - back
	if back < 0 || i < 0 {
		return Candle{}, false
	}
	return s.Candles[i], true
}

func (s Series) Closes() []float64  { return s.column(func(c Candle) float64 { return c.Close }) }
func (s Series) Highs() []float64   { return s.column(func(c Candle) float64 { return c.High }) }
func (s Series) Lows() []float64    { return s.column(func(c Candle) float64 { return c.Low }) }
func (s Series) Volumes() []float64 { return s.column(func(c Candle) float64 { return c.Volume }) }

func (s Series) column(pick func(Candle) float64) []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = pick(c)
	}
	return out
}

// JSON returns the JSON-encoded series (ignoring errors, like Candle payloads on the cache path).
func (s Series) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// MarketData maps symbol -> timeframe -> series for one scan cycle.
type MarketData map[string]map[string]Series

// Set stores a series under its symbol and timeframe.
func (m MarketData) Set(s Series) {
	tfs, ok := m[s.Symbol]
	if !ok {
		tfs = make(map[string]Series)
		m[s.Symbol] = tfs
	}
	tfs[s.Timeframe] = s
}

// Symbols returns the symbols present in the data set.
func (m MarketData) Symbols() []string {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	return out
}

// NormalizeSymbol upper-cases and trims a pair symbol such as " eth/usdc ".
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
