// Package bus fans newly created signals out to in-process subscribers
// such as the websocket hub.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

// ErrFull is returned by PublishSignal when the input queue is full.
var ErrFull = errors.New("bus: input queue full")

// FanOut broadcasts signals from a single input queue to N output channels.
// If an output channel is full, the signal is dropped for that consumer so a
// slow consumer cannot block the scanner.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Signal
	bufSize int
	input   chan model.Signal
	logger  zerolog.Logger

	// OnDrop is called when a signal is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

var _ model.SignalPublisher = (*FanOut)(nil)

// New creates a FanOut with the given buffer size for the input queue and
// each output channel.
func New(bufferSize int, logger zerolog.Logger) *FanOut {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &FanOut{
		bufSize: bufferSize,
		input:   make(chan model.Signal, bufferSize),
		logger:  logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan model.Signal {
	ch := make(chan model.Signal, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// PublishSignal queues sig without blocking.
func (f *FanOut) PublishSignal(ctx context.Context, sig model.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case f.input <- sig:
		return nil
	default:
		return ErrFull
	}
}

// Name identifies the channel in logs and metrics.
func (f *FanOut) Name() string { return "bus" }

// Run fans queued signals out to all subscribers and closes them on return.
// Blocks until ctx is cancelled.
func (f *FanOut) Run(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-f.input:
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- sig:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						f.logger.Warn().Int("subscriber", i).Str("symbol", sig.Symbol).
							Int64("signal_id", sig.ID).Msg("output channel full, dropping signal")
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

// ChannelStats returns the saturation of every subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
