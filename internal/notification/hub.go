package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Envelope is the frame written to websocket clients.
type Envelope struct {
	Type    string       `json:"type"`
	Seq     int64        `json:"seq"`
	TS      string       `json:"ts"`
	Initial bool         `json:"initial,omitempty"`
	Data    model.Signal `json:"data"`
}

type latestEntry struct {
	sig model.Signal
	ts  time.Time
	seq int64
}

// Hub manages websocket clients of the live signal feed. It keeps the most
// recent signal per symbol so a (re)connecting client can catch up.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64
	logger  zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		logger:  logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Run broadcasts every signal read from in. Blocks until ctx is cancelled or
// in is closed.
func (h *Hub) Run(ctx context.Context, in <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(sig)
		}
	}
}

// Broadcast records sig as the latest for its symbol and sends it to all clients.
// Slow clients miss the frame rather than block the hub.
func (h *Hub) Broadcast(sig model.Signal) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.latest[sig.Symbol] = latestEntry{sig: sig, ts: now, seq: seq}
	h.mu.Unlock()

	frame, err := json.Marshal(Envelope{Type: "signal", Seq: seq, TS: now.Format(time.RFC3339Nano), Data: sig})
	if err != nil {
		h.logger.Error().Err(err).Int64("signal_id", sig.ID).Msg("marshal envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn().Int64("signal_id", sig.ID).Msg("ws client buffer full, dropping frame")
		}
	}
}

// ServeWS upgrades the request and registers the client. The optional
// last_ts query parameter (RFC3339) limits the catch-up frames to newer ones.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	c := &Client{conn: conn, send: make(chan []byte, 256), hub: h}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", count).Msg("ws client connected")

	go c.sendInitialState(r.URL.Query().Get("last_ts"))
	go c.writePump()
	go c.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the latest broadcast signal per symbol, ordered by symbol.
func (h *Hub) Latest() []model.Signal {
	h.mu.RLock()
	out := make([]model.Signal, 0, len(h.latest))
	for _, e := range h.latest {
		out = append(out, e.sig)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
