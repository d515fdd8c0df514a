// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Scan results used as the result label of signals_scans_total.
const (
	ScanOK      = "ok"
	ScanError   = "error"
	ScanSkipped = "skipped"
)

// Metrics holds all Prometheus metrics of the scanner.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal    *prometheus.CounterVec // labels: result
	ScanDuration  prometheus.Histogram
	Generated     *prometheus.CounterVec // labels: mode, grade
	FetchFailures prometheus.Counter
	Duplicates    prometheus.Counter
	Notifications *prometheus.CounterVec // labels: channel, result
	Expired       prometheus.Counter
	LiveSignals   prometheus.Gauge

	// Exchange circuit breaker: 0=closed, 1=half-open, 2=open
	ExchangeBreakerState prometheus.Gauge

	// Backpressure on the in-process signal bus
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
}

// NewMetrics creates the metrics on a private registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_scans_total",
			Help: "Scan cycles by result",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signals_scan_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		Generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_generated_total",
			Help: "Persisted signals by strategy mode and grade",
		}, []string{"mode", "grade"}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_fetch_failures_total",
			Help: "Symbols dropped from a cycle because a timeframe fetch failed",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_duplicates_total",
			Help: "Proposals rejected because the symbol already had a live signal",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_notifications_total",
			Help: "Signal deliveries by channel and result",
		}, []string{"channel", "result"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_expired_total",
			Help: "Live signals moved to expired",
		}),
		LiveSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_live",
			Help: "Pending and active signals",
		}),
		ExchangeBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_exchange_breaker_state",
			Help: "Exchange circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_fanout_drops_total",
			Help: "Signals dropped for a slow in-process subscriber",
		}, []string{"subscriber"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal, m.ScanDuration, m.Generated, m.FetchFailures, m.Duplicates,
		m.Notifications, m.Expired, m.LiveSignals, m.ExchangeBreakerState, m.FanoutDropsTotal,
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records one cycle.
func (m *Metrics) ObserveScan(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(result).Inc()
	if result != ScanSkipped {
		m.ScanDuration.Observe(d.Seconds())
	}
}

// ObserveNotification records one delivery attempt.
func (m *Metrics) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RepositoryOK   bool      `json:"repository_ok"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	LastScanAt     time.Time `json:"last_scan_at"`
	ScanInterval   time.Duration

	// Liveness probe results
	RepositoryLatencyMs float64   `json:"repository_latency_ms"`
	RedisLatencyMs      float64   `json:"redis_latency_ms"`
	LastCheckAt         time.Time `json:"last_check_at"`
	StartedAt           time.Time `json:"started_at"`
}

// Pinger is anything with a context-aware connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthStatus returns a default health status. scanInterval is used to
// flag a stale scanner (no scan for 3 intervals).
func NewHealthStatus(scanInterval time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		ScanInterval: scanInterval,
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastScanAt(t time.Time) {
	h.mu.Lock()
	h.LastScanAt = t
	h.mu.Unlock()
}

// CheckRepository pings the repository and records latency + health.
func (h *HealthStatus) CheckRepository(ctx context.Context, repo Pinger) {
	start := time.Now()
	err := repo.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.RepositoryOK = err == nil
	h.RepositoryLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes immediately and then every interval.
// rdb may be nil when Redis is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, repo Pinger, rdb *goredis.Client, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if repo != nil {
			h.CheckRepository(probeCtx, repo)
		}
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	scanAge := ""
	stale := false
	if !h.LastScanAt.IsZero() {
		age := time.Since(h.LastScanAt)
		scanAge = age.Round(time.Second).String()
		stale = h.ScanInterval > 0 && age > 3*h.ScanInterval
	}

	if stale || (h.RedisEnabled && !h.RedisConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RepositoryOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastScan := ""
	if !h.LastScanAt.IsZero() {
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}

	status := struct {
		Status              string  `json:"status"`
		Uptime              string  `json:"uptime"`
		RepositoryOK        bool    `json:"repository_ok"`
		RepositoryLatencyMs float64 `json:"repository_latency_ms"`
		RedisEnabled        bool    `json:"redis_enabled"`
		RedisConnected      bool    `json:"redis_connected"`
		RedisLatencyMs      float64 `json:"redis_latency_ms"`
		LastScanAt          string  `json:"last_scan_at"`
		ScanAge             string  `json:"scan_age"`
		LastCheckAt         string  `json:"last_check_at"`
	}{
		Status:              overallStatus,
		Uptime:              time.Since(h.StartedAt).Round(time.Second).String(),
		RepositoryOK:        h.RepositoryOK,
		RepositoryLatencyMs: h.RepositoryLatencyMs,
		RedisEnabled:        h.RedisEnabled,
		RedisConnected:      h.RedisConnected,
		RedisLatencyMs:      h.RedisLatencyMs,
		LastScanAt:          lastScan,
		ScanAge:             scanAge,
		LastCheckAt:         h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("server listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
