// Package api exposes the control HTTP API: scanner status and forced scans,
// strategy mode, signal lifecycle actions, pairs, users and the live signal
// stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
	"github.com/vladr1050/crypto-long-signals-bot/internal/scanner"
)

// Scanner is the part of *scanner.Scanner the API drives.
type Scanner interface {
	Status(ctx context.Context) scanner.Status
	Statistics(ctx context.Context) (scanner.Statistics, error)
	ForceScan(ctx context.Context) (scanner.CycleReport, error)
	Renotify(ctx context.Context, id int64) (int, error)
	Mode(ctx context.Context) (model.StrategyMode, error)
	SetMode(ctx context.Context, mode string) (model.StrategyMode, error)
}

// Deps are the handlers' collaborators. Validator and Stream are optional.
type Deps struct {
	Repo           model.Repository
	Scanner        Scanner
	Validator      model.SymbolValidator
	Stream         http.HandlerFunc
	DefaultRiskPct float64
	Now            func() time.Time
}

// Server is the gin-backed control API.
type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds the router. Call Start to listen on addr.
func NewServer(addr string, deps Deps, logger zerolog.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultRiskPct <= 0 {
		deps.DefaultRiskPct = 0.7
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		engine: gin.New(),
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), cors())
	s.routes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	v1 := s.engine.Group("/api/v1")

	v1.GET("/health", s.health)

	v1.GET("/scanner/status", s.scannerStatus)
	v1.GET("/scanner/statistics", s.scannerStatistics)
	v1.POST("/scanner/scan", s.forceScan)

	v1.GET("/settings/mode", s.getMode)
	v1.PUT("/settings/mode", s.setMode)

	v1.GET("/signals", s.listSignals)
	v1.GET("/signals/:id", s.getSignal)
	v1.POST("/signals/:id/cancel", s.transition(model.StatusCancelled))
	v1.POST("/signals/:id/trigger", s.transition(model.StatusTriggered))
	v1.POST("/signals/:id/snooze", s.snoozeSignal)
	v1.POST("/signals/:id/notify", s.notifySignal)

	v1.GET("/pairs", s.listPairs)
	v1.POST("/pairs", s.addPair)
	v1.POST("/pairs/:symbol/toggle", s.togglePair)

	v1.PUT("/users/:id", s.updateUser)

	if s.deps.Stream != nil {
		v1.GET("/stream", gin.WrapF(s.deps.Stream))
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("api listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("api server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// storeError maps repository and lifecycle errors to HTTP statuses.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrLiveSignalExists),
		errors.Is(err, scanner.ErrNotLive),
		errors.Is(err, scanner.ErrSnoozed):
		errorResponse(c, http.StatusConflict, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
