package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladr1050/crypto-long-signals-bot/internal/model"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

func (s *Server) health(c *gin.Context) {
	if err := s.deps.Repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) scannerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scanner.Status(c.Request.Context()))
}

func (s *Server) scannerStatistics(c *gin.Context) {
	st, err := s.deps.Scanner.Statistics(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) forceScan(c *gin.Context) {
	rep, err := s.deps.Scanner.ForceScan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) getMode(c *gin.Context) {
	m, err := s.deps.Scanner.Mode(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": m})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.deps.Scanner.SetMode(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Mode)))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": m})
}

func (s *Server) listSignals(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		sigs []model.Signal
		err  error
	)
	if live, _ := strconv.ParseBool(c.Query("live")); live {
		sigs, err = s.deps.Repo.LiveSignals(ctx)
	} else {
		limit := defaultSignalLimit
		if v := c.Query("limit"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil || n <= 0 {
				errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxSignalLimit)
		}
		sigs, err = s.deps.Repo.RecentSignals(ctx, limit)
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if sigs == nil {
		sigs = []model.Signal{}
	}
	c.JSON(http.StatusOK, sigs)
}

func signalID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errorResponse(c, http.StatusBadRequest, "invalid signal id")
		return 0, false
	}
	return id, true
}

func (s *Server) getSignal(c *gin.Context) {
	id, ok := signalID(c)
	if !ok {
		return
	}
	sig, err := s.deps.Repo.GetSignal(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// transition applies a manual lifecycle change and returns the updated signal.
func (s *Server) transition(to model.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := signalID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := s.deps.Repo.UpdateStatus(ctx, id, to); err != nil {
			storeError(c, err)
			return
		}
		sig, err := s.deps.Repo.GetSignal(ctx, id)
		if err != nil {
			storeError(c, err)
			return
		}
		s.logger.Info().Int64("signal_id", id).Str("status", string(to)).Msg("signal status changed")
		c.JSON(http.StatusOK, sig)
	}
}

type snoozeRequest struct {
	Minutes int `json:"minutes" binding:"required,gt=0,lte=10080"`
}

// snoozeSignal suppresses notifications for a live signal. Status and expiry
// are untouched.
func (s *Server) snoozeSignal(c *gin.Context) {
	id, ok := signalID(c)
	if !ok {
		return
	}
	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	sig, err := s.deps.Repo.GetSignal(ctx, id)
	if err != nil {
		storeError(c, err)
		return
	}
	if !sig.Status.Live() {
		errorResponse(c, http.StatusConflict, "only pending or active signals can be snoozed")
		return
	}
	until := s.deps.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute).Truncate(time.Second)
	if err := s.deps.Repo.Snooze(ctx, id, until); err != nil {
		storeError(c, err)
		return
	}
	sig.SnoozeUntil = &until
	c.JSON(http.StatusOK, sig)
}

func (s *Server) notifySignal(c *gin.Context) {
	id, ok := signalID(c)
	if !ok {
		return
	}
	n, err := s.deps.Scanner.Renotify(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal_id": id, "delivered": n})
}

func (s *Server) listPairs(c *gin.Context) {
	pairs, err := s.deps.Repo.ListPairs(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if pairs == nil {
		pairs = []model.Pair{}
	}
	c.JSON(http.StatusOK, pairs)
}

type pairRequest struct {
	Symbol string `json:"symbol" binding:"required,contains=/"`
}

// addPair enables a symbol after checking it is listed and liquid enough.
func (s *Server) addPair(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	symbol := model.NormalizeSymbol(req.Symbol)

	if s.deps.Validator != nil {
		ok, err := s.deps.Validator.ValidateSymbol(ctx, symbol)
		if err != nil {
			errorResponse(c, http.StatusBadGateway, err.Error())
			return
		}
		if !ok {
			errorResponse(c, http.StatusUnprocessableEntity, symbol+" is not listed or below the minimum 24h volume")
			return
		}
	}
	if err := s.deps.Repo.AddPair(ctx, symbol); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Str("symbol", symbol).Msg("pair added")
	c.JSON(http.StatusCreated, model.Pair{Symbol: symbol, Enabled: true, CreatedAt: s.deps.Now().UTC()})
}

// pathSymbol turns "eth-usdc" from a URL path into "ETH/USDC".
func pathSymbol(p string) string {
	return model.NormalizeSymbol(strings.ReplaceAll(p, "-", "/"))
}

func (s *Server) togglePair(c *gin.Context) {
	symbol := pathSymbol(c.Param("symbol"))
	enabled, err := s.deps.Repo.TogglePair(c.Request.Context(), symbol)
	if err != nil {
		storeError(c, err)
		return
	}
	s.logger.Info().Str("symbol", symbol).Bool("enabled", enabled).Msg("pair toggled")
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "enabled": enabled})
}

type userRequest struct {
	RiskPct        *float64 `json:"risk_pct" binding:"omitempty,gt=0,lte=5"`
	SignalsEnabled *bool    `json:"signals_enabled"`
}

// updateUser creates the user on first use and applies the given fields.
func (s *Server) updateUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid user id")
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	u, err := s.deps.Repo.GetOrCreateUser(ctx, id, s.deps.DefaultRiskPct)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if req.RiskPct != nil {
		u.RiskPct = *req.RiskPct
	}
	if req.SignalsEnabled != nil {
		u.SignalsEnabled = *req.SignalsEnabled
	}
	if err := s.deps.Repo.UpdateUser(ctx, u); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
