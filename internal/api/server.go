// Package api exposes a read-only HTTP surface over the loop's state plus an
// on-demand backtest endpoint. It never mutates trading state.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perp-trader/internal/backtest"
	"perp-trader/internal/indicators"
	"perp-trader/internal/market"
	"perp-trader/internal/order"
	"perp-trader/internal/signal"
	"perp-trader/internal/state"
	"perp-trader/pkg/config"
)

// Server bundles the HTTP dependencies.
type Server struct {
	cfg     config.TradingConfig
	store   *state.Store
	orders  *order.Manager
	feed    *market.Feed
	metrics http.Handler
	secret  string
	started time.Time
}

// NewServer builds the API server. metrics may be nil.
func NewServer(cfg config.TradingConfig, store *state.Store, orders *order.Manager, feed *market.Feed, metrics http.Handler, jwtSecret string) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		orders:  orders,
		feed:    feed,
		metrics: metrics,
		secret:  jwtSecret,
		started: time.Now(),
	}
}

// Router assembles the route tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	authed := r.Group("/api", AuthMiddleware(s.secret))
	authed.GET("/status", s.handleStatus)
	authed.GET("/positions", s.handlePositions)
	authed.GET("/pending", s.handlePending)
	authed.GET("/signals", s.handleSignals)
	authed.GET("/config", s.handleConfig)
	authed.POST("/backtest", s.handleBacktest)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	halted, _ := s.store.Halted()
	status := http.StatusOK
	if halted {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{false: "ok", true: "halted"}[halted],
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	halted, msg := s.store.Halted()
	margin := s.store.Margin()
	c.JSON(http.StatusOK, gin.H{
		"tick":            s.store.Tick(),
		"halted":          halted,
		"halt_reason":     msg,
		"account_value":   margin.AccountValue,
		"margin_used":     margin.TotalMarginUsed,
		"pending_margin":  margin.PendingMarginEst,
		"effective_ratio": margin.EffectiveRatio(),
		"open_positions":  len(s.store.Positions()),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.store.Positions()})
}

func (s *Server) handlePending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.orders.Pending()})
}

func (s *Server) handleSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.store.Signals()})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg)
}

type backtestRequest struct {
	Symbol         string    `json:"symbol" binding:"required"`
	Closes         []float64 `json:"closes"`
	Interval       string    `json:"interval"`
	Limit          int       `json:"limit"`
	InitialBalance float64   `json:"initial_balance"`
	Leverage       int       `json:"leverage"`
	Threshold      float64   `json:"threshold"`
	Policy         string    `json:"policy"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	closes := req.Closes
	if len(closes) == 0 {
		interval := req.Interval
		if interval == "" {
			interval = s.cfg.Interval
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 500
		}
		fetched, err := s.feed.GetHistoricalCloses(c.Request.Context(), req.Symbol, interval, limit)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		closes = fetched
	}

	if req.InitialBalance <= 0 {
		req.InitialBalance = 10000
	}
	if req.Leverage <= 0 {
		req.Leverage = s.cfg.Leverage
	}
	if req.Threshold <= 0 {
		req.Threshold = s.cfg.SignalThreshold
	}
	policy := signal.Policy(req.Policy)
	if req.Policy == "" {
		policy = signal.Policy(s.cfg.Policy)
	}

	ind := indicators.DefaultConfig()
	ind.EnableMA = s.cfg.EnableMA
	ind.EnableRSI = s.cfg.EnableRSI
	ind.EnableMACD = s.cfg.EnableMACD
	ind.EnableBollinger = s.cfg.EnableBollinger

	report, err := backtest.Run(backtest.Config{
		Symbol:         req.Symbol,
		Closes:         closes,
		InitialBalance: req.InitialBalance,
		Leverage:       req.Leverage,
		Threshold:      req.Threshold,
		Policy:         policy,
		Weights:        s.cfg.IndicatorWeights(),
		Indicators:     ind,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
