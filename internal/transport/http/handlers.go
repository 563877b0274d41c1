package guidedhttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rudder/internal/analysis/regime"
	"rudder/internal/board"
	"rudder/internal/market"
	"rudder/internal/trade"
)

// Handler binds the engine operations onto the HTTP API.
type Handler struct {
	Manager    *trade.Manager
	Reconciler *trade.Reconciler
	Ranker     *board.Ranker
	Detector   *regime.Detector
	Candles    market.CandleSource
}

// Register mounts the routes under group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("/start", h.handleStart)
	group.POST("/adopt", h.handleAdopt)
	group.POST("/partial-exit", h.handlePartialExit)
	group.GET("/board", h.handleBoard)
	group.POST("/reconcile", h.handleReconcile)
	group.GET("/regime", h.handleRegime)
}

type startRequest struct {
	Market    string          `json:"market"`
	AmountKRW decimal.Decimal `json:"amount_krw"`
}

func (h *Handler) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	res, err := h.Manager.StartAutoTrading(c.Request.Context(), trade.StartRequest{
		Market:    req.Market,
		AmountKRW: req.AmountKRW,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type adoptRequest struct {
	Market      string `json:"market"`
	Mode        string `json:"mode"`
	Interval    string `json:"interval"`
	EntrySource string `json:"entry_source"`
	Notes       string `json:"notes"`
}

func (h *Handler) handleAdopt(c *gin.Context) {
	var req adoptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	res, err := h.Manager.AdoptExternalPosition(c.Request.Context(), trade.AdoptRequest{
		Market:      req.Market,
		Mode:        req.Mode,
		Interval:    req.Interval,
		EntrySource: req.EntrySource,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type partialExitRequest struct {
	Market string          `json:"market"`
	Ratio  decimal.Decimal `json:"ratio"`
}

func (h *Handler) handlePartialExit(c *gin.Context) {
	var req partialExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	summary, err := h.Manager.PartialTakeProfit(c.Request.Context(), req.Market, req.Ratio)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) handleBoard(c *gin.Context) {
	req := board.RankRequest{
		SortBy:        board.SortKey(c.DefaultQuery("sort_by", string(board.SortByTurnover))),
		SortDirection: board.SortDirection(c.DefaultQuery("sort_direction", string(board.SortDesc))),
		Interval:      c.DefaultQuery("interval", "1h"),
		Mode:          board.Mode(c.DefaultQuery("mode", string(board.ModeSwing))),
	}
	entries, err := h.Ranker.Rank(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type reconcileRequest struct {
	WindowDays int  `json:"window_days"`
	DryRun     bool `json:"dry_run"`
}

func (h *Handler) handleReconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	summary, err := h.Reconciler.Reconcile(c.Request.Context(), req.WindowDays, req.DryRun)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) handleRegime(c *gin.Context) {
	mkt := c.Query("market")
	if mkt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "market is required"})
		return
	}
	interval := c.DefaultQuery("interval", "1h")
	count, _ := strconv.Atoi(c.DefaultQuery("count", "120"))
	candles, err := h.Candles.GetCandles(c.Request.Context(), mkt, interval, count)
	if err != nil {
		writeError(c, err)
		return
	}
	analysis, err := h.Detector.Detect(candles)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// writeError maps the engine error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var invalid *trade.InvalidArgumentError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Reason, "field": invalid.Field})
		return
	}
	var insufficient *regime.InsufficientDataError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": insufficient.Error()})
		return
	}
	var rejected *trade.OrderRejectedError
	if errors.As(err, &rejected) {
		c.JSON(http.StatusBadGateway, gin.H{"error": rejected.Error()})
		return
	}
	if errors.Is(err, trade.ErrUpstreamUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
