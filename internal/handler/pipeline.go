package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultFeatureTail = 5
	maxFeatureTail     = 500
)

// BacktestRequest overrides the configured strategy. Omitted fields keep the defaults.
type BacktestRequest struct {
	Model          string   `json:"model"`
	ThresholdLong  *float64 `json:"threshold_long"`
	ThresholdShort *float64 `json:"threshold_short"`
	TxCostBps      *float64 `json:"tx_cost_bps"`
	IncludeRows    bool     `json:"include_rows"`
}

type FeatureRow struct {
	Date     string             `json:"date"`
	Close    float64            `json:"close"`
	Target   int                `json:"target"`
	Features map[string]float64 `json:"features"`
}

// Download godoc
// @Summary      Download price history
// @Description  Fetches daily bars from the configured start date and stores them
// @Tags         pipeline
// @Produce      json
// @Param        symbol  path      string  true  "Ticker, e.g. ETH-USD"
// @Success      200     {object}  service.DownloadResult
// @Failure      404     {object}  map[string]string
// @Failure      500     {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/download/{symbol} [post]
func (h *Handler) Download(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.download")
	defer span.End()
	symbol := c.Param("symbol")
	span.SetAttributes(attribute.String("symbol", symbol))

	res, err := h.pipeline.Download(ctx, symbol)
	if err != nil {
		writeError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Features godoc
// @Summary      Feature matrix summary
// @Description  Builds the feature matrix from stored history and returns its newest rows
// @Tags         pipeline
// @Produce      json
// @Param        symbol  path      string  true   "Ticker"
// @Param        tail    query     int     false  "Number of newest rows to return (default 5, max 500)"
// @Success      200     {object}  map[string]interface{}
// @Failure      404     {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/features/{symbol} [get]
func (h *Handler) Features(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.features")
	defer span.End()

	tail := defaultFeatureTail
	if v := c.Query("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be a non-negative integer"})
			return
		}
		tail = min(n, maxFeatureTail)
	}

	res, err := h.pipeline.Featurize(ctx, c.Param("symbol"))
	if err != nil {
		writeError(c, span, err)
		return
	}

	rows := make([]FeatureRow, 0, tail)
	if res.Matrix != nil {
		last := res.Matrix.Tail(tail)
		for i := range last.Rows {
			values := make(map[string]float64, len(last.Columns))
			for j, name := range last.Columns {
				values[name] = last.Rows[i][j]
			}
			rows = append(rows, FeatureRow{
				Date:     last.Dates[i].Format(time.DateOnly),
				Close:    last.Close[i],
				Target:   last.Target[i],
				Features: values,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"summary": res, "rows": rows})
}

// Train godoc
// @Summary      Train a classifier
// @Description  Fits the model on all but the last year of features and stores it as the next version
// @Tags         pipeline
// @Produce      json
// @Param        symbol  path      string  true   "Ticker"
// @Param        model   query     string  false  "logreg, gbc or ensemble"
// @Success      200     {object}  service.TrainReport
// @Failure      400     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/train/{symbol} [post]
func (h *Handler) Train(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.train")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", c.Param("symbol")), attribute.String("model", c.Query("model")))

	rep, err := h.pipeline.Train(ctx, c.Param("symbol"), c.Query("model"))
	if err != nil {
		writeError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Backtest godoc
// @Summary      Backtest the newest model
// @Description  Replays the held-out year with lagged positions and per-change costs
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        symbol   path      string           true   "Ticker"
// @Param        request  body      BacktestRequest  false  "Strategy overrides"
// @Success      200      {object}  service.BacktestReport
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/backtest/{symbol} [post]
func (h *Handler) Backtest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.backtest")
	defer span.End()

	var req BacktestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	params := h.pipeline.DefaultParams()
	if req.ThresholdLong != nil {
		params.ThresholdLong = *req.ThresholdLong
	}
	if req.ThresholdShort != nil {
		params.ThresholdShort = *req.ThresholdShort
	}
	if req.TxCostBps != nil {
		params.TxCostBps = *req.TxCostBps
	}

	rep, err := h.pipeline.Backtest(ctx, c.Param("symbol"), req.Model, params)
	if err != nil {
		writeError(c, span, err)
		return
	}
	if !req.IncludeRows {
		trimmed := *rep
		trimmed.Rows = nil
		rep = &trimmed
	}
	c.JSON(http.StatusOK, rep)
}

// Signal godoc
// @Summary      Latest signal
// @Description  Scores the newest feature row and maps it to long, flat or short
// @Tags         pipeline
// @Produce      json
// @Param        symbol  path      string  true   "Ticker"
// @Param        model   query     string  false  "logreg, gbc or ensemble"
// @Success      200     {object}  domain.Signal
// @Failure      404     {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/signal/{symbol} [get]
func (h *Handler) Signal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.signal")
	defer span.End()

	sig, err := h.pipeline.LatestSignal(ctx, c.Param("symbol"), c.Query("model"))
	if err != nil {
		writeError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}
