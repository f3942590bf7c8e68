package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"trendr/internal/backtest"
	"trendr/internal/domain"
	"trendr/internal/ml"
	"trendr/internal/ml/features"
	"trendr/internal/ml/registry"
	"trendr/internal/ml/training"
	"trendr/internal/provider"
	"trendr/internal/service"
)

// Pipeline is the part of service.SignalService the API exposes.
type Pipeline interface {
	Download(ctx context.Context, symbol string) (*service.DownloadResult, error)
	Featurize(ctx context.Context, symbol string) (*service.FeatureResult, error)
	Train(ctx context.Context, symbol, model string) (*service.TrainReport, error)
	Backtest(ctx context.Context, symbol, model string, params backtest.Params) (*service.BacktestReport, error)
	LatestSignal(ctx context.Context, symbol, model string) (*domain.Signal, error)
	DefaultParams() backtest.Params
}

type Handler struct {
	tracer   trace.Tracer
	pipeline Pipeline
	info     HealthInfo
}

func New(tracer trace.Tracer, pipeline Pipeline) *Handler {
	return &Handler{tracer: tracer, pipeline: pipeline, info: HealthInfo{Storage: "files"}}
}

func (h *Handler) WithHealthInfo(info HealthInfo) *Handler {
	h.info = info
	return h
}

// RegisterRoutes mounts the API. Everything under /api sits behind auth.
func (h *Handler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	if auth != nil {
		api.Use(auth)
	}
	api.POST("/download/:symbol", h.Download)
	api.GET("/features/:symbol", h.Features)
	api.POST("/train/:symbol", h.Train)
	api.POST("/backtest/:symbol", h.Backtest)
	api.GET("/signal/:symbol", h.Signal)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoPriceHistory),
		errors.Is(err, registry.ErrModelNotFound),
		errors.Is(err, provider.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrInvalidParams),
		errors.Is(err, ml.ErrUnknownModel),
		errors.Is(err, provider.ErrUnsupportedInterval):
		return http.StatusBadRequest
	case errors.Is(err, features.ErrSchemaMismatch):
		return http.StatusConflict
	case errors.Is(err, training.ErrEmptySplit),
		errors.Is(err, domain.ErrInvalidBars):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
