package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	tele "gopkg.in/telebot.v3"

	"trendr/internal/app"
	"trendr/internal/bot"
	"trendr/internal/config"
	"trendr/internal/handler"
	"trendr/internal/job"
	"trendr/internal/metrics"
	"trendr/pkg/logger"
	"trendr/pkg/tracing"

	_ "trendr/docs"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initTracerFunc       = tracing.InitTracer
	newAppFunc           = app.New
	startRefreshJobFunc  = func(j *job.RefreshJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc = func(ctx context.Context, token string, log zerolog.Logger, p bot.Pipeline) (*tele.Bot, error) {
		return bot.StartTelegramBot(ctx, token, log, p)
	}
	startMetricsServerFunc = metrics.Serve
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Trendr API
// @version         1.0
// @description     Daily price history, feature engineering, trend classifiers and backtests.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, tracing.Options{
		ServiceName: "trendr",
		Endpoint:    cfg.OTLPEndpoint,
		Enabled:     cfg.TracingEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tracing.Shutdown(tp, 5*time.Second); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	a, err := newAppFunc(ctx, cfg, log, tracer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire pipeline")
	}
	defer a.Close()
	log.Info().
		Str("storage", a.Storage).
		Bool("cache", a.Cached).
		Strs("symbols", cfg.Symbols).
		Str("interval", cfg.Interval).
		Str("model", cfg.Model).
		Msg("pipeline ready")

	refresh := job.NewRefreshJob(tracer, log, a.Service, cfg.Symbols, cfg.Model, cfg.RefreshHourUTC)
	startRefreshJobFunc(refresh, ctx)

	if _, err := startTelegramBotFunc(ctx, cfg.TelegramBotToken, log, a.Service); err != nil {
		log.Error().Err(err).Msg("telegram bot disabled")
	}

	h := handler.New(tracer, a.Service).WithHealthInfo(handler.HealthInfo{Storage: a.Storage, Cache: a.Cached})

	r := newRouterFunc()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("trendr"))
	r.Use(metrics.GinMiddleware())
	h.RegisterRoutes(r, handler.APIKeyAuth(cfg.APIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = startMetricsServerFunc(cfg.MetricsAddr)
	} else {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		_ = shutdownHTTPServerFunc(metricsSrv, shutdownCtx)
	}
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}
