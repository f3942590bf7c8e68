package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendr_downloads_total", Help: "Price history downloads by outcome"},
		[]string{"symbol", "status"},
	)
	BarsStored = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "trendr_bars_stored", Help: "Bars in the latest download per symbol"},
		[]string{"symbol", "interval"},
	)
	TrainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendr_trainings_total", Help: "Model fits by model and outcome"},
		[]string{"model", "status"},
	)
	TestAUC = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "trendr_model_test_auc", Help: "Held-out ROC AUC of the latest fit"},
		[]string{"symbol", "model"},
	)
	BacktestSharpe = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "trendr_backtest_sharpe", Help: "Sharpe ratio of the latest backtest"},
		[]string{"symbol"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendr_http_requests_total", Help: "API requests by route and status"},
		[]string{"route", "method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendr_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"route", "method"},
	)
)

func init() {
	prometheus.MustRegister(DownloadsTotal, BarsStored, TrainingsTotal, TestAUC, BacktestSharpe, HTTPRequests, HTTPDuration)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone /metrics listener.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// GinMiddleware records request counts and latency labelled by the route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
