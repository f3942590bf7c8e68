package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trendr/internal/service"
)

const defaultConcurrency = 2

type Refresher interface {
	Download(ctx context.Context, symbol string) (*service.DownloadResult, error)
	Train(ctx context.Context, symbol, model string) (*service.TrainReport, error)
}

// RefreshResult is the outcome of one symbol's download and retrain.
type RefreshResult struct {
	Symbol  string
	Bars    int
	Version int
	AUCTest float64
	Err     error
}

// RefreshJob re-downloads history and retrains the configured model for every symbol
// once a day at a fixed UTC hour.
type RefreshJob struct {
	tracer      trace.Tracer
	logger      zerolog.Logger
	refresher   Refresher
	symbols     []string
	model       string
	hour        int
	concurrency int
	now         func() time.Time
}

func NewRefreshJob(tracer trace.Tracer, logger zerolog.Logger, refresher Refresher, symbols []string, model string, hourUTC int) *RefreshJob {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 0
	}
	return &RefreshJob{
		tracer:      tracer,
		logger:      logger.With().Str("component", "refresh-job").Logger(),
		refresher:   refresher,
		symbols:     symbols,
		model:       model,
		hour:        hourUTC,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
}

func (j *RefreshJob) Start(ctx context.Context) {
	if j.refresher == nil || len(j.symbols) == 0 {
		j.logger.Info().Msg("refresh job disabled: nothing to refresh")
		<-ctx.Done()
		return
	}
	for {
		next := nextRunUTC(j.now().UTC(), j.hour)
		wait := next.Sub(j.now())
		if wait < time.Second {
			wait = time.Second
		}
		j.logger.Debug().Time("next_run", next).Msg("refresh scheduled")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every symbol. One symbol failing does not stop the others.
func (j *RefreshJob) RunOnce(ctx context.Context) []RefreshResult {
	ctx, span := j.tracer.Start(ctx, "refresh-job.run-once")
	defer span.End()
	span.SetAttributes(attribute.Int("symbols", len(j.symbols)))

	results := make([]RefreshResult, len(j.symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i, sym := range j.symbols {
		g.Go(func() error {
			r := j.refreshSymbol(gctx, sym)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			j.logger.Error().Err(r.Err).Str("symbol", r.Symbol).Msg("refresh failed")
			continue
		}
		j.logger.Info().
			Str("symbol", r.Symbol).
			Int("bars", r.Bars).
			Int("version", r.Version).
			Float64("roc_auc_test", r.AUCTest).
			Msg("refresh complete")
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return results
}

func (j *RefreshJob) refreshSymbol(ctx context.Context, symbol string) RefreshResult {
	out := RefreshResult{Symbol: symbol}
	dl, err := j.refresher.Download(ctx, symbol)
	if err != nil {
		out.Err = err
		return out
	}
	out.Bars = dl.Bars

	rep, err := j.refresher.Train(ctx, symbol, j.model)
	if err != nil {
		out.Err = err
		return out
	}
	out.Version = rep.Version
	out.AUCTest = rep.Metrics.ROCAUCTest
	return out
}

func nextRunUTC(now time.Time, hour int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
