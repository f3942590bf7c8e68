package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trendr/internal/backtest"
	"trendr/internal/cache"
	"trendr/internal/domain"
	"trendr/internal/metrics"
	"trendr/internal/ml"
	"trendr/internal/ml/features"
	"trendr/internal/ml/registry"
	"trendr/internal/ml/training"
)

// ErrNoPriceHistory means neither the bar store nor the data directory holds bars for
// the symbol. Callers should download first; nothing is synthesized.
var ErrNoPriceHistory = errors.New("no price history")

const (
	barsCacheTTL     = 15 * time.Minute
	signalCacheTTL   = 15 * time.Minute
	backtestCacheTTL = time.Hour
)

type BarProvider interface {
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.PriceBar, error)
}

type BarStore interface {
	UpsertBars(ctx context.Context, symbol, interval string, bars []domain.PriceBar) error
	GetBars(ctx context.Context, symbol, interval string, from time.Time) ([]domain.PriceBar, error)
}

type ModelStore interface {
	training.ModelRegistry
	Latest(ctx context.Context, symbol, interval, modelKey string) (*domain.ModelArtifact, error)
}

type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Options struct {
	Interval string
	Start    time.Time
	Model    string
	Params   backtest.Params
	DataDir  string
	Training training.Options
}

type DownloadResult struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Bars     int       `json:"bars"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	CSVPath  string    `json:"csv_path,omitempty"`
}

type FeatureResult struct {
	Symbol        string    `json:"symbol"`
	Interval      string    `json:"interval"`
	SchemaVersion string    `json:"schema_version"`
	Columns       []string  `json:"columns"`
	Rows          int       `json:"rows"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	CSVPath       string    `json:"csv_path,omitempty"`

	Matrix *features.Matrix `json:"-"`
}

type TrainReport struct {
	Symbol      string                   `json:"symbol"`
	Interval    string                   `json:"interval"`
	Model       string                   `json:"model"`
	Version     int                      `json:"version"`
	TrainedFrom time.Time                `json:"trained_from"`
	TrainedTo   time.Time                `json:"trained_to"`
	Metrics     training.Metrics         `json:"metrics"`
	Confusion   training.ConfusionMatrix `json:"confusion"`
	Report      string                   `json:"report"`
	MetricsPath string                   `json:"metrics_path,omitempty"`
}

type BacktestReport struct {
	Symbol   string           `json:"symbol"`
	Interval string           `json:"interval"`
	Model    string           `json:"model"`
	Version  int              `json:"version"`
	Params   backtest.Params  `json:"params"`
	Summary  backtest.Summary `json:"summary"`
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Trades   int              `json:"trades"`
	CSVPath  string           `json:"csv_path,omitempty"`

	Rows []backtest.Row `json:"rows,omitempty"`
}

// SignalService runs the download, featurize, train and backtest pipeline for one
// symbol at a time. It owns all I/O around the pure feature and backtest packages.
type SignalService struct {
	tracer   trace.Tracer
	logger   zerolog.Logger
	provider BarProvider
	bars     BarStore
	models   ModelStore
	cache    JSONCache
	trainer  *training.Service
	schema   features.Schema
	opts     Options
}

func NewSignalService(
	tracer trace.Tracer,
	logger zerolog.Logger,
	provider BarProvider,
	bars BarStore,
	models ModelStore,
	jsonCache JSONCache,
	opts Options,
) *SignalService {
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.Model == "" {
		opts.Model = ml.DefaultModel
	}
	if opts.Params == (backtest.Params{}) {
		opts.Params = backtest.DefaultParams()
	}
	if opts.Training.TestDays <= 0 && opts.Training.EnsembleWeights == nil {
		opts.Training = training.DefaultOptions()
	}
	if opts.Training.TestDays <= 0 {
		opts.Training.TestDays = training.DefaultTestDays
	}
	if jsonCache == nil {
		jsonCache = cache.New(nil, "")
	}
	var reg training.ModelRegistry
	if models != nil {
		reg = models
	}
	return &SignalService{
		tracer:   tracer,
		logger:   logger.With().Str("component", "signal-service").Logger(),
		provider: provider,
		bars:     bars,
		models:   models,
		cache:    jsonCache,
		trainer:  training.NewService(tracer, reg, opts.Training),
		schema:   features.DefaultSchema(),
		opts:     opts,
	}
}

func (s *SignalService) Interval() string { return s.opts.Interval }

func (s *SignalService) DefaultModel() string { return s.opts.Model }

func (s *SignalService) DefaultParams() backtest.Params { return s.opts.Params }

// Download fetches the full history from the configured start date, stores it and
// mirrors it to DataDir/raw.
func (s *SignalService) Download(ctx context.Context, symbol string) (*DownloadResult, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.download")
	defer span.End()
	symbol = normalizeSymbol(symbol)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", s.opts.Interval))

	if s.provider == nil {
		return nil, errors.New("no price provider configured")
	}
	bars, err := s.provider.FetchBars(ctx, symbol, s.opts.Interval, s.opts.Start, time.Time{})
	metrics.DownloadsTotal.WithLabelValues(symbol, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("download %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("download %s: %w", symbol, ErrNoPriceHistory)
	}

	if s.bars != nil {
		if err := s.bars.UpsertBars(ctx, symbol, s.opts.Interval, bars); err != nil {
			return nil, fmt.Errorf("store bars for %s: %w", symbol, err)
		}
	}

	out := &DownloadResult{
		Symbol:   symbol,
		Interval: s.opts.Interval,
		Bars:     len(bars),
		From:     bars[0].Date,
		To:       bars[len(bars)-1].Date,
	}
	if path := s.dataPath("raw", fmt.Sprintf("%s_%s.csv", fileSymbol(symbol), s.opts.Interval)); path != "" {
		if err := writeFile(path, func(f *os.File) error { return features.WriteBarsCSV(f, bars) }); err != nil {
			return nil, err
		}
		out.CSVPath = path
	}

	stale := []string{s.barsKey(symbol)}
	for _, name := range []string{ml.ModelLogReg, ml.ModelGBC, ml.ModelEnsemble} {
		stale = append(stale, s.signalKey(symbol, name))
	}
	if err := s.cache.Delete(ctx, stale...); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache invalidation failed")
	}
	metrics.BarsStored.WithLabelValues(symbol, s.opts.Interval).Set(float64(len(bars)))
	s.logger.Info().Str("symbol", symbol).Int("bars", len(bars)).Time("to", out.To).Msg("downloaded price history")
	return out, nil
}

// Featurize builds the feature matrix from stored history and writes it to
// DataDir/processed.
func (s *SignalService) Featurize(ctx context.Context, symbol string) (*FeatureResult, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.featurize")
	defer span.End()
	symbol = normalizeSymbol(symbol)
	span.SetAttributes(attribute.String("symbol", symbol))

	m, err := s.matrix(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := &FeatureResult{
		Symbol:        symbol,
		Interval:      s.opts.Interval,
		SchemaVersion: m.SchemaVersion,
		Columns:       m.Columns,
		Rows:          m.Len(),
		Matrix:        m,
	}
	if m.Len() > 0 {
		out.From, out.To = m.Dates[0], m.Dates[m.Len()-1]
	}
	if path := s.featuresPath(symbol); path != "" {
		if err := writeFile(path, func(f *os.File) error { return features.WriteCSV(f, m) }); err != nil {
			return nil, err
		}
		out.CSVPath = path
	}
	return out, nil
}

// Train fits modelName on all but the last TestDays of features, records it as the next
// version and writes the evaluation to DataDir/reports.
func (s *SignalService) Train(ctx context.Context, symbol, modelName string) (*TrainReport, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.train")
	defer span.End()
	symbol = normalizeSymbol(symbol)

	name, err := s.modelName(modelName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("model", name))

	m, err := s.matrix(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome, artifact, err := s.trainer.TrainAndStore(ctx, symbol, s.opts.Interval, m, name)
	metrics.TrainingsTotal.WithLabelValues(name, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("train %s %s: %w", symbol, name, err)
	}

	report := &TrainReport{
		Symbol:      symbol,
		Interval:    s.opts.Interval,
		Model:       name,
		TrainedFrom: outcome.TrainedFrom,
		TrainedTo:   outcome.TrainedTo,
		Metrics:     outcome.Metrics,
		Confusion:   outcome.Confusion,
		Report:      outcome.Report,
	}
	if artifact != nil {
		report.Version = artifact.Version
	}
	if path := s.dataPath("reports", fmt.Sprintf("metrics_%s_%s_%s.json", fileSymbol(symbol), s.opts.Interval, name)); path != "" {
		if err := writeFile(path, func(f *os.File) error { return writeJSON(f, report) }); err != nil {
			return nil, err
		}
		report.MetricsPath = path
	}
	if path := s.featuresPath(symbol); path != "" {
		if err := writeFile(path, func(f *os.File) error { return features.WriteCSV(f, m) }); err != nil {
			return nil, err
		}
	}

	if err := s.cache.Delete(ctx, s.signalKey(symbol, name)); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache invalidation failed")
	}
	metrics.TestAUC.WithLabelValues(symbol, name).Set(outcome.Metrics.ROCAUCTest)
	s.logger.Info().
		Str("symbol", symbol).
		Str("model", name).
		Int("version", report.Version).
		Float64("acc_test", outcome.Metrics.AccTest).
		Float64("roc_auc_test", outcome.Metrics.ROCAUCTest).
		Msg("model trained")
	return report, nil
}

// Backtest replays the newest stored model over the held-out period.
func (s *SignalService) Backtest(ctx context.Context, symbol, modelName string, params backtest.Params) (*BacktestReport, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.backtest")
	defer span.End()
	symbol = normalizeSymbol(symbol)

	name, err := s.modelName(modelName)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("model", name))

	m, err := s.matrix(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	loaded, artifact, err := s.loadModel(ctx, symbol, name, m)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	_, test := m.SplitByDays(s.opts.Training.TestDays)
	if test.Len() == 0 {
		return nil, fmt.Errorf("backtest %s: %w", symbol, training.ErrEmptySplit)
	}

	key := s.backtestKey(symbol, name, artifact.Version, test.Dates[test.Len()-1], params)
	var cached BacktestReport
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		// the report file is shared across params, so it is rewritten for every hit
		path, err := s.writeBacktestCSV(symbol, &backtest.Result{Params: cached.Params, Rows: cached.Rows, Trades: cached.Trades})
		if err != nil {
			return nil, err
		}
		cached.CSVPath = path
		return &cached, nil
	}
	probs := loaded.Classifier.PredictBatch(test.X())
	result, err := backtest.Run(test.Dates, test.Close, probs, params)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	summary := backtest.Performance(result)

	report := &BacktestReport{
		Symbol:   symbol,
		Interval: s.opts.Interval,
		Model:    name,
		Version:  artifact.Version,
		Params:   params,
		Summary:  summary,
		From:     test.Dates[0],
		To:       test.Dates[test.Len()-1],
		Trades:   result.Trades,
		Rows:     result.Rows,
	}
	if report.CSVPath, err = s.writeBacktestCSV(symbol, result); err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, report, backtestCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	metrics.BacktestSharpe.WithLabelValues(symbol).Set(summary.Sharpe)
	s.logger.Info().
		Str("symbol", symbol).
		Str("model", name).
		Float64("cagr_strategy", summary.CAGRStrategy).
		Float64("sharpe", summary.Sharpe).
		Float64("max_drawdown", summary.MaxDrawdown).
		Msg("backtest complete")
	return report, nil
}

// writeBacktestCSV returns "" when no data directory is configured.
func (s *SignalService) writeBacktestCSV(symbol string, result *backtest.Result) (string, error) {
	path := s.dataPath("reports", fmt.Sprintf("backtest_%s_%s.csv", fileSymbol(symbol), s.opts.Interval))
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := backtest.WriteCSVFile(path, result); err != nil {
		return "", fmt.Errorf("write backtest csv: %w", err)
	}
	return path, nil
}

// LatestSignal scores the newest labelled feature row with the newest model.
func (s *SignalService) LatestSignal(ctx context.Context, symbol, modelName string) (*domain.Signal, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.latest-signal")
	defer span.End()
	symbol = normalizeSymbol(symbol)

	name, err := s.modelName(modelName)
	if err != nil {
		return nil, err
	}

	var cached domain.Signal
	if err := s.cache.GetJSON(ctx, s.signalKey(symbol, name), &cached); err == nil {
		return &cached, nil
	}

	m, err := s.matrix(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("signal %s: %w", symbol, ErrNoPriceHistory)
	}
	loaded, _, err := s.loadModel(ctx, symbol, name, m)
	if err != nil {
		return nil, err
	}

	last := m.Tail(1)
	prob := loaded.Classifier.PredictBatch(last.X())[0]
	pos := backtest.RawPositions([]float64{prob}, s.opts.Params)[0]
	sig := &domain.Signal{
		Symbol:    symbol,
		Interval:  s.opts.Interval,
		Date:      last.Dates[0],
		ModelKey:  name,
		ProbUp:    prob,
		Position:  pos,
		Direction: pos.Direction(),
	}
	if err := s.cache.SetJSON(ctx, s.signalKey(symbol, name), sig, signalCacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("cache write failed")
	}
	return sig, nil
}

func (s *SignalService) modelName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return s.opts.Model, nil
	}
	return ml.ParseModelName(name)
}

func (s *SignalService) matrix(ctx context.Context, symbol string) (*features.Matrix, error) {
	bars, err := s.loadBars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m, err := features.Build(bars, s.schema)
	if err != nil {
		return nil, fmt.Errorf("build features for %s: %w", symbol, err)
	}
	return m, nil
}

func (s *SignalService) loadBars(ctx context.Context, symbol string) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	if err := s.cache.GetJSON(ctx, s.barsKey(symbol), &bars); err == nil && len(bars) > 0 {
		return bars, nil
	} else if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache read failed")
	}

	// the raw CSV is the source of record only when there is no database
	if s.bars != nil {
		stored, err := s.bars.GetBars(ctx, symbol, s.opts.Interval, s.opts.Start)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", symbol, err)
		}
		bars = stored
	} else {
		fromFile, err := s.readRawCSV(symbol)
		if err != nil {
			return nil, err
		}
		bars = fromFile
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoPriceHistory, symbol, s.opts.Interval)
	}

	if err := s.cache.SetJSON(ctx, s.barsKey(symbol), bars, barsCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache write failed")
	}
	return bars, nil
}

func (s *SignalService) readRawCSV(symbol string) ([]domain.PriceBar, error) {
	path := s.dataPath("raw", fmt.Sprintf("%s_%s.csv", fileSymbol(symbol), s.opts.Interval))
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := features.ReadBarsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return bars, nil
}

// loadModel fetches the newest artifact and refuses it when it was fit on a different
// feature layout than m.
func (s *SignalService) loadModel(ctx context.Context, symbol, name string, m *features.Matrix) (*training.Loaded, *domain.ModelArtifact, error) {
	if s.models == nil {
		return nil, nil, fmt.Errorf("%w: no model store configured", registry.ErrModelNotFound)
	}
	artifact, err := s.models.Latest(ctx, symbol, s.opts.Interval, name)
	if err != nil {
		return nil, nil, err
	}
	loaded, err := training.Decode(artifact.Blob)
	if err != nil {
		return nil, nil, err
	}
	if loaded.SchemaVersion != m.SchemaVersion || !slices.Equal(loaded.FeatureNames, m.Columns) {
		return nil, nil, fmt.Errorf("%w: model %s v%d was trained on schema %s", features.ErrSchemaMismatch, name, artifact.Version, loaded.SchemaVersion)
	}
	return loaded, artifact, nil
}

func (s *SignalService) featuresPath(symbol string) string {
	return s.dataPath("processed", fmt.Sprintf("features_%s_%s.csv", fileSymbol(symbol), s.opts.Interval))
}

func (s *SignalService) dataPath(sub, name string) string {
	if s.opts.DataDir == "" {
		return ""
	}
	return filepath.Join(s.opts.DataDir, sub, name)
}

func (s *SignalService) barsKey(symbol string) string {
	return fmt.Sprintf("bars:%s:%s", symbol, s.opts.Interval)
}

func (s *SignalService) signalKey(symbol, model string) string {
	return fmt.Sprintf("signal:%s:%s:%s", symbol, s.opts.Interval, model)
}

func (s *SignalService) backtestKey(symbol, model string, version int, asOf time.Time, p backtest.Params) string {
	return fmt.Sprintf("backtest:%s:%s:%s:v%d:%s:%g:%g:%g",
		symbol, s.opts.Interval, model, version, asOf.Format(time.DateOnly), p.ThresholdLong, p.ThresholdShort, p.TxCostBps)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func fileSymbol(symbol string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(symbol)
}
