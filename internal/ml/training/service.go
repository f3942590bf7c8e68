package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trendr/internal/domain"
	"trendr/internal/ml"
	"trendr/internal/ml/ensemble"
	"trendr/internal/ml/features"
	"trendr/internal/ml/models/logreg"
	"trendr/internal/ml/models/xgboost"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTestDays = 365

var ErrEmptySplit = errors.New("chronological split produced an empty partition")

type Options struct {
	TestDays int
	LogReg   logreg.TrainOptions
	GBC      xgboost.TrainOptions
	// Weights for the ensemble members, keyed by model name.
	EnsembleWeights map[string]float64
}

func DefaultOptions() Options {
	return Options{
		TestDays: DefaultTestDays,
		LogReg:   logreg.DefaultTrainOptions(),
		GBC:      xgboost.DefaultTrainOptions(),
		EnsembleWeights: map[string]float64{
			ml.ModelLogReg: 0.4,
			ml.ModelGBC:    0.6,
		},
	}
}

// Outcome is a fitted classifier with its stored form and evaluation.
type Outcome struct {
	ModelName     string
	SchemaVersion string
	Classifier    ml.Classifier
	Blob          []byte
	Metrics       Metrics
	Confusion     ConfusionMatrix
	Report        string
	TrainedFrom   time.Time
	TrainedTo     time.Time
}

// Train fits modelName on every row dated on or before max(date)-TestDays and
// evaluates on the rest.
func Train(m *features.Matrix, modelName string, opts Options) (*Outcome, error) {
	name, err := ml.ParseModelName(modelName)
	if err != nil {
		return nil, err
	}
	if opts.TestDays <= 0 {
		opts.TestDays = DefaultTestDays
	}
	train, test := m.SplitByDays(opts.TestDays)
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("%w: %d train rows, %d test rows", ErrEmptySplit, train.Len(), test.Len())
	}

	clf, blob, err := fit(name, train, opts)
	if err != nil {
		return nil, err
	}

	pTrain := clf.PredictBatch(train.X())
	pTest := clf.PredictBatch(test.X())
	return &Outcome{
		ModelName:     name,
		SchemaVersion: m.SchemaVersion,
		Classifier:    clf,
		Blob:          blob,
		Metrics:       computeMetrics(train.Target, pTrain, test.Target, pTest),
		Confusion:     NewConfusionMatrix(test.Target, pTest, DecisionThreshold),
		Report:        TextReport(test.Target, pTest, DecisionThreshold),
		TrainedFrom:   train.Dates[0],
		TrainedTo:     train.Dates[train.Len()-1],
	}, nil
}

func fit(name string, train *features.Matrix, opts Options) (ml.Classifier, []byte, error) {
	x, y, cols := train.X(), train.Y(), train.Columns
	fitOne := func(kind string) (ml.Model, error) {
		switch kind {
		case ml.ModelLogReg:
			m, err := logreg.Train(x, y, cols, opts.LogReg)
			if err != nil {
				return nil, fmt.Errorf("train logreg: %w", err)
			}
			return m, nil
		default:
			m, err := xgboost.Train(x, y, cols, opts.GBC)
			if err != nil {
				return nil, fmt.Errorf("train gbc: %w", err)
			}
			return m, nil
		}
	}

	if name != ml.ModelEnsemble {
		m, err := fitOne(name)
		if err != nil {
			return nil, nil, err
		}
		blob, err := encodeSingle(name, train.SchemaVersion, m)
		return m, blob, err
	}

	weights := opts.EnsembleWeights
	if len(weights) == 0 {
		weights = DefaultOptions().EnsembleWeights
	}
	models := make(map[string]ml.Model, 2)
	var members []ensemble.Member
	for _, kind := range []string{ml.ModelLogReg, ml.ModelGBC} {
		if weights[kind] <= 0 {
			continue
		}
		m, err := fitOne(kind)
		if err != nil {
			return nil, nil, err
		}
		models[kind] = m
		members = append(members, ensemble.Member{Name: kind, Weight: weights[kind], Classifier: m})
	}
	e, err := ensemble.New(members...)
	if err != nil {
		return nil, nil, err
	}
	blob, err := encodeEnsemble(train.SchemaVersion, cols, models, weights)
	return e, blob, err
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, symbol, interval, modelKey string) (int, error)
	InsertModel(ctx context.Context, a domain.ModelArtifact) (*domain.ModelArtifact, error)
}

// Service trains and records models for one symbol at a time.
type Service struct {
	tracer   trace.Tracer
	registry ModelRegistry
	opts     Options
}

func NewService(tracer trace.Tracer, registry ModelRegistry, opts Options) *Service {
	if opts.TestDays <= 0 {
		opts.TestDays = DefaultTestDays
	}
	return &Service{tracer: tracer, registry: registry, opts: opts}
}

// TrainAndStore fits the model and persists the artifact as the next version.
func (s *Service) TrainAndStore(ctx context.Context, symbol, interval string, m *features.Matrix, modelName string) (*Outcome, *domain.ModelArtifact, error) {
	ctx, span := s.tracer.Start(ctx, "ml-training.train-and-store")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("model", modelName))

	out, err := Train(m, modelName, s.opts)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if s.registry == nil {
		return out, nil, nil
	}

	version, err := s.registry.NextVersion(ctx, symbol, interval, out.ModelName)
	if err != nil {
		return nil, nil, fmt.Errorf("next model version: %w", err)
	}
	metricsJSON, err := json.Marshal(out.Metrics)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.registry.InsertModel(ctx, domain.ModelArtifact{
		Symbol:         symbol,
		Interval:       interval,
		ModelKey:       out.ModelName,
		Version:        version,
		SchemaVersion:  out.SchemaVersion,
		TrainedFrom:    out.TrainedFrom,
		TrainedTo:      out.TrainedTo,
		MetricsJSON:    string(metricsJSON),
		ArtifactFormat: ArtifactFormat,
		Blob:           out.Blob,
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("store model: %w", err)
	}
	return out, stored, nil
}
