package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"trendr/internal/domain"
	"trendr/internal/ml"
	"trendr/internal/ml/features"
	"trendr/internal/ml/models/xgboost"

	"go.opentelemetry.io/otel/trace"
)

type fakeRegistry struct {
	inserted []domain.ModelArtifact
	err      error
}

func (f *fakeRegistry) NextVersion(_ context.Context, _, _, _ string) (int, error) {
	return len(f.inserted) + 1, nil
}

func (f *fakeRegistry) InsertModel(_ context.Context, a domain.ModelArtifact) (*domain.ModelArtifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	a.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, a)
	return &a, nil
}

func TestTrainLogRegSplitsByCalendar(t *testing.T) {
	m := buildMatrix(t, 520)
	out, err := Train(m, ml.ModelLogReg, fastOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if out.Metrics.NTest != 365 {
		t.Fatalf("expected 365 daily test rows, got %d", out.Metrics.NTest)
	}
	if out.Metrics.NTrain+out.Metrics.NTest != m.Len() {
		t.Fatalf("split lost rows")
	}
	cutoff := m.Dates[m.Len()-1].AddDate(0, 0, -365)
	if out.TrainedTo.After(cutoff) {
		t.Fatalf("training data leaks past cutoff: %s > %s", out.TrainedTo, cutoff)
	}
	for name, v := range map[string]float64{
		"acc_train": out.Metrics.AccTrain, "acc_test": out.Metrics.AccTest,
		"roc_auc_test": out.Metrics.ROCAUCTest, "roc_auc_train": out.Metrics.ROCAUCTrain,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("%s out of range: %v", name, v)
		}
	}
	if out.Confusion.Total() != out.Metrics.NTest || out.Report == "" {
		t.Fatalf("evaluation not populated: %+v", out.Confusion)
	}
}

func TestTrainArtifactRestoresPredictions(t *testing.T) {
	m := buildMatrix(t, 520)
	for _, name := range []string{ml.ModelLogReg, ml.ModelGBC, ml.ModelEnsemble} {
		out, err := Train(m, name, fastOptions())
		if err != nil {
			t.Fatalf("%s: train failed: %v", name, err)
		}
		loaded, err := Decode(out.Blob)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		if loaded.Kind != name || loaded.SchemaVersion != features.SchemaVersionV1 || len(loaded.FeatureNames) != len(m.Columns) {
			t.Fatalf("%s: unexpected envelope %+v", name, loaded)
		}
		// tree thresholds go through boo's JSON text form
		tol := 1e-3
		if name == ml.ModelLogReg {
			tol = 1e-12
		}
		tail := m.Tail(5).X()
		want := out.Classifier.PredictBatch(tail)
		got := loaded.Classifier.PredictBatch(tail)
		for i := range want {
			if math.Abs(want[i]-got[i]) > tol {
				t.Fatalf("%s: restored prediction %d differs: %v vs %v", name, i, got[i], want[i])
			}
		}
	}
}

func TestTrainRejectsUnknownModelAndShortHistory(t *testing.T) {
	m := buildMatrix(t, 520)
	if _, err := Train(m, "svm", fastOptions()); !errors.Is(err, ml.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	short := buildMatrix(t, 200)
	if _, err := Train(short, ml.ModelLogReg, fastOptions()); !errors.Is(err, ErrEmptySplit) {
		t.Fatalf("expected ErrEmptySplit, got %v", err)
	}
}

func TestTrainAndStorePersistsVersion(t *testing.T) {
	reg := &fakeRegistry{}
	svc := NewService(trace.NewNoopTracerProvider().Tracer("test"), reg, fastOptions())
	out, stored, err := svc.TrainAndStore(context.Background(), "ETH-USD", "1d", buildMatrix(t, 520), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ModelName != ml.ModelGBC {
		t.Fatalf("empty model name should select gbc, got %s", out.ModelName)
	}
	if stored == nil || stored.Version != 1 || stored.Symbol != "ETH-USD" || stored.ArtifactFormat != ArtifactFormat {
		t.Fatalf("unexpected stored artifact %+v", stored)
	}
	if len(reg.inserted) != 1 || len(reg.inserted[0].Blob) == 0 || reg.inserted[0].MetricsJSON == "" {
		t.Fatalf("artifact not persisted: %+v", reg.inserted)
	}

	reg.err = errors.New("db down")
	if _, _, err := svc.TrainAndStore(context.Background(), "ETH-USD", "1d", buildMatrix(t, 520), ml.ModelLogReg); err == nil {
		t.Fatal("expected registry error to propagate")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); !errors.Is(err, ErrBadArtifact) {
		t.Fatalf("expected ErrBadArtifact, got %v", err)
	}
	if _, err := Decode([]byte(`{"kind":"svm"}`)); !errors.Is(err, ErrBadArtifact) {
		t.Fatalf("expected ErrBadArtifact for unknown kind, got %v", err)
	}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.LogReg.Epochs = 80
	opts.GBC = xgboost.TrainOptions{Rounds: 15, LearningRate: 0.1, MaxDepth: 2}
	return opts
}

func buildMatrix(t *testing.T, n int) *features.Matrix {
	t.Helper()
	bars := make([]domain.PriceBar, n)
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100 + 10*math.Sin(float64(i)/7) + 4*math.Cos(float64(i)/3) + 0.05*float64(i)
		bars[i] = domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   price - 0.3,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000 + float64(i%17)*25,
		}
	}
	m, err := features.Build(bars, features.DefaultSchema())
	if err != nil {
		t.Fatalf("build features: %v", err)
	}
	return m
}
