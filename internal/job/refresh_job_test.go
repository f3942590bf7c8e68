package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"trendr/internal/ml/training"
	"trendr/internal/service"
)

type stubRefresher struct {
	mu         sync.Mutex
	failSymbol string
	downloads  []string
	trains     []string
	models     []string
}

func (s *stubRefresher) Download(ctx context.Context, symbol string) (*service.DownloadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, symbol)
	if symbol == s.failSymbol {
		return nil, errors.New("no data")
	}
	return &service.DownloadResult{Symbol: symbol, Bars: 100}, nil
}

func (s *stubRefresher) Train(ctx context.Context, symbol, model string) (*service.TrainReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trains = append(s.trains, symbol)
	s.models = append(s.models, model)
	return &service.TrainReport{Symbol: symbol, Version: 2, Metrics: training.Metrics{ROCAUCTest: 0.55}}, nil
}

func (s *stubRefresher) trainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trains)
}

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestNextRunUTC(t *testing.T) {
	now := time.Date(2025, 5, 1, 6, 30, 0, 0, time.UTC)
	if got := nextRunUTC(now, 7); !got.Equal(time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected same-day run, got %s", got)
	}
	if got := nextRunUTC(now, 6); !got.Equal(time.Date(2025, 5, 2, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next-day run, got %s", got)
	}
	exact := time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC)
	if got := nextRunUTC(exact, 7); !got.Equal(exact.Add(24 * time.Hour)) {
		t.Fatalf("a run at the exact hour should schedule tomorrow, got %s", got)
	}
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	stub := &stubRefresher{failSymbol: "BAD-USD"}
	j := NewRefreshJob(testTracer, zerolog.Nop(), stub, []string{"ETH-USD", "BAD-USD", "BTC-USD"}, "ensemble", 3)

	results := j.RunOnce(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Symbol != "ETH-USD" || results[0].Err != nil || results[0].Version != 2 || results[0].Bars != 100 {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatal("expected failure for BAD-USD")
	}
	if results[2].Err != nil || results[2].AUCTest != 0.55 {
		t.Fatalf("later symbols must still refresh, got %+v", results[2])
	}
	if stub.trainCount() != 2 {
		t.Fatalf("failed download must skip training, trained %d", stub.trainCount())
	}
	for _, m := range stub.models {
		if m != "ensemble" {
			t.Fatalf("expected configured model, got %s", m)
		}
	}
}

func TestNewRefreshJobClampsHour(t *testing.T) {
	j := NewRefreshJob(testTracer, zerolog.Nop(), &stubRefresher{}, nil, "gbc", 30)
	if j.hour != 0 {
		t.Fatalf("expected hour clamp to 0, got %d", j.hour)
	}
}

func TestStartRunsAtScheduledHour(t *testing.T) {
	stub := &stubRefresher{}
	j := NewRefreshJob(testTracer, zerolog.Nop(), stub, []string{"ETH-USD"}, "gbc", 0)
	// pretend it is just before midnight so the first run fires after the 1s floor
	j.now = func() time.Time { return time.Date(2025, 5, 1, 23, 59, 59, 900_000_000, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for stub.trainCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a refresh run")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestStartDisabledWaitsForCancel(t *testing.T) {
	j := NewRefreshJob(testTracer, zerolog.Nop(), nil, nil, "gbc", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled job should return on cancel")
	}
}
