package ensemble

import (
	"math"
	"testing"
)

type constClassifier float64

func (c constClassifier) PredictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = float64(c)
	}
	return out
}

func TestWeightedAverage(t *testing.T) {
	e, err := New(
		Member{Name: "logreg", Weight: 1, Classifier: constClassifier(0.2)},
		Member{Name: "gbc", Weight: 3, Classifier: constClassifier(0.8)},
		Member{Name: "ignored", Weight: 0, Classifier: constClassifier(1)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs := e.PredictBatch([][]float64{{1}, {2}})
	if len(probs) != 2 {
		t.Fatalf("expected 2 probabilities, got %d", len(probs))
	}
	if math.Abs(probs[0]-0.65) > 1e-12 {
		t.Fatalf("expected 0.65, got %.4f", probs[0])
	}
	if len(e.members) != 2 {
		t.Fatalf("zero-weight member should be dropped")
	}
}

func TestNewRequiresMembers(t *testing.T) {
	if _, err := New(Member{Name: "none", Weight: 1}); err == nil {
		t.Fatal("expected error for ensemble without classifiers")
	}
}
