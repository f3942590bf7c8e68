// Package ensemble blends several classifiers into one probability.
package ensemble

import (
	"errors"

	"trendr/internal/ml"
)

type Member struct {
	Name       string
	Weight     float64
	Classifier ml.Classifier
}

// Ensemble averages member probabilities by weight. Members with non-positive weight
// are ignored.
type Ensemble struct {
	members []Member
	total   float64
}

func New(members ...Member) (*Ensemble, error) {
	e := &Ensemble{}
	for _, m := range members {
		if m.Classifier == nil || m.Weight <= 0 {
			continue
		}
		e.members = append(e.members, m)
		e.total += m.Weight
	}
	if len(e.members) == 0 {
		return nil, errors.New("ensemble needs at least one weighted member")
	}
	return e, nil
}

func (e *Ensemble) PredictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for _, m := range e.members {
		probs := m.Classifier.PredictBatch(rows)
		w := m.Weight / e.total
		for i := range out {
			out[i] += w * probs[i]
		}
	}
	return out
}
