package ml

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ModelLogReg   = "logreg"
	ModelGBC      = "gbc"
	ModelEnsemble = "ensemble"

	DefaultModel = ModelGBC
)

var ErrUnknownModel = errors.New("unknown model")

// Classifier turns feature rows into the probability that the next close is higher.
type Classifier interface {
	PredictBatch(rows [][]float64) []float64
}

// Model is a Classifier that can be stored and reloaded.
type Model interface {
	Classifier
	MarshalBinary() ([]byte, error)
	FeatureNames() []string
}

// ParseModelName normalizes a model name; empty selects DefaultModel.
func ParseModelName(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return DefaultModel, nil
	case ModelLogReg, ModelGBC, ModelEnsemble:
		return n, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}
