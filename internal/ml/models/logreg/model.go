package logreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrInvalidDataset = errors.New("invalid training dataset")

type TrainOptions struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	L2           float64 `json:"l2"`
}

// artifact is the stored form: standard-scaling parameters plus the fitted weights.
type artifact struct {
	FeatureNames []string     `json:"feature_names"`
	Weights      []float64    `json:"weights"`
	Bias         float64      `json:"bias"`
	Means        []float64    `json:"means"`
	Scales       []float64    `json:"scales"`
	Options      TrainOptions `json:"options"`
}

type Model struct {
	a artifact
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.05,
		Epochs:       600,
		L2:           0.0001,
	}
}

// Train fits an L2-regularized logistic regression by batch gradient descent on
// standardized inputs. featureNames must match the row width.
func Train(rows [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(rows) == 0 || len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrInvalidDataset, len(rows), len(labels))
	}
	width := len(rows[0])
	if width == 0 || len(featureNames) != width {
		return nil, fmt.Errorf("%w: %d features, %d names", ErrInvalidDataset, width, len(featureNames))
	}
	def := DefaultTrainOptions()
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = def.L2
	}

	means, scales, err := fitScaler(rows, width)
	if err != nil {
		return nil, err
	}
	scaled := make([][]float64, len(rows))
	for i := range rows {
		scaled[i] = standardize(rows[i], means, scales)
	}

	n := float64(len(rows))
	weights := make([]float64, width)
	grads := make([]float64, width)
	bias := 0.0
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grads {
			grads[j] = 0
		}
		gradBias := 0.0
		for i, x := range scaled {
			residual := sigmoid(floats.Dot(weights, x)+bias) - labels[i]
			floats.AddScaled(grads, residual, x)
			gradBias += residual
		}
		for j := range weights {
			weights[j] -= opts.LearningRate * (grads[j]/n + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * gradBias / n
	}

	return &Model{a: artifact{
		FeatureNames: append([]string(nil), featureNames...),
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Scales:       scales,
		Options:      opts,
	}}, nil
}

func fitScaler(rows [][]float64, width int) ([]float64, []float64, error) {
	means := make([]float64, width)
	scales := make([]float64, width)
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i := range rows {
			if len(rows[i]) != width {
				return nil, nil, fmt.Errorf("%w: row %d has %d values", ErrInvalidDataset, i, len(rows[i]))
			}
			col[i] = rows[i][j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		means[j] = mean
		scales[j] = math.Sqrt(variance)
		if scales[j] == 0 || math.IsNaN(scales[j]) {
			scales[j] = 1
		}
	}
	return means, scales, nil
}

// PredictProb returns P(up) for one row. A row of the wrong width scores 0.5.
func (m *Model) PredictProb(row []float64) float64 {
	if m == nil || len(row) != len(m.a.Weights) {
		return 0.5
	}
	return sigmoid(floats.Dot(m.a.Weights, standardize(row, m.a.Means, m.a.Scales)) + m.a.Bias)
}

func (m *Model) PredictBatch(rows [][]float64) []float64 {
	probs := make([]float64, len(rows))
	for i := range rows {
		probs[i] = m.PredictProb(rows[i])
	}
	return probs
}

func (m *Model) Options() TrainOptions { return m.a.Options }

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.a)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if len(a.Weights) == 0 || len(a.Weights) != len(a.Means) || len(a.Weights) != len(a.Scales) {
		return nil, errors.New("invalid logreg artifact")
	}
	return &Model{a: a}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.a.FeatureNames...)
}

func sigmoid(x float64) float64 {
	switch {
	case x > 35:
		return 1
	case x < -35:
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func standardize(in, means, scales []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / scales[i]
	}
	return out
}
