// Package xgboost wraps rmera/boo gradient-boosted trees as a binary up/down classifier.
package xgboost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

var (
	ErrInvalidDataset = errors.New("invalid training dataset")
	ErrSingleClass    = errors.New("boosting requires both classes in the training labels")
)

type TrainOptions struct {
	Rounds       int     `json:"rounds"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`
}

type artifact struct {
	FeatureNames []string     `json:"feature_names"`
	Options      TrainOptions `json:"options"`
	Trees        string       `json:"trees"`
}

type Model struct {
	featureNames []string
	opts         TrainOptions
	boost        *boo.MultiClass
}

// DefaultTrainOptions sit in the middle of the usual small-data grid
// (150-250 rounds, rate 0.05-0.1, depth 2-3).
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:       200,
		LearningRate: 0.05,
		MaxDepth:     3,
	}
}

func Train(rows [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(rows) == 0 || len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrInvalidDataset, len(rows), len(labels))
	}
	width := len(rows[0])
	if width == 0 || len(featureNames) != width {
		return nil, fmt.Errorf("%w: %d features, %d names", ErrInvalidDataset, width, len(featureNames))
	}

	classes := make([]int, len(labels))
	seen := [2]bool{}
	for i, v := range labels {
		if v > 0.5 {
			classes[i] = 1
		}
		seen[classes[i]] = true
	}
	if !seen[0] || !seen[1] {
		return nil, ErrSingleClass
	}

	def := DefaultTrainOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}

	o := boo.DefaultXOptions()
	o.Rounds = opts.Rounds
	o.LearningRate = opts.LearningRate
	o.MaxDepth = opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	names := append([]string(nil), featureNames...)
	boost := boo.NewMultiClass(&utils.DataBunch{Data: rows, Labels: classes, Keys: names}, o)
	if boost == nil {
		return nil, errors.New("boosting produced no model")
	}
	return &Model{featureNames: names, opts: opts, boost: boost}, nil
}

// PredictProb returns the probability mass boo assigns to class 1.
func (m *Model) PredictProb(row []float64) float64 {
	if m == nil || m.boost == nil || len(row) != len(m.featureNames) {
		return 0.5
	}
	probs := m.boost.PredictSingle(row)
	for i, label := range m.boost.ClassLabels() {
		if label == 1 && i < len(probs) {
			return clamp01(probs[i])
		}
	}
	return 0.5
}

func (m *Model) PredictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = m.PredictProb(rows[i])
	}
	return out
}

func (m *Model) Options() TrainOptions { return m.opts }

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var trees bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &trees); err != nil {
		return nil, fmt.Errorf("encode trees: %w", err)
	}
	return json.Marshal(artifact{FeatureNames: m.featureNames, Options: m.opts, Trees: trees.String()})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	boost, err := boo.UnJSONMultiClass(bufio.NewReader(strings.NewReader(a.Trees)))
	if err != nil {
		return nil, fmt.Errorf("decode trees: %w", err)
	}
	return &Model{featureNames: a.FeatureNames, opts: a.Options, boost: boost}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.featureNames...)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Min(1, math.Max(0, v))
}
