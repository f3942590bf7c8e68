package training

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DecisionThreshold turns a probability into a class label: p > 0.5 is "up".
const DecisionThreshold = 0.5

// Metrics are the held-out and in-sample scores reported after a fit.
type Metrics struct {
	AccTrain    float64 `json:"acc_train"`
	AccTest     float64 `json:"acc_test"`
	PrecTest    float64 `json:"prec_test"`
	RecallTest  float64 `json:"recall_test"`
	ROCAUCTest  float64 `json:"roc_auc_test"`
	ROCAUCTrain float64 `json:"roc_auc_train"`
	NTrain      int     `json:"n_train"`
	NTest       int     `json:"n_test"`
}

func computeMetrics(yTrain []int, pTrain []float64, yTest []int, pTest []float64) Metrics {
	train := NewConfusionMatrix(yTrain, pTrain, DecisionThreshold)
	test := NewConfusionMatrix(yTest, pTest, DecisionThreshold)
	return Metrics{
		AccTrain:    train.Accuracy(),
		AccTest:     test.Accuracy(),
		PrecTest:    test.Precision(),
		RecallTest:  test.Recall(),
		ROCAUCTest:  rocAUC(yTest, pTest),
		ROCAUCTrain: rocAUC(yTrain, pTrain),
		NTrain:      len(yTrain),
		NTest:       len(yTest),
	}
}

// ConfusionMatrix counts outcomes for the positive ("up") class.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

func NewConfusionMatrix(yTrue []int, proba []float64, threshold float64) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		if i >= len(proba) {
			break
		}
		pred := proba[i] > threshold
		switch {
		case pred && yTrue[i] == 1:
			cm.TP++
		case pred:
			cm.FP++
		case yTrue[i] == 1:
			cm.FN++
		default:
			cm.TN++
		}
	}
	return cm
}

func (c ConfusionMatrix) Total() int { return c.TN + c.FP + c.FN + c.TP }

func (c ConfusionMatrix) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

func (c ConfusionMatrix) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

func (c ConfusionMatrix) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// classStats returns precision, recall, f1 and support for label 0 or 1.
func (c ConfusionMatrix) classStats(label int) (float64, float64, float64, int) {
	tp, fp, fn := c.TP, c.FP, c.FN
	if label == 0 {
		tp, fp, fn = c.TN, c.FN, c.FP
	}
	p := ratio(tp, tp+fp)
	r := ratio(tp, tp+fn)
	f1 := 0.0
	if p+r > 0 {
		f1 = 2 * p * r / (p + r)
	}
	return p, r, f1, tp + fn
}

// TextReport renders per-class precision, recall, f1 and support with macro and
// support-weighted averages, three decimals.
func TextReport(yTrue []int, proba []float64, threshold float64) string {
	cm := NewConfusionMatrix(yTrue, proba, threshold)
	const width = len("weighted avg")

	var b strings.Builder
	fmt.Fprintf(&b, "%*s ", width, "")
	for _, h := range []string{"precision", "recall", "f1-score", "support"} {
		fmt.Fprintf(&b, " %9s", h)
	}
	b.WriteString("\n\n")

	var macro, weighted [3]float64
	total := cm.Total()
	for _, label := range []int{0, 1} {
		p, r, f1, support := cm.classStats(label)
		fmt.Fprintf(&b, "%*d  %9.3f %9.3f %9.3f %9d\n", width, label, p, r, f1, support)
		for k, v := range []float64{p, r, f1} {
			macro[k] += v / 2
			if total > 0 {
				weighted[k] += v * float64(support) / float64(total)
			}
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.3f %9d\n", width, "accuracy", "", "", cm.Accuracy(), total)
	fmt.Fprintf(&b, "%*s  %9.3f %9.3f %9.3f %9d\n", width, "macro avg", macro[0], macro[1], macro[2], total)
	fmt.Fprintf(&b, "%*s  %9.3f %9.3f %9.3f %9d\n", width, "weighted avg", weighted[0], weighted[1], weighted[2], total)
	return b.String()
}

// rocAUC is the rank-sum (Mann-Whitney) estimate with tied scores sharing their
// average rank. A single-class sample has no defined AUC and reports 0.5.
func rocAUC(labels []int, probs []float64) float64 {
	type pair struct {
		p float64
		y int
	}
	n := min(len(labels), len(probs))
	pairs := make([]pair, n)
	pos, neg := 0.0, 0.0
	for i := 0; i < n; i++ {
		pairs[i] = pair{p: probs[i], y: labels[i]}
		if labels[i] == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	for i := 0; i < n; {
		j := i + 1
		for j < n && pairs[j].p == pairs[i].p {
			j++
		}
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pairs[k].y == 1 {
				sumRankPos += avgRank
			}
		}
		i = j
	}
	auc := (sumRankPos - pos*(pos+1)/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
