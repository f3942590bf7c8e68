package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Epsilon is added to denominators that may collapse to zero.
const Epsilon = 1e-10

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// MeanStd returns the mean and sample (n-1) standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	return mean, std
}

// PctChange returns values[i]/values[i-lag]-1, NaN for the first lag entries.
func PctChange(values []float64, lag int) []float64 {
	out := nanSeries(len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		out[i] = values[i]/values[i-lag] - 1
	}
	return out
}

// RollingMean is NaN until a full window of defined values is available.
func RollingMean(values []float64, window int) []float64 {
	return rolling(values, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingStd is the sample standard deviation over a trailing window.
func RollingStd(values []float64, window int) []float64 {
	return rolling(values, window, func(w []float64) float64 { return stat.StdDev(w, nil) })
}

func rolling(values []float64, window int, fn func([]float64) float64) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

// EMASeries is an exponentially weighted mean with alpha 2/(span+1), seeded with the
// first value and defined recursively over the whole series.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	if span <= 1 {
		copy(out, values)
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries uses simple rolling means of gains and losses over period.
func RSISeries(closes []float64, period int) []float64 {
	n := len(closes)
	gains := nanSeries(n)
	losses := nanSeries(n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		gains[i] = math.Max(delta, 0)
		losses[i] = -math.Min(delta, 0)
	}
	up := RollingMean(gains, period)
	down := RollingMean(losses, period)

	out := nanSeries(n)
	for i := range out {
		if math.IsNaN(up[i]) || math.IsNaN(down[i]) {
			continue
		}
		rs := up[i] / (down[i] + Epsilon)
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// MACDSeries returns the MACD line, its signal EMA and the histogram.
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, hist
}

// BollingerWidth is (upper-lower)/middle with the middle band epsilon-floored.
func BollingerWidth(values []float64, period int, stdDevs float64) []float64 {
	middle := RollingMean(values, period)
	sd := RollingStd(values, period)
	out := nanSeries(len(values))
	for i := range values {
		if math.IsNaN(middle[i]) || math.IsNaN(sd[i]) {
			continue
		}
		upper := middle[i] + stdDevs*sd[i]
		lower := middle[i] - stdDevs*sd[i]
		out[i] = (upper - lower) / (middle[i] + Epsilon)
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
