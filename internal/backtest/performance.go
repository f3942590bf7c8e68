package backtest

import (
	"math"

	"trendr/internal/ta"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
	sharpeEpsilon      = 1e-12
)

// Summary holds the headline statistics of a backtest.
type Summary struct {
	CAGRStrategy float64 `json:"cagr_strategy"`
	CAGRBuyHold  float64 `json:"cagr_buyhold"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

func (s Summary) AsMap() map[string]float64 {
	return map[string]float64{
		"cagr_strategy": s.CAGRStrategy,
		"cagr_buyhold":  s.CAGRBuyHold,
		"sharpe":        s.Sharpe,
		"max_drawdown":  s.MaxDrawdown,
	}
}

// Performance computes the summary over the whole table. An empty table yields a zero
// Summary.
func Performance(r *Result) Summary {
	if r == nil || len(r.Rows) == 0 {
		return Summary{}
	}
	first, last := r.Rows[0], r.Rows[len(r.Rows)-1]
	days := int(last.Date.Sub(first.Date).Hours() / 24)
	years := float64(max(days, 1)) / daysPerYear

	equity := r.Equity()
	return Summary{
		CAGRStrategy: cagr(last.StratCum, years),
		CAGRBuyHold:  cagr(last.BHCum, years),
		Sharpe:       sharpe(equity),
		MaxDrawdown:  maxDrawdown(equity),
	}
}

// cagr treats a wiped-out (non-positive) curve as a total loss.
func cagr(final, years float64) float64 {
	if years <= 0 {
		return 0
	}
	if final <= 0 {
		return -1
	}
	return math.Pow(final, 1/years) - 1
}

// sharpe is annualized from the equity curve's own period-over-period changes, not the
// per-step strategy returns. Fewer than two changes give 0.
func sharpe(equity []float64) float64 {
	rets := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		r := equity[i]/equity[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		rets = append(rets, r)
	}
	if len(rets) < 2 {
		return 0
	}
	mean, std := ta.MeanStd(rets)
	return math.Sqrt(tradingDaysPerYear) * mean / (std + sharpeEpsilon)
}

func maxDrawdown(equity []float64) float64 {
	mdd := 0.0
	peak := math.Inf(-1)
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := v/peak - 1; dd < mdd {
			mdd = dd
		}
	}
	return mdd
}
