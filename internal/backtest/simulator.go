package backtest

import (
	"fmt"
	"time"

	"trendr/internal/domain"
)

// Row is one step of the backtest table.
type Row struct {
	Date     time.Time       `json:"date"`
	Close    float64         `json:"close"`
	Ret      float64         `json:"ret"`
	Position domain.Position `json:"position"`
	StratCum float64         `json:"strat_cum"`
	BHCum    float64         `json:"bh_cum"`
}

type Result struct {
	Params      Params  `json:"params"`
	Rows        []Row   `json:"rows"`
	CostCharged float64 `json:"cost_charged"`
	Trades      int     `json:"trades"`
}

// RawPositions maps probabilities to unlagged positions. Both thresholds are strict
// and short takes precedence when the bands overlap.
func RawPositions(probs []float64, p Params) []domain.Position {
	out := make([]domain.Position, len(probs))
	for i, prob := range probs {
		switch {
		case prob < p.ThresholdShort:
			out[i] = domain.PositionShort
		case prob > p.ThresholdLong:
			out[i] = domain.PositionLong
		}
	}
	return out
}

// Run simulates the strategy. The position decided from probs[t] is applied to the
// return realized between t and t+1, so the first applied position is always flat and
// probs[len-1] never trades.
func Run(dates []time.Time, closes, probs []float64, p Params) (*Result, error) {
	if len(dates) != len(closes) || len(closes) != len(probs) {
		return nil, fmt.Errorf("%w: %d dates, %d closes, %d probabilities", ErrLengthMismatch, len(dates), len(closes), len(probs))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	raw := RawPositions(probs, p)
	cost := p.costPerChange()
	res := &Result{Params: p, Rows: make([]Row, len(closes))}

	stratCum, bhCum := 1.0, 1.0
	prev := domain.PositionFlat
	for t := range closes {
		ret := 0.0
		pos := domain.PositionFlat
		if t > 0 {
			ret = closes[t]/closes[t-1] - 1
			pos = raw[t-1]
		}
		charge := 0.0
		if pos != prev {
			charge = cost
			res.Trades++
			res.CostCharged += charge
		}
		stratCum *= 1 + float64(pos)*ret - charge
		bhCum *= 1 + ret
		res.Rows[t] = Row{
			Date:     dates[t],
			Close:    closes[t],
			Ret:      ret,
			Position: pos,
			StratCum: stratCum,
			BHCum:    bhCum,
		}
		prev = pos
	}
	return res, nil
}

// Equity returns the strategy equity curve.
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.StratCum
	}
	return out
}
