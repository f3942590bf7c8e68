package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidBars marks a price series that violates the bar invariants.
var ErrInvalidBars = errors.New("invalid price bars")

// PriceBar represents a single OHLCV bar for a symbol at a given interval.
type PriceBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose *float64  `json:"adj_close,omitempty"`
	Volume   float64   `json:"volume"`
}

// ValidateBars checks that dates are strictly increasing and every numeric field is finite.
func ValidateBars(bars []PriceBar) error {
	for i := range bars {
		b := bars[i]
		if b.Date.IsZero() {
			return fmt.Errorf("%w: bar %d has no date", ErrInvalidBars, i)
		}
		if !finite(b.Open, b.High, b.Low, b.Close, b.Volume) {
			return fmt.Errorf("%w: bar %d (%s) has non-finite values", ErrInvalidBars, i, b.Date.Format(time.DateOnly))
		}
		if b.AdjClose != nil && !finite(*b.AdjClose) {
			return fmt.Errorf("%w: bar %d (%s) has non-finite adj_close", ErrInvalidBars, i, b.Date.Format(time.DateOnly))
		}
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return fmt.Errorf("%w: bar %d (%s) is not after %s", ErrInvalidBars, i,
				b.Date.Format(time.DateOnly), bars[i-1].Date.Format(time.DateOnly))
		}
	}
	return nil
}

// SortAndDedupe drops bars with any non-finite OHLCV field, sorts by date and keeps
// the last bar seen for any repeated date. A non-finite adj_close is cleared rather
// than dropping the bar.
func SortAndDedupe(in []PriceBar) []PriceBar {
	out := make([]PriceBar, 0, len(in))
	for _, b := range in {
		if b.Date.IsZero() || !finite(b.Open, b.High, b.Low, b.Close, b.Volume) {
			continue
		}
		if b.AdjClose != nil && !finite(*b.AdjClose) {
			b.AdjClose = nil
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	deduped := out[:0]
	for i := range out {
		if i+1 < len(out) && out[i+1].Date.Equal(out[i].Date) {
			continue
		}
		deduped = append(deduped, out[i])
	}
	return deduped
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
