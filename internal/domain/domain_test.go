package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestPositionDirection(t *testing.T) {
	if PositionLong.Direction() != DirectionLong || PositionShort.Direction() != DirectionShort || PositionFlat.Direction() != DirectionFlat {
		t.Fatalf("unexpected directions: %s %s %s", PositionLong.Direction(), PositionShort.Direction(), PositionFlat.Direction())
	}
}

func TestValidateBars(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []PriceBar{
		{Date: day, Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
		{Date: day.AddDate(0, 0, 1), Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
	}
	if err := ValidateBars(bars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := append([]PriceBar(nil), bars...)
	dup[1].Date = day
	if err := ValidateBars(dup); !errors.Is(err, ErrInvalidBars) {
		t.Fatalf("expected ErrInvalidBars for duplicate date, got %v", err)
	}

	nan := append([]PriceBar(nil), bars...)
	nan[0].Close = math.NaN()
	if err := ValidateBars(nan); !errors.Is(err, ErrInvalidBars) {
		t.Fatalf("expected ErrInvalidBars for NaN close, got %v", err)
	}

	inf := math.Inf(1)
	adj := append([]PriceBar(nil), bars...)
	adj[1].AdjClose = &inf
	if err := ValidateBars(adj); !errors.Is(err, ErrInvalidBars) {
		t.Fatalf("expected ErrInvalidBars for infinite adj_close, got %v", err)
	}
}

func TestSortAndDedupeKeepsLast(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []PriceBar{
		{Date: day.AddDate(0, 0, 2), Close: 3, Volume: 1},
		{Date: day, Close: 1, Volume: 1},
		{Date: day.AddDate(0, 0, 1), Close: math.NaN(), Volume: 1},
		{Date: day, Close: 1.5, Volume: 1},
	}
	out := SortAndDedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(out))
	}
	if out[0].Close != 1.5 {
		t.Fatalf("expected last duplicate to win, got %.2f", out[0].Close)
	}
	if !out[1].Date.Equal(day.AddDate(0, 0, 2)) {
		t.Fatalf("expected ascending order, got %s", out[1].Date)
	}
	if err := ValidateBars(out); err != nil {
		t.Fatalf("sanitized bars should validate: %v", err)
	}
}

func TestSortAndDedupeDropsIncompleteBars(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	nan := math.NaN()
	in := []PriceBar{
		{Date: day, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1},
		{Date: day.AddDate(0, 0, 1), Open: 1, High: nan, Low: 0.5, Close: 1.5, Volume: 1},
		{Date: day.AddDate(0, 0, 2), Open: 1, High: 2, Low: math.Inf(-1), Close: 1.5, Volume: 1},
		{Date: day.AddDate(0, 0, 3), Open: nan, High: 2, Low: 0.5, Close: 1.5, Volume: 1},
		{Date: day.AddDate(0, 0, 4), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1, AdjClose: &nan},
	}
	out := SortAndDedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 complete bars, got %d: %+v", len(out), out)
	}
	if out[1].AdjClose != nil {
		t.Fatalf("expected non-finite adj_close to be cleared, got %v", *out[1].AdjClose)
	}
	if err := ValidateBars(out); err != nil {
		t.Fatalf("sanitized bars should validate: %v", err)
	}
}
