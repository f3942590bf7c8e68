package features

import (
	"errors"
	"fmt"
	"time"

	"trendr/internal/domain"
	"trendr/internal/ta"
)

const (
	SchemaVersionV1 = "v1"
	TargetColumn    = "target"

	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbPeriod   = 20
	bbStdDevs  = 2.0
)

var (
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	ErrMissingColumn  = errors.New("missing required column")
)

// Inputs is the column view of a bar series that feature computations read from.
type Inputs struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	memo map[string][]float64
}

func newInputs(bars []domain.PriceBar) *Inputs {
	in := &Inputs{
		Dates:  make([]time.Time, len(bars)),
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
		memo:   make(map[string][]float64),
	}
	for i, b := range bars {
		in.Dates[i] = b.Date
		in.Open[i] = b.Open
		in.High[i] = b.High
		in.Low[i] = b.Low
		in.Close[i] = b.Close
		in.Volume[i] = b.Volume
	}
	return in
}

// Series memoizes a derived series so columns sharing an intermediate compute it once.
func (in *Inputs) Series(key string, compute func() []float64) []float64 {
	if s, ok := in.memo[key]; ok {
		return s
	}
	s := compute()
	in.memo[key] = s
	return s
}

// Column is one named computation producing a value per input bar (NaN when undefined).
type Column struct {
	Name    string
	Compute func(in *Inputs) []float64
}

// Schema is an ordered, versioned list of feature computations.
type Schema struct {
	Version string
	Columns []Column
}

func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

func (s Schema) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("%w: empty version", ErrSchemaMismatch)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrSchemaMismatch)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" || c.Compute == nil {
			return fmt.Errorf("%w: incomplete column %q", ErrSchemaMismatch, c.Name)
		}
		if c.Name == TargetColumn {
			return fmt.Errorf("%w: %q is reserved", ErrSchemaMismatch, TargetColumn)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// DefaultSchema is the 19-column v1 feature set.
func DefaultSchema() Schema {
	return Schema{
		Version: SchemaVersionV1,
		Columns: []Column{
			{Name: "ret_1", Compute: returns(1)},
			{Name: "ret_5", Compute: returns(5)},
			{Name: "ret_10", Compute: returns(10)},
			{Name: "vol_10", Compute: volatility(10)},
			{Name: "vol_20", Compute: volatility(20)},
			{Name: "sma_10", Compute: sma(10)},
			{Name: "sma_20", Compute: sma(20)},
			{Name: "ema_12", Compute: ema(macdFast)},
			{Name: "ema_26", Compute: ema(macdSlow)},
			{Name: "sma_ratio_10_20", Compute: smaRatio},
			{Name: "roc_10", Compute: returns(10)},
			{Name: "rsi_14", Compute: func(in *Inputs) []float64 { return ta.RSISeries(in.Close, rsiPeriod) }},
			{Name: "macd", Compute: macdPart(0)},
			{Name: "macd_sig", Compute: macdPart(1)},
			{Name: "macd_hist", Compute: macdPart(2)},
			{Name: "bb_width", Compute: func(in *Inputs) []float64 { return ta.BollingerWidth(in.Close, bbPeriod, bbStdDevs) }},
			{Name: "true_range", Compute: trueRange},
			{Name: "dayofweek", Compute: dayOfWeek},
			{Name: "month", Compute: month},
		},
	}
}

func returns(lag int) func(*Inputs) []float64 {
	return func(in *Inputs) []float64 {
		return in.Series(fmt.Sprintf("ret_%d", lag), func() []float64 { return ta.PctChange(in.Close, lag) })
	}
}

func volatility(window int) func(*Inputs) []float64 {
	return func(in *Inputs) []float64 {
		return ta.RollingStd(returns(1)(in), window)
	}
}

func sma(window int) func(*Inputs) []float64 {
	return func(in *Inputs) []float64 {
		return in.Series(fmt.Sprintf("sma_%d", window), func() []float64 { return ta.RollingMean(in.Close, window) })
	}
}

func ema(span int) func(*Inputs) []float64 {
	return func(in *Inputs) []float64 {
		return in.Series(fmt.Sprintf("ema_%d", span), func() []float64 { return ta.EMASeries(in.Close, span) })
	}
}

func smaRatio(in *Inputs) []float64 {
	fast := sma(10)(in)
	slow := sma(20)(in)
	out := make([]float64, len(in.Close))
	for i := range out {
		out[i] = fast[i] / (slow[i] + ta.Epsilon)
	}
	return out
}

func macdPart(part int) func(*Inputs) []float64 {
	return func(in *Inputs) []float64 {
		line := in.Series("macd", func() []float64 {
			l, s, h := ta.MACDSeries(in.Close, macdFast, macdSlow, macdSignal)
			in.memo["macd_sig"] = s
			in.memo["macd_hist"] = h
			return l
		})
		switch part {
		case 1:
			return in.memo["macd_sig"]
		case 2:
			return in.memo["macd_hist"]
		default:
			return line
		}
	}
}

// trueRange is (high-low) over the previous close; undefined on the first bar.
func trueRange(in *Inputs) []float64 {
	out := make([]float64, len(in.Close))
	for i := range out {
		if i == 0 {
			out[i] = nan()
			continue
		}
		out[i] = (in.High[i] - in.Low[i]) / (in.Close[i-1] + ta.Epsilon)
	}
	return out
}

// dayOfWeek counts Monday as 0 and Sunday as 6.
func dayOfWeek(in *Inputs) []float64 {
	out := make([]float64, len(in.Dates))
	for i, d := range in.Dates {
		out[i] = float64((int(d.Weekday()) + 6) % 7)
	}
	return out
}

func month(in *Inputs) []float64 {
	out := make([]float64, len(in.Dates))
	for i, d := range in.Dates {
		out[i] = float64(d.Month())
	}
	return out
}
