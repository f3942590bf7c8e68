package features

import (
	"fmt"
	"math"
	"time"

	"trendr/internal/domain"
)

// Matrix is the feature table for one bar series. Rows, Dates, Close and Target are
// row-aligned and sorted by date.
type Matrix struct {
	SchemaVersion string
	Columns       []string
	Dates         []time.Time
	Close         []float64
	Rows          [][]float64
	Target        []int
}

// Build turns an ascending, de-duplicated bar series into a feature matrix. Rows with any
// undefined input window, the final unlabeled bar and rows holding non-finite values are
// dropped.
func Build(bars []domain.PriceBar, schema Schema) (*Matrix, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateBars(bars); err != nil {
		return nil, err
	}

	in := newInputs(bars)
	cols := make([][]float64, len(schema.Columns))
	for j, c := range schema.Columns {
		cols[j] = c.Compute(in)
		if len(cols[j]) != len(bars) {
			return nil, fmt.Errorf("%w: column %s produced %d values for %d bars", ErrSchemaMismatch, c.Name, len(cols[j]), len(bars))
		}
	}

	m := &Matrix{
		SchemaVersion: schema.Version,
		Columns:       schema.Names(),
	}
	for i := 0; i < len(bars)-1; i++ {
		row := make([]float64, len(cols))
		ok := true
		for j := range cols {
			v := cols[j][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
			row[j] = v
		}
		if !ok {
			continue
		}
		target := 0
		if bars[i+1].Close > bars[i].Close {
			target = 1
		}
		m.Dates = append(m.Dates, bars[i].Date)
		m.Close = append(m.Close, bars[i].Close)
		m.Rows = append(m.Rows, row)
		m.Target = append(m.Target, target)
	}
	return m, nil
}

func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// X returns the feature rows.
func (m *Matrix) X() [][]float64 { return m.Rows }

// Y returns the labels as floats for the classifier trainers.
func (m *Matrix) Y() []float64 {
	out := make([]float64, len(m.Target))
	for i, t := range m.Target {
		out[i] = float64(t)
	}
	return out
}

// Validate checks that the matrix was produced by schema and is internally consistent.
func (m *Matrix) Validate(schema Schema) error {
	if m == nil {
		return fmt.Errorf("%w: nil matrix", ErrSchemaMismatch)
	}
	if m.SchemaVersion != schema.Version {
		return fmt.Errorf("%w: matrix version %s, schema version %s", ErrSchemaMismatch, m.SchemaVersion, schema.Version)
	}
	names := schema.Names()
	if len(m.Columns) != len(names) {
		return fmt.Errorf("%w: %d columns, schema has %d", ErrSchemaMismatch, len(m.Columns), len(names))
	}
	for i := range names {
		if m.Columns[i] != names[i] {
			return fmt.Errorf("%w: column %d is %s, want %s", ErrSchemaMismatch, i, m.Columns[i], names[i])
		}
	}
	n := len(m.Rows)
	if len(m.Dates) != n || len(m.Close) != n || len(m.Target) != n {
		return fmt.Errorf("%w: misaligned columns", ErrSchemaMismatch)
	}
	for i := range m.Rows {
		if len(m.Rows[i]) != len(names) {
			return fmt.Errorf("%w: row %d has %d values", ErrSchemaMismatch, i, len(m.Rows[i]))
		}
		if m.Target[i] != 0 && m.Target[i] != 1 {
			return fmt.Errorf("%w: row %d target %d", ErrSchemaMismatch, i, m.Target[i])
		}
		if i > 0 && !m.Dates[i].After(m.Dates[i-1]) {
			return fmt.Errorf("%w: row %d out of order", ErrSchemaMismatch, i)
		}
	}
	return nil
}

// Slice returns rows [from, to) sharing the underlying arrays.
func (m *Matrix) Slice(from, to int) *Matrix {
	return &Matrix{
		SchemaVersion: m.SchemaVersion,
		Columns:       m.Columns,
		Dates:         m.Dates[from:to],
		Close:         m.Close[from:to],
		Rows:          m.Rows[from:to],
		Target:        m.Target[from:to],
	}
}

// SplitByDays holds out the last testDays calendar days: train rows are dated on or
// before the cutoff, test rows after it.
func (m *Matrix) SplitByDays(testDays int) (train, test *Matrix) {
	if m.Len() == 0 {
		return m.Slice(0, 0), m.Slice(0, 0)
	}
	cutoff := m.Dates[len(m.Dates)-1].AddDate(0, 0, -testDays)
	idx := len(m.Dates)
	for i, d := range m.Dates {
		if d.After(cutoff) {
			idx = i
			break
		}
	}
	return m.Slice(0, idx), m.Slice(idx, len(m.Dates))
}

// Tail returns the last n rows.
func (m *Matrix) Tail(n int) *Matrix {
	if n > m.Len() {
		n = m.Len()
	}
	return m.Slice(m.Len()-n, m.Len())
}

func nan() float64 { return math.NaN() }
