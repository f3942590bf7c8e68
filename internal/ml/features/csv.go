package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"trendr/internal/domain"
)

var barColumns = []string{"date", "open", "high", "low", "close", "adj_close", "volume"}

// WriteBarsCSV writes bars as date,open,high,low,close,adj_close,volume.
func WriteBarsCSV(w io.Writer, bars []domain.PriceBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(barColumns); err != nil {
		return err
	}
	for _, b := range bars {
		adj := ""
		if b.AdjClose != nil {
			adj = fmtFloat(*b.AdjClose)
		}
		if err := cw.Write([]string{
			fmtDate(b.Date),
			fmtFloat(b.Open),
			fmtFloat(b.High),
			fmtFloat(b.Low),
			fmtFloat(b.Close),
			adj,
			fmtFloat(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadBarsCSV reads a price table. adj_close is optional; the other columns are required.
// Rows come back sorted by date with duplicates resolved to the last occurrence.
func ReadBarsCSV(r io.Reader) ([]domain.PriceBar, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	for _, col := range barColumns {
		if col == "adj_close" {
			continue
		}
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var bars []domain.PriceBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := parseDate(rec[idx["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := domain.PriceBar{Date: date}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume},
		}
		for _, f := range fields {
			if *f.dst, err = parseFloat(rec[idx[f.name]]); err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, f.name, err)
			}
		}
		if j, ok := idx["adj_close"]; ok && strings.TrimSpace(rec[j]) != "" {
			v, err := parseFloat(rec[j])
			if err != nil {
				return nil, fmt.Errorf("line %d adj_close: %w", line, err)
			}
			b.AdjClose = &v
		}
		bars = append(bars, b)
	}
	return domain.SortAndDedupe(bars), nil
}

// WriteCSV writes date, close, the feature columns and target.
func WriteCSV(w io.Writer, m *Matrix) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date", "close"}, m.Columns...)
	header = append(header, TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range m.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, fmtDate(m.Dates[i]), fmtFloat(m.Close[i]))
		for _, v := range m.Rows[i] {
			rec = append(rec, fmtFloat(v))
		}
		rec = append(rec, strconv.Itoa(m.Target[i]))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a feature file written by WriteCSV and validates it against schema.
func ReadCSV(r io.Reader, schema Schema) (*Matrix, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := schema.Names()
	want := append([]string{"date", "close"}, names...)
	want = append(want, TargetColumn)
	if len(header) != len(want) {
		return nil, fmt.Errorf("%w: header has %d columns, want %d", ErrSchemaMismatch, len(header), len(want))
	}
	for i := range want {
		if strings.TrimSpace(header[i]) != want[i] {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, header[i], want[i])
		}
	}

	m := &Matrix{SchemaVersion: schema.Version, Columns: names}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := parseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closeVal, err := parseFloat(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d close: %w", line, err)
		}
		row := make([]float64, len(names))
		for j := range names {
			if row[j], err = parseFloat(rec[j+2]); err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, names[j], err)
			}
		}
		target, err := strconv.Atoi(strings.TrimSpace(rec[len(rec)-1]))
		if err != nil {
			return nil, fmt.Errorf("line %d target: %w", line, err)
		}
		m.Dates = append(m.Dates, date)
		m.Close = append(m.Close, closeVal)
		m.Rows = append(m.Rows, row)
		m.Target = append(m.Target, target)
	}
	if err := m.Validate(schema); err != nil {
		return nil, err
	}
	return m, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fmtDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
