package features

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"trendr/internal/domain"
)

func TestBuildDeterministic(t *testing.T) {
	bars := makeBars(120)
	a, err := Build(bars, DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b, err := Build(bars, DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if a.Len() == 0 || a.Len() != b.Len() {
		t.Fatalf("expected equal non-empty row counts, got %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Rows {
		for j := range a.Rows[i] {
			if math.Float64bits(a.Rows[i][j]) != math.Float64bits(b.Rows[i][j]) {
				t.Fatalf("row %d col %s differs: %v vs %v", i, a.Columns[j], a.Rows[i][j], b.Rows[i][j])
			}
		}
	}
}

func TestBuildColumnsFollowSchema(t *testing.T) {
	m, err := Build(makeBars(60), DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	want := []string{
		"ret_1", "ret_5", "ret_10", "vol_10", "vol_20",
		"sma_10", "sma_20", "ema_12", "ema_26", "sma_ratio_10_20",
		"roc_10", "rsi_14", "macd", "macd_sig", "macd_hist",
		"bb_width", "true_range", "dayofweek", "month",
	}
	if strings.Join(m.Columns, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected columns: %v", m.Columns)
	}
	if m.SchemaVersion != SchemaVersionV1 {
		t.Fatalf("expected schema version v1, got %s", m.SchemaVersion)
	}
	if err := m.Validate(DefaultSchema()); err != nil {
		t.Fatalf("matrix should validate against its schema: %v", err)
	}
}

func TestBuildDropsWarmupAndFinalRow(t *testing.T) {
	bars := makeBars(60)
	m, err := Build(bars, DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if m.Len() > 40 {
		t.Fatalf("expected at most 40 usable rows from 60 bars, got %d", m.Len())
	}
	if m.Len() != 39 {
		t.Fatalf("expected rows 20..58 to survive, got %d rows", m.Len())
	}
	if !m.Dates[0].Equal(bars[20].Date) {
		t.Fatalf("expected first row at bar 20, got %s", m.Dates[0])
	}
	if !m.Dates[m.Len()-1].Equal(bars[58].Date) {
		t.Fatalf("expected last labeled row at bar 58, got %s", m.Dates[m.Len()-1])
	}
}

func TestBuildTargetsAndCalendar(t *testing.T) {
	bars := makeBars(80)
	m, err := Build(bars, DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	byDate := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		byDate[b.Date] = i
	}
	dow := columnIndex(t, m, "dayofweek")
	mon := columnIndex(t, m, "month")
	ret1 := columnIndex(t, m, "ret_1")
	for r := range m.Rows {
		i := byDate[m.Dates[r]]
		want := 0
		if bars[i+1].Close > bars[i].Close {
			want = 1
		}
		if m.Target[r] != want {
			t.Fatalf("row %d target %d, want %d", r, m.Target[r], want)
		}
		if m.Rows[r][dow] != float64((int(bars[i].Date.Weekday())+6)%7) {
			t.Fatalf("row %d dayofweek %v", r, m.Rows[r][dow])
		}
		if m.Rows[r][mon] != float64(bars[i].Date.Month()) {
			t.Fatalf("row %d month %v", r, m.Rows[r][mon])
		}
		if got := bars[i].Close/bars[i-1].Close - 1; m.Rows[r][ret1] != got {
			t.Fatalf("row %d ret_1 %v, want %v", r, m.Rows[r][ret1], got)
		}
	}
	// 2024-01-01 is a Monday.
	if bars[0].Date.Weekday() != time.Monday {
		t.Fatalf("fixture should start on a Monday")
	}
}

func TestBuildConstantPrice(t *testing.T) {
	bars := makeBars(60)
	for i := range bars {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = 100, 100, 100, 100
	}
	m, err := Build(bars, DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if m.Len() == 0 {
		t.Fatal("expected rows after warm-up")
	}
	for _, name := range []string{"ret_1", "ret_5", "ret_10", "vol_10", "vol_20", "roc_10", "bb_width", "true_range"} {
		j := columnIndex(t, m, name)
		for r := range m.Rows {
			if m.Rows[r][j] != 0 {
				t.Fatalf("%s should be 0 for a flat series, got %v", name, m.Rows[r][j])
			}
		}
	}
	for r := range m.Target {
		if m.Target[r] != 0 {
			t.Fatalf("flat series never rises, got target %d", m.Target[r])
		}
	}
}

func TestBuildRejectsInvalidBars(t *testing.T) {
	bars := makeBars(30)
	bars[5].Date = bars[4].Date
	if _, err := Build(bars, DefaultSchema()); !errors.Is(err, domain.ErrInvalidBars) {
		t.Fatalf("expected ErrInvalidBars, got %v", err)
	}
}

func TestBuildAfterSanitizeSkipsIncompleteBar(t *testing.T) {
	bars := makeBars(80)
	bars[50].High = math.NaN()
	if _, err := Build(bars, DefaultSchema()); !errors.Is(err, domain.ErrInvalidBars) {
		t.Fatalf("expected raw bars to fail validation, got %v", err)
	}

	clean := domain.SortAndDedupe(bars)
	if len(clean) != 79 {
		t.Fatalf("expected 79 bars after sanitizing, got %d", len(clean))
	}
	m, err := Build(clean, DefaultSchema())
	if err != nil {
		t.Fatalf("build after sanitizing failed: %v", err)
	}
	if m.Len() == 0 {
		t.Fatal("expected feature rows")
	}
	for _, d := range m.Dates {
		if d.Equal(bars[50].Date) {
			t.Fatalf("incomplete bar %s leaked into the matrix", d)
		}
	}
}

func TestBuildRejectsBadSchema(t *testing.T) {
	schema := DefaultSchema()
	schema.Columns = append(schema.Columns, schema.Columns[0])
	if _, err := Build(makeBars(30), schema); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch for duplicate column, got %v", err)
	}
}

func TestValidateDetectsSchemaDrift(t *testing.T) {
	m, err := Build(makeBars(60), DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	other := DefaultSchema()
	other.Columns[0], other.Columns[1] = other.Columns[1], other.Columns[0]
	if err := m.Validate(other); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch for reordered schema, got %v", err)
	}
	other = DefaultSchema()
	other.Version = "v2"
	if err := m.Validate(other); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch for version drift, got %v", err)
	}
}

func TestSplitByDays(t *testing.T) {
	m, err := Build(makeBars(200), DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	train, test := m.SplitByDays(30)
	if train.Len()+test.Len() != m.Len() {
		t.Fatalf("split lost rows: %d + %d != %d", train.Len(), test.Len(), m.Len())
	}
	if test.Len() != 30 {
		t.Fatalf("expected 30 daily rows in the holdout, got %d", test.Len())
	}
	cutoff := m.Dates[m.Len()-1].AddDate(0, 0, -30)
	if train.Dates[train.Len()-1].After(cutoff) || !test.Dates[0].After(cutoff) {
		t.Fatalf("split not at cutoff %s", cutoff)
	}
}

func TestFeatureCSVRoundTrip(t *testing.T) {
	m, err := Build(makeBars(60), DefaultSchema())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := ReadCSV(&buf, DefaultSchema())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Len() != m.Len() || got.Rows[3][11] != m.Rows[3][11] || got.Target[5] != m.Target[5] {
		t.Fatalf("roundtrip changed data")
	}
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	in := "date,close,ret_1,target\n2024-01-01,1,0,1\n"
	if _, err := ReadCSV(strings.NewReader(in), DefaultSchema()); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReadBarsCSVRequiresColumns(t *testing.T) {
	in := "date,open,high,low,volume\n2024-01-01,1,1,1,10\n"
	if _, err := ReadBarsCSV(strings.NewReader(in)); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}

	in = "Date,Open,High,Low,Close,Volume\n2024-01-02,2,2,2,2,10\n2024-01-01,1,1,1,1,10\n"
	bars, err := ReadBarsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 1 || bars[0].AdjClose != nil {
		t.Fatalf("unexpected bars: %+v", bars)
	}

	in = "date,open,high,low,close,volume\n2024-01-01,1,1,1,1,10\n2024-01-02,2,NaN,2,2,10\n"
	bars, err = ReadBarsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected the NaN-high row to drop, got %+v", bars)
	}
}

func columnIndex(t *testing.T, m *Matrix, name string) int {
	t.Helper()
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	t.Fatalf("column %s not found", name)
	return -1
}

func makeBars(n int) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 0.5*float64(i) + 3*math.Sin(float64(i)/3)
		out = append(out, domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   price - 0.2,
			High:   price + 0.8,
			Low:    price - 0.9,
			Close:  price,
			Volume: 1000 + float64(i*10),
		})
	}
	return out
}
