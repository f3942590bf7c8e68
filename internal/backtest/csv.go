package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var tableHeader = []string{"date", "close", "ret", "position", "strat_cum", "bh_cum"}

func WriteCSV(w io.Writer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := []string{
			row.Date.UTC().Format(time.DateOnly),
			fmtFloat(row.Close),
			fmtFloat(row.Ret),
			strconv.Itoa(int(row.Position)),
			fmtFloat(row.StratCum),
			fmtFloat(row.BHCum),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 8, 64)
}
