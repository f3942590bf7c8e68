package repository

import (
	"context"
	"time"

	"trendr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BarRepository is the local price history store. Bars are keyed by
// (symbol, interval, date) so re-downloads overwrite in place.
type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

func (r *BarRepository) UpsertBars(ctx context.Context, symbol, interval string, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("bars", len(bars)))

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO price_bars (symbol, interval, bar_date, open, high, low, close, adj_close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (symbol, interval, bar_date) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     adj_close = EXCLUDED.adj_close,
			     volume = EXCLUDED.volume`,
			symbol, interval, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetBars returns bars dated on or after from, oldest first. A zero from loads the
// full history.
func (r *BarRepository) GetBars(ctx context.Context, symbol, interval string, from time.Time) ([]domain.PriceBar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT bar_date, open, high, low, close, adj_close, volume
		 FROM price_bars
		 WHERE symbol = $1 AND interval = $2 AND bar_date >= $3
		 ORDER BY bar_date ASC`,
		symbol, interval, from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		var b domain.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, err
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (r *BarRepository) LatestBarDate(ctx context.Context, symbol, interval string) (time.Time, bool, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.latest-bar-date")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT bar_date FROM price_bars WHERE symbol = $1 AND interval = $2 ORDER BY bar_date DESC LIMIT 1`,
		symbol, interval,
	)
	if err != nil {
		return time.Time{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return time.Time{}, false, rows.Err()
	}
	var ts time.Time
	if err := rows.Scan(&ts); err != nil {
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}
