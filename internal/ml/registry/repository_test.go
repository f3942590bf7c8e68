package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trendr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int64:
			*d = r.values[i].(int64)
		case *int:
			*d = r.values[i].(int)
		case *string:
			*d = r.values[i].(string)
		case *time.Time:
			*d = r.values[i].(time.Time)
		case *[]byte:
			*d = r.values[i].([]byte)
		}
	}
	return nil
}

type fakePool struct {
	lastSQL  string
	lastArgs []any
	row      fakeRow
	execSQL  []string
}

func (p *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (p *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.lastSQL = sql
	p.lastArgs = args
	return p.row
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func newRepo(p *fakePool) *Repository {
	return NewRepository(p, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestLatestNotFound(t *testing.T) {
	repo := newRepo(&fakePool{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.Latest(context.Background(), "ETH-USD", "1d", "gbc")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestLatestScansArtifact(t *testing.T) {
	local := time.FixedZone("X", 3600)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, local)
	p := &fakePool{row: fakeRow{values: []any{
		int64(7), "ETH-USD", "1d", "gbc", 3, "v1",
		ts, ts, `{"acc_test":0.5}`, "json/trendr-envelope-v1", []byte("blob"), ts,
	}}}
	a, err := newRepo(p).Latest(context.Background(), "ETH-USD", "1d", "gbc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != 7 || a.Version != 3 || string(a.Blob) != "blob" {
		t.Fatalf("unexpected artifact %+v", a)
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps")
	}
	if !strings.Contains(p.lastSQL, "ORDER BY version DESC") || p.lastArgs[2] != "gbc" {
		t.Fatalf("unexpected query %q %v", p.lastSQL, p.lastArgs)
	}
}

func TestInsertModelValidatesPayload(t *testing.T) {
	repo := newRepo(&fakePool{})
	if _, err := repo.InsertModel(context.Background(), domain.ModelArtifact{Symbol: "ETH-USD"}); err == nil {
		t.Fatal("expected validation error")
	}
}

