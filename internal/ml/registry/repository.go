package registry

import (
	"context"
	"errors"
	"fmt"

	"trendr/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

var ErrModelNotFound = errors.New("model not found")

const selectArtifact = `
SELECT id, symbol, interval, model_key, version, schema_version,
       trained_from, trained_to, metrics_json::text,
       artifact_format, artifact_blob, created_at
FROM model_artifacts`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores trained model artifacts per symbol, interval and model name.
// Versions increase monotonically; the latest version is the one served.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) NextVersion(ctx context.Context, symbol, interval, modelKey string) (int, error) {
	_, span := r.tracer.Start(ctx, "model-registry.next-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_artifacts WHERE symbol = $1 AND interval = $2 AND model_key = $3`,
		symbol, interval, modelKey,
	).Scan(&version)
	return version, err
}

func (r *Repository) InsertModel(ctx context.Context, a domain.ModelArtifact) (*domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.insert")
	defer span.End()

	if err := validateArtifact(a); err != nil {
		return nil, err
	}
	metrics := a.MetricsJSON
	if metrics == "" {
		metrics = "{}"
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO model_artifacts (
    symbol, interval, model_key, version, schema_version,
    trained_from, trained_to, metrics_json, artifact_format, artifact_blob
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, symbol, interval, model_key, version, schema_version,
          trained_from, trained_to, metrics_json::text,
          artifact_format, artifact_blob, created_at`,
		a.Symbol, a.Interval, a.ModelKey, a.Version, a.SchemaVersion,
		a.TrainedFrom.UTC(), a.TrainedTo.UTC(), metrics, a.ArtifactFormat, a.Blob,
	)
	out, err := scanArtifact(row)
	if err != nil {
		return nil, fmt.Errorf("insert model artifact: %w", err)
	}
	return out, nil
}

// Latest returns the newest version, or ErrModelNotFound when none was trained.
func (r *Repository) Latest(ctx context.Context, symbol, interval, modelKey string) (*domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.latest")
	defer span.End()

	row := r.pool.QueryRow(ctx, selectArtifact+`
WHERE symbol = $1 AND interval = $2 AND model_key = $3
ORDER BY version DESC
LIMIT 1`, symbol, interval, modelKey)
	out, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s %s", ErrModelNotFound, symbol, interval, modelKey)
	}
	return out, err
}

// List returns artifact metadata for a symbol, newest first. Blobs are omitted.
func (r *Repository) List(ctx context.Context, symbol, interval string) ([]domain.ModelArtifact, error) {
	_, span := r.tracer.Start(ctx, "model-registry.list")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT id, symbol, interval, model_key, version, schema_version,
       trained_from, trained_to, metrics_json::text,
       artifact_format, created_at
FROM model_artifacts
WHERE symbol = $1 AND interval = $2
ORDER BY created_at DESC, version DESC`, symbol, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModelArtifact
	for rows.Next() {
		var a domain.ModelArtifact
		if err := rows.Scan(
			&a.ID, &a.Symbol, &a.Interval, &a.ModelKey, &a.Version, &a.SchemaVersion,
			&a.TrainedFrom, &a.TrainedTo, &a.MetricsJSON, &a.ArtifactFormat, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		normalizeTimes(&a)
		out = append(out, a)
	}
	return out, rows.Err()
}

var ErrInvalidArtifact = errors.New("invalid model artifact payload")

func validateArtifact(a domain.ModelArtifact) error {
	if a.Symbol == "" || a.ModelKey == "" || a.Version <= 0 || len(a.Blob) == 0 {
		return ErrInvalidArtifact
	}
	return nil
}

func scanArtifact(row pgx.Row) (*domain.ModelArtifact, error) {
	var a domain.ModelArtifact
	if err := row.Scan(
		&a.ID, &a.Symbol, &a.Interval, &a.ModelKey, &a.Version, &a.SchemaVersion,
		&a.TrainedFrom, &a.TrainedTo, &a.MetricsJSON, &a.ArtifactFormat, &a.Blob, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	normalizeTimes(&a)
	return &a, nil
}

func normalizeTimes(a *domain.ModelArtifact) {
	a.TrainedFrom = a.TrainedFrom.UTC()
	a.TrainedTo = a.TrainedTo.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
}
