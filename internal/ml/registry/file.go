package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"trendr/internal/domain"
)

var versionSuffix = regexp.MustCompile(`_v([0-9]+)\.json$`)

// FileStore keeps model artifacts as JSON files under dir, one file per version.
// It serves the CLI when no database is configured.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (f *FileStore) prefix(symbol, interval, modelKey string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(symbol)
	return fmt.Sprintf("model_%s_%s_%s", clean, interval, modelKey)
}

func (f *FileStore) versions(symbol, interval, modelKey string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, f.prefix(symbol, interval, modelKey)+"_v*.json"))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, m := range matches {
		sub := versionSuffix.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		v, err := strconv.Atoi(sub[1])
		if err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *FileStore) NextVersion(ctx context.Context, symbol, interval, modelKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextLocked(symbol, interval, modelKey)
}

func (f *FileStore) nextLocked(symbol, interval, modelKey string) (int, error) {
	vs, err := f.versions(symbol, interval, modelKey)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, v := range vs {
		if v >= next {
			next = v + 1
		}
	}
	return next, nil
}

func (f *FileStore) InsertModel(ctx context.Context, a domain.ModelArtifact) (*domain.ModelArtifact, error) {
	if err := validateArtifact(a); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	existing, err := f.versions(a.Symbol, a.Interval, a.ModelKey)
	if err != nil {
		return nil, err
	}
	for _, v := range existing {
		if v == a.Version {
			return nil, fmt.Errorf("model %s %s %s version %d already stored", a.Symbol, a.Interval, a.ModelKey, a.Version)
		}
	}
	a.ID = int64(a.Version)
	a.CreatedAt = f.now().UTC()
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s_v%d.json", f.prefix(a.Symbol, a.Interval, a.ModelKey), a.Version))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write model artifact: %w", err)
	}
	return &a, nil
}

func (f *FileStore) Latest(ctx context.Context, symbol, interval, modelKey string) (*domain.ModelArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := f.nextLocked(symbol, interval, modelKey)
	if err != nil {
		return nil, err
	}
	if next == 1 {
		return nil, fmt.Errorf("%w: %s %s %s", ErrModelNotFound, symbol, interval, modelKey)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s_v%d.json", f.prefix(symbol, interval, modelKey), next-1))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a domain.ModelArtifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	normalizeTimes(&a)
	return &a, nil
}
