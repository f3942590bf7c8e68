package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestConnectWithCustomAddr(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return nil
	}

	if _, err := Connect(context.Background(), "redis:9999", zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedAddr != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", capturedAddr)
	}

	if _, err := Connect(context.Background(), "", zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedAddr != "localhost:6379" {
		t.Fatalf("expected default addr, got %s", capturedAddr)
	}

	if _, err := Connect(context.Background(), "redis://user:pw@cache:6380/2", zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedAddr != "cache:6380" {
		t.Fatalf("expected parsed url addr, got %s", capturedAddr)
	}
}

func TestConnectPingFailure(t *testing.T) {
	origPing := pingRedis
	t.Cleanup(func() { pingRedis = origPing })
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return errors.New("refused")
	}

	if _, err := Connect(context.Background(), "redis:1", zerolog.Nop()); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestCacheJSON(t *testing.T) {
	store := newFakeStore()
	c := New(store, "trendr")
	ctx := context.Background()

	type payload struct {
		Sharpe float64 `json:"sharpe"`
	}

	var got payload
	if err := c.GetJSON(ctx, "summary:ETH-USD", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	if err := c.SetJSON(ctx, "summary:ETH-USD", payload{Sharpe: 1.25}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if store.ttls["trendr:summary:ETH-USD"] != time.Minute {
		t.Fatalf("expected prefixed key with ttl, got %v", store.ttls)
	}
	if err := c.GetJSON(ctx, "summary:ETH-USD", &got); err != nil || got.Sharpe != 1.25 {
		t.Fatalf("unexpected get: %+v %v", got, err)
	}

	if err := c.Delete(ctx, "summary:ETH-USD"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.GetJSON(ctx, "summary:ETH-USD", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	var v int
	if err := c.GetJSON(context.Background(), "k", &v); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.SetJSON(context.Background(), "k", 1, 0); err != nil {
		t.Fatalf("expected no-op set, got %v", err)
	}
}
