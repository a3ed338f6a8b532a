package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type point struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCacheTyped(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, "prediction:AAPL:gru:2024-01-02", point{Symbol: "AAPL", Price: 190.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := GetTyped[point](ctx, mc, "prediction:AAPL:gru:2024-01-02")
	if err != nil || !ok || got.Price != 190.5 {
		t.Fatalf("unexpected %+v %v %v", got, ok, err)
	}
	if _, ok, _ := GetTyped[point](ctx, mc, "missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var s string
	if err := mc.Get(ctx, "k", &s); err != ErrCacheMiss {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "prediction:AAPL:gru:d1", 1, 0)
	_ = mc.Set(ctx, "prediction:AAPL:lstm:d1", 2, 0)
	_ = mc.Set(ctx, "prediction:MSFT:gru:d1", 3, 0)
	if err := mc.DeleteByPattern(ctx, "prediction:AAPL:gru:*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := mc.Exists(ctx, "prediction:AAPL:gru:d1"); ok {
		t.Fatalf("pattern key not deleted")
	}
	if ok, _ := mc.Exists(ctx, "prediction:AAPL:lstm:d1", "prediction:MSFT:gru:d1"); !ok {
		t.Fatalf("unrelated keys deleted")
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-1", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-2", time.Minute); ok {
		t.Fatalf("second lock should fail")
	}
	if err := mc.Unlock(ctx, "train:AAPL:GRU", "run-2"); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("unlock with a foreign token: %v", err)
	}
	if ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-2", time.Minute); ok {
		t.Fatalf("foreign unlock must not release the lock")
	}
	if err := mc.Unlock(ctx, "train:AAPL:GRU", "run-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-2", time.Minute); !ok {
		t.Fatalf("lock after unlock should succeed")
	}
}

func TestMemoryCacheLockExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	_, _ = mc.TryLock(ctx, "train:AAPL:GRU", "run-1", time.Minute)
	now = now.Add(2 * time.Minute)
	if ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-2", time.Minute); !ok {
		t.Fatalf("expired lock should be taken over")
	}
	// the first run finishing late must not free the second run's lock
	if err := mc.Unlock(ctx, "train:AAPL:GRU", "run-1"); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("late unlock: %v", err)
	}
	if ok, _ := mc.TryLock(ctx, "train:AAPL:GRU", "run-3", time.Minute); ok {
		t.Fatalf("second run lost its lock")
	}
}

func TestMemoryCacheLockSurvivesEviction(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(10))
	defer mc.Close()

	if ok, _ := mc.TryLock(ctx, "lock:train:AAPL:GRU", "run-1", time.Minute); !ok {
		t.Fatalf("first lock should succeed")
	}
	for i := 0; i < 100; i++ {
		_ = mc.Set(ctx, fmt.Sprintf("prediction:AAPL:gru:%d", i), "x", time.Hour)
	}
	if ok, _ := mc.TryLock(ctx, "lock:train:AAPL:GRU", "run-2", time.Minute); ok {
		t.Fatalf("filling the cache released a held lock")
	}
}

func TestMemoryCacheEvicts(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", 3, 0)
	if ok, _ := mc.Exists(ctx, "a"); ok {
		t.Fatalf("least recently used key should be evicted")
	}
}

func TestMemoryCacheGetRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, 0)
	_ = mc.Set(ctx, "b", 2, 0)
	var v int
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("get a: %d %v", v, err)
	}
	_ = mc.Set(ctx, "c", 3, 0)
	if ok, _ := mc.Exists(ctx, "a"); !ok {
		t.Fatalf("recently read key evicted")
	}
	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
}

func TestMemoryCacheBadPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	if err := mc.DeleteByPattern(context.Background(), "[a-"); err == nil {
		t.Fatalf("expected pattern error")
	}
}

func TestLayeredLocalTTL(t *testing.T) {
	lc := &LayeredCache{l1TTL: 30 * time.Second}
	if got := lc.localTTL(time.Hour); got != 30*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := lc.localTTL(time.Second); got != time.Second {
		t.Fatalf("got %s", got)
	}
	if got := lc.localTTL(0); got != 30*time.Second {
		t.Fatalf("got %s", got)
	}
}
