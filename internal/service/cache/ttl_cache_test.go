package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[int]()
	c.now = func() time.Time { return now }

	c.Set("AAPL:GRU", 1, time.Minute)
	c.Set("AAPL:LSTM", 2, 0)
	if v, ok := c.Get("AAPL:GRU"); !ok || v != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("AAPL:GRU"); ok {
		t.Fatalf("expected expiry")
	}
	if _, ok := c.Get("AAPL:LSTM"); !ok {
		t.Fatalf("zero ttl should not expire")
	}
}

func TestTTLCacheDeletePrefix(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("AAPL:GRU", "a", 0)
	c.Set("AAPL:LSTM", "b", 0)
	c.Set("MSFT:GRU", "c", 0)

	if n := c.DeletePrefix("AAPL:"); n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 left, got %d", c.Len())
	}
	c.Delete("MSFT:GRU")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
}
