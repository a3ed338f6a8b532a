package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// ErrLockNotHeld is returned by Unlock when the lock expired or another
// owner holds it.
var ErrLockNotHeld = errors.New("cache: lock not held")

// Service is the key/value store behind prediction caching and training
// locks. Values round-trip through JSON; strings are stored as they are.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes keys matching a glob such as "prediction:AAPL:*".
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock takes key for token only if no one holds it. The lock expires
	// after ttl. Locks never share eviction with cached values.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock releases key only while token still owns it.
	Unlock(ctx context.Context, key, token string) error
	Close() error
}

// GetTyped reads key into a new T. ok is false on a miss.
func GetTyped[T any](ctx context.Context, c Service, key string) (T, bool, error) {
	var out T
	err := c.Get(ctx, key, &out)
	if errors.Is(err, ErrCacheMiss) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}
