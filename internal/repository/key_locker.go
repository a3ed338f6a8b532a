package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"StockCast/internal/domain/repository"
	"StockCast/pkg/cache"
)

// CacheLocker turns the cache's SET NX into a training lock. Backed by Redis
// it guards a key across processes; backed by the memory cache, within one.
// Every acquisition gets its own token so a run can only release its own lock.
type CacheLocker struct {
	c      cache.Service
	prefix string
}

func NewCacheLocker(c cache.Service) *CacheLocker {
	return &CacheLocker{c: c, prefix: "lock:"}
}

var _ repository.KeyLocker = (*CacheLocker)(nil)

func (l *CacheLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.c.TryLock(ctx, l.prefix+key, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (l *CacheLocker) Release(ctx context.Context, key, token string) error {
	return l.c.Unlock(ctx, l.prefix+key, token)
}
