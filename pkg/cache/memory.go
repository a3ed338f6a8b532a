package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// maxMemoryTTL applies when Set is called without an expiration.
const maxMemoryTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	key      string
	data     []byte
	expireAt time.Time
}

type memoryLock struct {
	token    string
	expireAt time.Time
}

// MemoryCache is an in-process Service with LRU eviction. Locks live in
// their own map and only leave it by Unlock or expiry.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front is most recently used
	items   map[string]*list.Element
	locks   map[string]memoryLock
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryCache, *time.Duration)

// WithMemoryMaxSize bounds the number of entries.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(mc *MemoryCache, _ *time.Duration) {
		if size > 0 {
			mc.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(_ *MemoryCache, every *time.Duration) {
		if interval > 0 {
			*every = interval
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		maxSize: 1000,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		locks:   make(map[string]memoryLock),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	sweep := 5 * time.Minute
	for _, opt := range opts {
		opt(mc, &sweep)
	}
	go mc.sweepEvery(sweep)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = maxMemoryTTL
	}
	mc.mu.Lock()
	mc.put(key, data, mc.now().Add(expiration))
	mc.mu.Unlock()
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e := mc.live(key)
	if e == nil {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(e)
	data := e.Value.(*memoryEntry).data
	mc.mu.Unlock()
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		mc.remove(k)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k := range mc.items {
		if ok, _ := path.Match(pattern, k); ok {
			mc.remove(k)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if mc.live(k) != nil {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if l, ok := mc.locks[key]; ok && !now.After(l.expireAt) {
		return false, nil
	}
	mc.locks[key] = memoryLock{token: token, expireAt: now.Add(ttl)}
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	l, ok := mc.locks[key]
	if !ok || l.token != token || mc.now().After(l.expireAt) {
		return ErrLockNotHeld
	}
	delete(mc.locks, key)
	return nil
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) put(key string, data []byte, expireAt time.Time) {
	if e, ok := mc.items[key]; ok {
		ent := e.Value.(*memoryEntry)
		ent.data, ent.expireAt = data, expireAt
		mc.order.MoveToFront(e)
		return
	}
	for len(mc.items) >= mc.maxSize {
		oldest := mc.order.Back()
		if oldest == nil {
			break
		}
		mc.remove(oldest.Value.(*memoryEntry).key)
	}
	mc.items[key] = mc.order.PushFront(&memoryEntry{key: key, data: data, expireAt: expireAt})
}

// live returns the element for key, dropping it when expired.
func (mc *MemoryCache) live(key string) *list.Element {
	e, ok := mc.items[key]
	if !ok {
		return nil
	}
	if mc.now().After(e.Value.(*memoryEntry).expireAt) {
		mc.remove(key)
		return nil
	}
	return e
}

func (mc *MemoryCache) remove(key string) {
	if e, ok := mc.items[key]; ok {
		mc.order.Remove(e)
		delete(mc.items, key)
	}
}

func (mc *MemoryCache) sweepEvery(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
		}
		mc.mu.Lock()
		now := mc.now()
		for k, e := range mc.items {
			if now.After(e.Value.(*memoryEntry).expireAt) {
				mc.remove(k)
			}
		}
		for k, l := range mc.locks {
			if now.After(l.expireAt) {
				delete(mc.locks, k)
			}
		}
		mc.mu.Unlock()
	}
}
