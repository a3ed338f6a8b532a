package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per key. A bucket keeps the capacity and
// refill rate it was first requested with.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func New() *Limiter { return &Limiter{m: make(map[string]*rate.Limiter)} }

// Allow reports whether a token for key was available and takes it.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	return l.bucket(key, capacity, refillPerSec).Allow()
}

// Wait blocks until a token for key is available. It fails early when ctx
// would expire first.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	return l.bucket(key, capacity, refillPerSec).Wait(ctx)
}

func (l *Limiter) bucket(key string, capacity, refillPerSec float64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		burst := int(capacity)
		if burst < 1 {
			burst = 1
		}
		b = rate.NewLimiter(rate.Limit(refillPerSec), burst)
		l.m[key] = b
	}
	return b
}
