package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiter keeps one token bucket per identity.
type limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[int64]*rate.Limiter
}

func newLimiter(rps float64, burst int) *limiter {
	if burst <= 0 {
		burst = 1
	}
	return &limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[int64]*rate.Limiter),
	}
}

func (l *limiter) allow(id int64) bool {
	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[id] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

func (l *limiter) forget(id int64) {
	l.mu.Lock()
	delete(l.buckets, id)
	l.mu.Unlock()
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
