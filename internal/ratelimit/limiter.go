// Package ratelimit implements a fixed-window request counter per client key.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key inside fixed windows.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New returns an empty limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock returns a limiter reading time from now.
func NewWithClock(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// Allow records one request for key and reports whether it is within max
// requests for the current window.
func (l *Limiter) Allow(key string, max int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		l.buckets[key] = b
		return Decision{Allowed: true, Remaining: max - 1, ResetAt: b.resetAt}
	}

	if b.count >= max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.resetAt}
	}

	b.count++
	return Decision{Allowed: true, Remaining: max - b.count, ResetAt: b.resetAt}
}

// Sweep drops buckets whose window has ended.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps on every tick until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// ClientKey derives the limiter key from the first X-Forwarded-For entry.
func ClientKey(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return "unknown"
	}
	first := strings.TrimSpace(strings.Split(fwd, ",")[0])
	if first == "" {
		return "unknown"
	}
	return first
}
