package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllow_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clock.Now)

	for i := 1; i <= 30; i++ {
		d := l.Allow("1.2.3.4", 30, time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if d.Remaining != 30-i {
			t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 30-i)
		}
	}

	d := l.Allow("1.2.3.4", 30, time.Minute)
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("31st request = %+v, want rejected with 0 remaining", d)
	}
	wantReset := clock.Now().Add(time.Minute)
	if !d.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, wantReset)
	}

	// Other clients are unaffected.
	if !l.Allow("5.6.7.8", 30, time.Minute).Allowed {
		t.Error("independent key should be allowed")
	}

	// At exactly resetAt the window is still closed.
	clock.Advance(time.Minute)
	if l.Allow("1.2.3.4", 30, time.Minute).Allowed {
		t.Error("request at resetAt should still be rejected")
	}

	clock.Advance(time.Millisecond)
	d = l.Allow("1.2.3.4", 30, time.Minute)
	if !d.Allowed || d.Remaining != 29 {
		t.Errorf("after window = %+v, want allowed with 29 remaining", d)
	}
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clock.Now)

	l.Allow("a", 5, time.Second)
	l.Allow("b", 5, time.Hour)
	clock.Advance(2 * time.Second)

	if removed := l.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", 30, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 30 {
		t.Errorf("allowed = %d, want 30", allowed)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "unknown"},
		{"single", "203.0.113.7", "203.0.113.7"},
		{"chain", " 203.0.113.7 , 10.0.0.1", "203.0.113.7"},
		{"blank first", " , 10.0.0.1", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("X-Forwarded-For", tt.header)
			}
			if got := ClientKey(req); got != tt.want {
				t.Errorf("ClientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
