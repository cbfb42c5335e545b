package cache

import (
	"testing"
	"time"
)

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStoreWithClock(func() time.Time { return now })

	store.Set(Key("headers", "https://example.com"), "v1", 10*time.Minute)

	if v, ok := store.Get("headers:https://example.com"); !ok || v != "v1" {
		t.Fatalf("Get() = %v, %v; want v1, true", v, ok)
	}

	// Expiry is strict: still valid at exactly expiresAt.
	now = now.Add(10 * time.Minute)
	if _, ok := store.Get("headers:https://example.com"); !ok {
		t.Error("entry should be valid at expiresAt")
	}

	now = now.Add(time.Millisecond)
	if _, ok := store.Get("headers:https://example.com"); ok {
		t.Error("entry should be expired after expiresAt")
	}
	if store.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after lazy eviction", store.Size())
	}
}

func TestMemoryStore_DeleteClear(t *testing.T) {
	store := NewMemoryStore()
	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Minute)

	store.Delete("a")
	if _, ok := store.Get("a"); ok {
		t.Error("deleted key still present")
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}

	store.Clear()
	if store.Size() != 0 {
		t.Errorf("Size() = %d, want 0", store.Size())
	}
}

func TestNoopStore(t *testing.T) {
	var s Store = NoopStore{}
	s.Set("k", "v", time.Hour)
	if _, ok := s.Get("k"); ok {
		t.Error("NoopStore should never hit")
	}
}

func TestKey(t *testing.T) {
	if got := Key("exposures", " https://example.com "); got != "exposures:https://example.com" {
		t.Errorf("Key() = %q", got)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Hour)

	if n := store.Sweep(); n != 0 {
		t.Fatalf("Sweep() = %d before expiry", n)
	}
	now = now.Add(2 * time.Minute)
	if n := store.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}
}
