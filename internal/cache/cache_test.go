package cache

import (
	"testing"
	"time"

	"memecore/internal/core"
)

func TestSetGetBeforeExpiry(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	c := New[string](clock)

	c.Set("safety:m1", "v1", time.Minute)
	got, ok := c.Get("safety:m1")
	if !ok || got != "v1" {
		t.Fatalf("expected hit with v1, got %q ok=%v", got, ok)
	}
}

func TestExpiryEvictsOnGetAndHas(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	c := New[string](clock)

	c.Set("k", "v", time.Minute)
	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry served")
	}
	if c.Has("k") {
		t.Fatal("Has reported an expired entry")
	}
}

func TestOnlyGetCountsHitsAndMisses(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	c := New[int](clock)

	c.Set("k", 1, time.Minute)
	c.Has("k")
	c.Has("missing")
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Fatalf("Has must not count: %+v", s)
	}

	c.Get("k")
	c.Get("missing")
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("expected 1 hit / 1 miss, got %+v", s)
	}
	if s.HitRate != 50 {
		t.Fatalf("expected 50%% hit rate, got %v", s.HitRate)
	}
}

func TestCleanupCountsEvictions(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	c := New[int](clock)

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Second)
	c.Set("c", 3, time.Hour)
	clock.Advance(time.Minute)

	if evicted := c.Cleanup(); evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}
	if s := c.Stats(); s.Size != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", s.Size)
	}
}

func TestDelete(t *testing.T) {
	clock := core.NewFakeClock(core.Timestamp(1_000_000))
	c := New[int](clock)
	c.Set("k", 1, time.Hour)
	c.Delete("k")
	if c.Has("k") {
		t.Fatal("deleted key still present")
	}
}
