package rollingwindow

import (
	"testing"
	"time"

	"memecore/internal/core"
)

type sample struct {
	ts core.Timestamp
	v  int
}

func tsOf(s sample) core.Timestamp { return s.ts }

func TestCapacityBound(t *testing.T) {
	w := New[sample](3, 0, tsOf)
	base := core.Timestamp(1_000_000)

	for i := 0; i < 5; i++ {
		w.Add(sample{ts: base.Add(time.Duration(i) * time.Second), v: i}, base.Add(time.Duration(i)*time.Second))
	}

	if w.Len() != 3 {
		t.Fatalf("expected len 3, got %d", w.Len())
	}
	oldest, _ := w.Oldest()
	if oldest.v != 2 {
		t.Fatalf("expected oldest entries evicted, oldest=%d", oldest.v)
	}
}

func TestAgeBound(t *testing.T) {
	w := New[sample](100, 10*time.Second, tsOf)
	base := core.Timestamp(1_000_000)

	for i := 0; i < 20; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		w.Add(sample{ts: now, v: i}, now)
	}

	items := w.Items()
	now := base.Add(19 * time.Second)
	for _, it := range items {
		if now.Sub(it.ts) > 10*time.Second {
			t.Fatalf("entry older than max age retained: %+v", it)
		}
	}
}

func TestNewestFirstOrder(t *testing.T) {
	w := New[sample](10, 0, tsOf)
	base := core.Timestamp(1_000_000)
	for i := 0; i < 4; i++ {
		w.Add(sample{ts: base.Add(time.Duration(i) * time.Second), v: i}, base)
	}

	nf := w.NewestFirst()
	for i := 1; i < len(nf); i++ {
		if nf[i].ts.After(nf[i-1].ts) {
			t.Fatalf("not newest-first at %d", i)
		}
	}
}

func TestCountSince(t *testing.T) {
	w := New[sample](100, 0, tsOf)
	base := core.Timestamp(1_000_000)
	for i := 0; i < 10; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		w.Add(sample{ts: now, v: i}, now)
	}

	now := base.Add(9 * time.Second)
	if got := w.CountSince(3*time.Second, now); got != 4 { // t=6,7,8,9
		t.Fatalf("expected 4 within 3s, got %d", got)
	}
}

func TestFirstOlderThan(t *testing.T) {
	w := New[sample](100, 0, tsOf)
	base := core.Timestamp(1_000_000)
	for i := 0; i < 10; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		w.Add(sample{ts: now, v: i}, now)
	}

	now := base.Add(9 * time.Second)
	got, ok := w.FirstOlderThan(5*time.Second, now)
	if !ok || got.v != 3 {
		t.Fatalf("expected newest entry older than 5s to be v=3, got %+v ok=%v", got, ok)
	}

	if _, ok := w.FirstOlderThan(time.Hour, now); ok {
		t.Fatal("nothing is an hour old")
	}
}

func TestPruneWithoutAdd(t *testing.T) {
	w := New[sample](100, 5*time.Second, tsOf)
	base := core.Timestamp(1_000_000)
	w.Add(sample{ts: base, v: 0}, base)

	w.Prune(base.Add(time.Minute))
	if w.Len() != 0 {
		t.Fatalf("expected prune to evict stale entries, len=%d", w.Len())
	}
}
