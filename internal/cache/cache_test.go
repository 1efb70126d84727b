package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache[T any](size int, ttl time.Duration) (*LRUCache[T], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[T](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheEviction(t *testing.T) {
	c, _ := newTestCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c, clock := newTestCache[string](10, time.Minute)
	c.Set("k", "v")
	c.Set("other", "v")

	clock.advance(30 * time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("Get() before expiry = %q, %v", v, ok)
	}

	clock.advance(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should expire after ttl")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRUCacheUpdateAndDelete(t *testing.T) {
	c, _ := newTestCache[int](3, time.Minute)
	c.Set("tx:1:items", 1)
	c.Set("tx:1:summary", 2)
	c.Set("tx:2:items", 3)
	c.Set("tx:2:items", 4)

	if v, _ := c.Get("tx:2:items"); v != 4 {
		t.Errorf("updated value = %d, want 4", v)
	}
	if n := c.DeletePrefix("tx:1:"); n != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", n)
	}
	c.Delete("tx:2:items")
	c.Delete("missing")
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

type countingObserver struct {
	hits, misses atomic.Int64
}

func (o *countingObserver) CacheHit(string)  { o.hits.Add(1) }
func (o *countingObserver) CacheMiss(string) { o.misses.Add(1) }

func TestLoaderFillsOnce(t *testing.T) {
	obs := &countingObserver{}
	l := NewLoader[int]("items", NewLRUCache[int](10, time.Minute), obs)

	var fills atomic.Int32
	release := make(chan struct{})
	fill := func(context.Context) (int, error) {
		fills.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background(), "tx-1", fill)
			if err != nil {
				t.Errorf("Get() error = %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if fills.Load() != 1 {
		t.Errorf("fill ran %d times, want 1", fills.Load())
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("results[%d] = %d", i, v)
		}
	}

	if v, err := l.Get(context.Background(), "tx-1", fill); err != nil || v != 42 {
		t.Fatalf("cached Get() = %d, %v", v, err)
	}
	if total := obs.hits.Load() + obs.misses.Load(); total != 9 {
		t.Errorf("observed %d lookups, want 9", total)
	}
	if obs.hits.Load() < 1 || obs.misses.Load() < 1 {
		t.Errorf("hits=%d misses=%d", obs.hits.Load(), obs.misses.Load())
	}
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	l := NewLoader[string]("items", NewLRUCache[string](10, time.Minute), nil)
	boom := errors.New("boom")

	if _, err := l.Get(context.Background(), "k", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want boom", err)
	}
	v, err := l.Get(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("Get() after error = %q, %v", v, err)
	}

	l.Invalidate("k")
	v, _ = l.Get(context.Background(), "k", func(context.Context) (string, error) { return "fresh", nil })
	if v != "fresh" {
		t.Errorf("Get() after Invalidate = %q, want fresh", v)
	}
}

func TestManagerStop(t *testing.T) {
	c, clock := newTestCache[int](10, time.Second)
	c.Set("a", 1)
	clock.advance(2 * time.Second)

	m := NewManager()
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()

	idle := NewManager()
	idle.Stop()
}

func TestLoaderPurgeDropsInFlightFill(t *testing.T) {
	l := NewLoader[int]("items", NewLRUCache[int](10, time.Minute), nil)
	l.Get(context.Background(), "a", func(context.Context) (int, error) { return 1, nil })

	v, err := l.Get(context.Background(), "b", func(context.Context) (int, error) {
		l.Purge()
		return 2, nil
	})
	if err != nil || v != 2 {
		t.Fatalf("Get() = %d, %v", v, err)
	}

	calls := 0
	fill := func(context.Context) (int, error) { calls++; return 3, nil }
	for _, key := range []string{"a", "b"} {
		if v, _ := l.Get(context.Background(), key, fill); v != 3 {
			t.Errorf("Get(%s) = %d after purge, want refilled 3", key, v)
		}
	}
	if calls != 2 {
		t.Errorf("fill calls = %d, want 2", calls)
	}
}

func TestLoaderFillSurvivesCallerCancel(t *testing.T) {
	l := NewLoader[int]("items", NewLRUCache[int](10, time.Minute), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	fill := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := l.Get(ctxA, "tx-1", fill)
		errA <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := l.Get(context.Background(), "tx-1", fill)
		resB <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}

	close(release)
	if r := <-resB; r.err != nil || r.v != 7 {
		t.Fatalf("waiting caller Get() = %d, %v, want 7", r.v, r.err)
	}
	if v, ok := l.cache.Get("tx-1"); !ok || v != 7 {
		t.Errorf("cached value = %d, %v, want 7", v, ok)
	}
}

func TestLoaderPurgeWinsOverFinishingFill(t *testing.T) {
	l := NewLoader[int]("items", NewLRUCache[int](10, time.Minute), nil)

	for i := 0; i < 200; i++ {
		started := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			l.Get(context.Background(), "tx-1", func(context.Context) (int, error) {
				close(started)
				return i, nil
			})
		}()
		<-started
		l.Purge()
		<-done

		if v, ok := l.cache.Get("tx-1"); ok {
			t.Fatalf("iteration %d: fill from before purge stored %d", i, v)
		}
	}
}
