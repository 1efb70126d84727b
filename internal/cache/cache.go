// Package cache provides an in-process TTL+LRU cache and a loader that
// collapses concurrent fills of the same key.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is the generic cache contract.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Observer is told about every lookup. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
}

// FillTimeout bounds a shared fill, which outlives the caller that started it.
const FillTimeout = 30 * time.Second

// Loader reads through a cache, calling fill on a miss. Concurrent misses
// for one key share a single fill. A fill that overlaps an invalidation is
// returned to its callers but not stored.
type Loader[T any] struct {
	name     string
	cache    *LRUCache[T]
	group    singleflight.Group
	observer Observer

	// mu orders generation bumps against the store that ends a fill.
	mu  sync.Mutex
	gen uint64
}

func NewLoader[T any](name string, c *LRUCache[T], obs Observer) *Loader[T] {
	return &Loader[T]{name: name, cache: c, observer: obs}
}

func (l *Loader[T]) Get(ctx context.Context, key string, fill func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		if l.observer != nil {
			l.observer.CacheHit(l.name)
		}
		return v, nil
	}
	if l.observer != nil {
		l.observer.CacheMiss(l.name)
	}

	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	// The fill runs detached so one caller going away does not fail the
	// others waiting on it. Each caller still stops waiting on its own ctx.
	ch := l.group.DoChan(strconv.FormatUint(gen, 10)+"/"+key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FillTimeout)
		defer cancel()
		data, err := fill(fillCtx)
		if err != nil {
			return data, err
		}
		l.mu.Lock()
		if l.gen == gen {
			l.cache.Set(key, data)
		}
		l.mu.Unlock()
		return data, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate drops key.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.cache.Delete(key)
}

// Purge drops every entry.
func (l *Loader[T]) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.cache.DeletePrefix("")
}

func (l *Loader[T]) CleanExpired() int {
	return l.cache.CleanExpired()
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	caches      []Cleaner
	started     bool
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup must be called at most once.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.Debug("Cache cleanup", "removed", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanNow runs one cleanup pass over every registered cache.
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup goroutine started by StartCleanup.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	if m.started {
		<-m.cleanupDone
	}
}
