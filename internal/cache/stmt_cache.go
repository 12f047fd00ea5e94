// Package cache holds the two caches used by the local executor: an LRU of
// prepared statements keyed by SQL text, and an optional result cache for
// read statements.
package cache

import (
	"container/list"
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
)

const (
	// DefaultStmtCacheCapacity is the default maximum number of cached prepared statements.
	DefaultStmtCacheCapacity = 1000
)

// PrepareFunc prepares a statement on a miss.
type PrepareFunc func(ctx context.Context, query string) (*sql.Stmt, error)

// StmtCache stores prepared statements with LRU eviction.
// A cached statement is never replaced, only evicted. Callers pin a statement
// while they use it; an evicted statement is closed when its last user
// releases it.
type StmtCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lruList  *list.List

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key     string
	stmt    *sql.Stmt
	refs    int
	evicted bool
}

// NewStmtCache creates a statement cache with the default capacity.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity creates a statement cache holding at most capacity
// statements. Non-positive values fall back to the default.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultStmtCacheCapacity
	}
	return &StmtCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the cached statement for query pinned for use, and marks it
// recently used. The caller must call release once done with the statement.
func (sc *StmtCache) Get(query string) (stmt *sql.Stmt, release func(), ok bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	elem, ok := sc.items[query]
	if !ok {
		sc.misses.Add(1)
		return nil, nil, false
	}
	sc.lruList.MoveToFront(elem)
	sc.hits.Add(1)
	entry := elem.Value.(*cacheEntry)
	return entry.stmt, sc.pin(entry), true
}

// GetOrPrepare returns the cached statement for query, preparing and caching
// it on a miss. The statement is pinned until release is called. The lock is
// not held while preparing; when two callers race on the same query the
// first insert wins and the loser's statement is closed.
func (sc *StmtCache) GetOrPrepare(ctx context.Context, query string, prepare PrepareFunc) (*sql.Stmt, func(), error) {
	if stmt, release, ok := sc.Get(query); ok {
		return stmt, release, nil
	}

	stmt, err := prepare(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	sc.mu.Lock()
	if elem, ok := sc.items[query]; ok {
		sc.lruList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		release := sc.pin(entry)
		sc.mu.Unlock()
		_ = stmt.Close()
		return entry.stmt, release, nil
	}

	var evicted *sql.Stmt
	if sc.lruList.Len() >= sc.capacity {
		evicted = sc.removeOldest()
	}
	entry := &cacheEntry{key: query, stmt: stmt}
	sc.items[query] = sc.lruList.PushFront(entry)
	release := sc.pin(entry)
	sc.mu.Unlock()

	// Stmt.Close waits for in-flight rows, so it must run outside the lock.
	if evicted != nil {
		_ = evicted.Close()
	}
	return stmt, release, nil
}

// pin takes a reference on entry. Must be called with the lock held. The
// returned func is idempotent.
func (sc *StmtCache) pin(entry *cacheEntry) func() {
	entry.refs++
	var once sync.Once
	return func() {
		once.Do(func() {
			sc.mu.Lock()
			entry.refs--
			closeNow := entry.evicted && entry.refs == 0
			sc.mu.Unlock()
			if closeNow {
				_ = entry.stmt.Close()
			}
		})
	}
}

// detach unlinks elem and returns its statement when nobody holds it.
// Pinned statements are closed by their last release instead. Must be
// called with the lock held.
func (sc *StmtCache) detach(elem *list.Element) *sql.Stmt {
	sc.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(sc.items, entry.key)
	entry.evicted = true
	if entry.refs > 0 {
		return nil
	}
	return entry.stmt
}

// Remove drops query from the cache. Its statement is closed now, or by the
// last caller still using it.
func (sc *StmtCache) Remove(query string) {
	var stmt *sql.Stmt
	sc.mu.Lock()
	if elem, ok := sc.items[query]; ok {
		stmt = sc.detach(elem)
	}
	sc.mu.Unlock()

	if stmt != nil {
		_ = stmt.Close()
	}
}

// removeOldest unlinks the least recently used entry. Must be called with
// the lock held; the caller closes the returned statement when non-nil.
func (sc *StmtCache) removeOldest() *sql.Stmt {
	elem := sc.lruList.Back()
	if elem == nil {
		return nil
	}
	sc.evictions.Add(1)
	return sc.detach(elem)
}

// Clear removes all cached statements, closing those not in use.
func (sc *StmtCache) Clear() {
	sc.mu.Lock()
	stmts := make([]*sql.Stmt, 0, sc.lruList.Len())
	for elem := sc.lruList.Front(); elem != nil; {
		next := elem.Next()
		if stmt := sc.detach(elem); stmt != nil {
			stmts = append(stmts, stmt)
		}
		elem = next
	}
	sc.mu.Unlock()

	for _, stmt := range stmts {
		_ = stmt.Close()
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// Stats returns a snapshot of the cache counters.
func (sc *StmtCache) Stats() Stats {
	sc.mu.Lock()
	size := sc.lruList.Len()
	sc.mu.Unlock()

	hits := sc.hits.Load()
	misses := sc.misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      size,
		Capacity:  sc.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: sc.evictions.Load(),
		HitRate:   hitRate,
	}
}
