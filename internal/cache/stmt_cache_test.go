package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens a pool on a counting mock driver.
func setupTestDB(t *testing.T) (*sql.DB, *countingDriver) {
	t.Helper()
	db, d, err := openCountingDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, d
}

func prepareOn(db *sql.DB) PrepareFunc {
	return db.PrepareContext
}

func TestNewStmtCacheWithCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{"positive capacity", 100, 100},
		{"zero capacity defaults", 0, DefaultStmtCacheCapacity},
		{"negative capacity defaults", -10, DefaultStmtCacheCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewStmtCacheWithCapacity(tt.capacity).Stats().Capacity)
		})
	}
}

func TestStmtCache_GetOrPrepare(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCache()
	ctx := context.Background()

	_, _, found := cache.Get(`SELECT * FROM "flights"`)
	assert.False(t, found)

	first, release, err := cache.GetOrPrepare(ctx, `SELECT * FROM "flights"`, prepareOn(db))
	require.NoError(t, err)
	release()

	second, release, err := cache.GetOrPrepare(ctx, `SELECT * FROM "flights"`, prepareOn(db))
	require.NoError(t, err)
	release()

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), d.prepared.Load())

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestStmtCache_PrepareError(t *testing.T) {
	cache := NewStmtCache()
	boom := errors.New("syntax error")

	_, _, err := cache.GetOrPrepare(context.Background(), "SELEC", func(context.Context, string) (*sql.Stmt, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestStmtCache_LoserIsClosed(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCache()
	ctx := context.Background()

	winner, err := db.Prepare("SELECT 1")
	require.NoError(t, err)

	// The prepare callback runs outside the lock; simulate a concurrent
	// insert landing while it is in flight.
	got, release, err := cache.GetOrPrepare(ctx, "SELECT 1", func(ctx context.Context, q string) (*sql.Stmt, error) {
		_, release, _ := cache.GetOrPrepare(ctx, q, func(context.Context, string) (*sql.Stmt, error) { return winner, nil })
		release()
		return db.PrepareContext(ctx, q)
	})
	require.NoError(t, err)
	release()

	assert.Same(t, winner, got)
	assert.Equal(t, int64(1), d.closed.Load())
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestStmtCache_LRUEviction(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, release, err := cache.GetOrPrepare(ctx, fmt.Sprintf("SELECT %d", i), prepareOn(db))
		require.NoError(t, err)
		release()
	}

	// Touch the oldest so the second becomes the eviction victim.
	_, release, found := cache.Get("SELECT 1")
	require.True(t, found)
	release()

	_, release, err := cache.GetOrPrepare(ctx, "SELECT 4", prepareOn(db))
	require.NoError(t, err)
	release()

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, int64(1), d.closed.Load())

	_, _, found = cache.Get("SELECT 2")
	assert.False(t, found)
	_, release, found = cache.Get("SELECT 1")
	assert.True(t, found)
	release()
}

func TestStmtCache_EvictedWhilePinned(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(1)
	ctx := context.Background()

	held, release, err := cache.GetOrPrepare(ctx, "SELECT 1", prepareOn(db))
	require.NoError(t, err)

	_, releaseOther, err := cache.GetOrPrepare(ctx, "SELECT 2", prepareOn(db))
	require.NoError(t, err)
	releaseOther()

	assert.Equal(t, uint64(1), cache.Stats().Evictions)
	assert.Equal(t, int64(0), d.closed.Load(), "pinned statement stays open after eviction")

	_, _, found := cache.Get("SELECT 1")
	assert.False(t, found)
	assert.NotNil(t, held)

	release()
	assert.Equal(t, int64(1), d.closed.Load())

	release()
	assert.Equal(t, int64(1), d.closed.Load(), "release is idempotent")
}

func TestStmtCache_RemovePinned(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCache()
	ctx := context.Background()

	_, first, err := cache.GetOrPrepare(ctx, "SELECT 1", prepareOn(db))
	require.NoError(t, err)
	_, second, found := cache.Get("SELECT 1")
	require.True(t, found)

	cache.Remove("SELECT 1")
	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
	assert.Equal(t, int64(0), d.closed.Load())

	first()
	assert.Equal(t, int64(0), d.closed.Load())
	second()
	assert.Equal(t, int64(1), d.closed.Load())
}

func TestStmtCache_RemoveAndClear(t *testing.T) {
	db, d := setupTestDB(t)
	cache := NewStmtCache()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, release, err := cache.GetOrPrepare(ctx, fmt.Sprintf("SELECT %d", i), prepareOn(db))
		require.NoError(t, err)
		release()
	}

	cache.Remove("SELECT 3")
	cache.Remove("SELECT 99")
	assert.Equal(t, 4, cache.Stats().Size)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
	assert.Equal(t, int64(5), d.closed.Load())

	cache.Clear()
}

func TestStmtCache_Concurrent(t *testing.T) {
	db, _ := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(10)
	ctx := context.Background()

	const goroutines = 8
	const operations = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < operations; i++ {
				stmt, release, err := cache.GetOrPrepare(ctx, fmt.Sprintf("SELECT %d", (id*operations+i)%25), prepareOn(db))
				if !assert.NoError(t, err) {
					continue
				}
				assert.NotNil(t, stmt)
				release()
			}
		}(g)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Size, 10)
	assert.Greater(t, stats.Evictions, uint64(0))
}
