package cache

import (
	"strconv"
	"sync"
)

// Generations counts writes per table within one process. Folding the
// counts into a result key retires every key computed before a write, so a
// read that raced the write stores its rows under a key no later read asks
// for. The zero value is ready to use.
type Generations struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// Key returns key qualified with the current generation of tables.
func (g *Generations) Key(key string, tables []string) string {
	g.mu.Lock()
	var sum uint64
	for _, t := range tables {
		sum += g.counts[t]
	}
	g.mu.Unlock()
	return key + ":" + strconv.FormatUint(sum, 10)
}

// Bump starts a new generation for each of tables.
func (g *Generations) Bump(tables ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.counts == nil {
		g.counts = make(map[string]uint64)
	}
	for _, t := range tables {
		g.counts[t]++
	}
}
