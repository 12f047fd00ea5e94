package core

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/coregx/airbase/internal/logger"
)

// pingTimeout bounds a background health ping. Caller-driven pings use the
// caller's context instead.
const pingTimeout = 5 * time.Second

// healthChecker pings the pool at a fixed interval so a dead database is
// reported by the health endpoint before the next statement fails.
type healthChecker struct {
	db       *sql.DB
	logger   logger.Logger
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newHealthChecker(db *sql.DB, log logger.Logger, interval time.Duration) *healthChecker {
	return &healthChecker{
		db:       db,
		logger:   log,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	h.ping()
	h.wg.Add(1)
	go h.run()
}

func (h *healthChecker) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.ping()
		case <-h.stop:
			return
		}
	}
}

func (h *healthChecker) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	h.record(h.db.PingContext(ctx))
}

func (h *healthChecker) record(err error) {
	h.mu.Lock()
	changed := (err == nil) != (h.lastErr == nil)
	h.lastErr = err
	h.lastPing = time.Now()
	h.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warn("database health check failed", "error", err, "interval", h.interval)
	case changed:
		h.logger.Info("database health check recovered", "interval", h.interval)
	default:
		h.logger.Debug("database health check passed", "interval", h.interval)
	}
}

func (h *healthChecker) shutdown() {
	close(h.stop)
	h.wg.Wait()
}

// status returns when the last ping ran and its error.
func (h *healthChecker) status() (time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPing, h.lastErr
}
