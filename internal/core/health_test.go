package core

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coregx/airbase/internal/logger"
)

func TestHealthChecker_Basic(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	hc := newHealthChecker(db, &logger.NoopLogger{}, 100*time.Millisecond)
	hc.start()
	defer hc.shutdown()

	last, err := hc.status()
	assert.NoError(t, err, "health check should pass for a valid database")
	assert.False(t, last.IsZero(), "start pings before returning")
}

func TestHealthChecker_Shutdown(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	hc := newHealthChecker(db, &logger.NoopLogger{}, 50*time.Millisecond)
	hc.start()
	time.Sleep(75 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		hc.shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("shutdown took too long")
	}
}

func TestHealthChecker_ReportsClosedPool(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	hc := newHealthChecker(db, &logger.NoopLogger{}, 20*time.Millisecond)
	hc.start()
	defer hc.shutdown()

	require.NoError(t, db.Close())

	assert.Eventually(t, func() bool {
		_, err := hc.status()
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestLocalExecutor_Health(t *testing.T) {
	exec, err := NewLocalExecutor(openFixtureDB(t), "sqlite", WithHealthCheck(time.Hour))
	require.NoError(t, err)
	defer exec.Close()

	st := exec.Health(context.Background())
	assert.True(t, st.Healthy)
	assert.Empty(t, st.Error)
	assert.False(t, st.LastCheck.IsZero())

	require.NoError(t, exec.Ping(context.Background()))
}

func TestLocalExecutor_HealthWithoutChecker(t *testing.T) {
	db := openFixtureDB(t)
	exec, err := NewLocalExecutor(db, "sqlite")
	require.NoError(t, err)
	defer exec.Close()

	assert.True(t, exec.Health(context.Background()).Healthy)

	require.NoError(t, db.Close())
	st := exec.Health(context.Background())
	assert.False(t, st.Healthy)
	assert.NotEmpty(t, st.Error)
}
