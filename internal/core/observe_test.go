package core

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/coregx/airbase/internal/logger"
	"github.com/coregx/airbase/internal/tracer"
)

type logEntry struct {
	level string
	msg   string
	args  map[string]any
}

// capturingLogger keeps every record for assertions.
type capturingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *capturingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kv := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			kv[k] = args[i+1]
		}
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: kv})
}

func (l *capturingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *capturingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *capturingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *capturingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }
func (l *capturingLogger) With(_ ...any) logger.Logger   { return l }

func (l *capturingLogger) find(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func TestObserve_LogsStatements(t *testing.T) {
	log := &capturingLogger{}
	client, _ := newFixtureClient(t, WithLogger(log))

	require.NoError(t, client.From("flights").Select("id").Eq("status", "scheduled").Execute().Err())
	require.Error(t, client.From("no_such_table").Select("*").Execute().Err())

	ok := log.find("statement executed")
	require.Len(t, ok, 1)
	assert.Equal(t, "info", ok[0].level)
	assert.Equal(t, `SELECT id FROM "flights" WHERE "status" = ?`, ok[0].args["sql"])
	assert.Equal(t, "[scheduled]", ok[0].args["params"])
	assert.Equal(t, int64(2), ok[0].args["rows"])
	assert.Equal(t, EnvironmentLocal, ok[0].args["environment"])
	assert.Equal(t, "sqlite", ok[0].args["dialect"])

	failedEntries := log.find("statement failed")
	require.Len(t, failedEntries, 1)
	assert.Equal(t, "error", failedEntries[0].level)
	assert.Contains(t, failedEntries[0].args["code"], "SQLITE_")
}

func TestObserve_MasksSensitiveParams(t *testing.T) {
	log := &capturingLogger{}
	client, _ := newFixtureClient(t, WithLogger(log), WithSensitiveFields("role"))

	require.NoError(t, client.From("crew_members").Select("id").Eq("role", "captain").Execute().Err())

	entries := log.find("statement executed")
	require.Len(t, entries, 1)
	assert.Equal(t, "[***REDACTED***]", entries[0].args["params"])
}

func TestObserve_LogsDroppedRelation(t *testing.T) {
	log := &capturingLogger{}
	client, _ := newFixtureClient(t, WithLogger(log))

	require.NoError(t, client.From("flights").Select("*, crew:crew_members(name)").Execute().Err())

	dropped := log.find("relation dropped")
	require.Len(t, dropped, 1)
	assert.Equal(t, "warn", dropped[0].level)
	assert.Equal(t, "crew", dropped[0].args["alias"])
	assert.Equal(t, "crew_members", dropped[0].args["relation"])
}

func TestObserve_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	client, _ := newFixtureClient(t, WithTracer(tracer.NewOtelTracer(tp.Tracer("airbase-test"))))

	require.NoError(t, client.From("flights").Select("id").Execute().Err())
	require.Error(t, client.From("no_such_table").Select("*").Execute().Err())

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	attrs := func(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
		m := make(map[attribute.Key]attribute.Value)
		for _, kv := range s.Attributes {
			m[kv.Key] = kv.Value
		}
		return m
	}

	ok := attrs(spans[0])
	assert.Equal(t, tracer.SpanExecute, spans[0].Name)
	assert.Equal(t, "sqlite", ok["db.system"].AsString())
	assert.Equal(t, "SELECT", ok["db.operation"].AsString())
	assert.Equal(t, "flights", ok["db.table"].AsString())
	assert.Equal(t, EnvironmentLocal, ok["airbase.environment"].AsString())
	assert.Equal(t, int64(4), ok["db.rows"].AsInt64())

	bad := attrs(spans[1])
	assert.Contains(t, bad["airbase.error_code"].AsString(), "SQLITE_")
	assert.Equal(t, "Error", spans[1].Status.Code.String())
}

// memoryResultCache is an in-process ResultCache tracking its calls.
type memoryResultCache struct {
	mu          sync.Mutex
	entries     map[string][]map[string]any
	tables      map[string][]string
	sets        int
	invalidated [][]string

	// beforeSet runs ahead of every Set, outside the lock.
	beforeSet func()
}

func newMemoryResultCache() *memoryResultCache {
	return &memoryResultCache{
		entries: make(map[string][]map[string]any),
		tables:  make(map[string][]string),
	}
}

func (c *memoryResultCache) Get(_ context.Context, key string) ([]map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.entries[key]
	return rows, ok, nil
}

func (c *memoryResultCache) Set(_ context.Context, key string, tables []string, rows []map[string]any, _ time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = rows
	c.tables[key] = tables
	c.sets++
	return nil
}

func (c *memoryResultCache) Invalidate(_ context.Context, tables ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tables)
	for key, deps := range c.tables {
		for _, t := range tables {
			if slices.Contains(deps, t) {
				delete(c.entries, key)
				delete(c.tables, key)
				break
			}
		}
	}
	return nil
}

func TestLocal_ResultCache(t *testing.T) {
	rc := newMemoryResultCache()
	var events []QueryEvent
	client, exec := newFixtureClient(t,
		WithResultCache(rc, time.Minute),
		WithQueryHook(func(_ context.Context, e QueryEvent) { events = append(events, e) }),
	)

	read := func() Result {
		return client.From("flights").Select("id, status").Eq("id", 1).Single()
	}

	first := read()
	require.NoError(t, first.Err())
	assert.Equal(t, "scheduled", first.Row()["status"])
	assert.Equal(t, 1, rc.sets)

	second := read()
	require.NoError(t, second.Err())
	assert.Equal(t, first, second)
	require.Len(t, events, 2)
	assert.False(t, events[0].Cached)
	assert.True(t, events[1].Cached)
	assert.Equal(t, uint64(1), exec.Stats().StmtCache.Misses+exec.Stats().StmtCache.Hits,
		"a cache hit never reaches the database")

	upd := client.From("flights").Update(Row{"status": "delayed"}).Eq("id", 1).Execute()
	require.NoError(t, upd.Err())
	require.Len(t, rc.invalidated, 1)
	assert.Equal(t, []string{"flights"}, rc.invalidated[0])

	third := read()
	require.NoError(t, third.Err())
	assert.Equal(t, "delayed", third.Row()["status"], "writes invalidate cached reads")
	assert.False(t, events[len(events)-1].Cached)
}

func TestLocal_ResultCacheReadRacingWrite(t *testing.T) {
	rc := newMemoryResultCache()
	client, _ := newFixtureClient(t, WithResultCache(rc, time.Minute))

	read := func() Result {
		return client.From("flights").Select("id, status").Eq("id", 1).Single()
	}

	// The write lands after the read has its rows but before it caches them.
	var once sync.Once
	rc.beforeSet = func() {
		once.Do(func() {
			upd := client.From("flights").Update(Row{"status": "boarding"}).Eq("id", 1).Execute()
			require.NoError(t, upd.Err())
		})
	}

	first := read()
	require.NoError(t, first.Err())
	assert.Equal(t, "scheduled", first.Row()["status"])
	require.Len(t, rc.invalidated, 1)

	second := read()
	require.NoError(t, second.Err())
	assert.Equal(t, "boarding", second.Row()["status"], "rows read before the write are never served")
}

func TestLocal_ResultCacheSkipsFailures(t *testing.T) {
	rc := newMemoryResultCache()
	client, _ := newFixtureClient(t, WithResultCache(rc, time.Minute))

	require.Error(t, client.From("no_such_table").Select("*").Execute().Err())
	require.Error(t, client.From("flights").Update(Row{"nope": 1}).Eq("id", 1).Execute().Err())

	assert.Zero(t, rc.sets)
	assert.Empty(t, rc.invalidated, "failed writes leave the cache alone")
}
