package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/airbase/internal/cache"
	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/security"
	"github.com/coregx/airbase/internal/tracer"
	"github.com/coregx/airbase/internal/wire"
)

// LocalExecutor runs statements on an injected connection pool. It is the
// only component that talks to the database; it belongs in the trusted
// server process.
type LocalExecutor struct {
	db        *sql.DB
	owned     bool
	dialect   dialects.Dialect
	stmtCache *cache.StmtCache
	gens      cache.Generations
	health    *healthChecker
	cfg       *settings
}

// NewLocalExecutor wraps db. driverName selects the dialect ("postgres",
// "mysql", "sqlite"). The caller keeps ownership of db; Close does not
// close it.
func NewLocalExecutor(db *sql.DB, driverName string, opts ...Option) (*LocalExecutor, error) {
	d, ok := dialects.Lookup(driverName)
	if !ok {
		return nil, ErrUnsupportedDialect.with(driverName, nil)
	}

	cfg := newSettings(opts)
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	e := &LocalExecutor{
		db:        db,
		dialect:   d,
		stmtCache: cache.NewStmtCacheWithCapacity(cfg.stmtCacheCapacity),
		cfg:       cfg,
	}
	if cfg.healthInterval > 0 {
		e.health = newHealthChecker(db, cfg.logger, cfg.healthInterval)
		e.health.start()
	}
	return e, nil
}

// OpenLocal opens a pool with sql.Open and wraps it. The executor owns the
// pool and closes it on Close.
func OpenLocal(driverName, dsn string, opts ...Option) (*LocalExecutor, error) {
	if _, ok := dialects.Lookup(driverName); !ok {
		return nil, ErrUnsupportedDialect.with(driverName, nil)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	e, err := NewLocalExecutor(db, driverName, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	e.owned = true
	return e, nil
}

// Dialect implements Executor.
func (e *LocalExecutor) Dialect() dialects.Dialect {
	return e.dialect
}

// DB returns the underlying pool.
func (e *LocalExecutor) DB() *sql.DB {
	return e.db
}

// Execute implements Executor. Statements with Returns run through
// QueryContext and yield rows; others run through ExecContext and report
// rows affected in Count. Rows and statements are released on every path.
func (e *LocalExecutor) Execute(ctx context.Context, stmt Statement) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := e.cfg.tracer.StartSpan(ctx, tracer.SpanExecute)
	defer span.End()

	start := time.Now()
	res, cached := e.execute(ctx, stmt)

	e.cfg.observe(ctx, span, observation{
		env:     EnvironmentLocal,
		dialect: e.dialect.Name(),
		stmt:    stmt,
		res:     res,
		elapsed: time.Since(start),
		cached:  cached,
	})
	return res
}

func (e *LocalExecutor) execute(ctx context.Context, stmt Statement) (Result, bool) {
	if stmt.SQL == "" {
		return failed(validationf("empty statement")), false
	}

	op := tracer.DetectOperation(stmt.SQL)
	tables := security.Tables(stmt.SQL)
	cacheKey := e.cacheKey(op, stmt, tables)
	if cacheKey != "" {
		rows, ok, err := e.cfg.resultCache.Get(ctx, cacheKey)
		if err != nil {
			e.cfg.logger.Warn("result cache read failed", "error", err)
		}
		if ok {
			return rowsResult(normalizeRows(rows)), true
		}
	}

	prepared, release, err := e.stmtCache.GetOrPrepare(ctx, stmt.SQL, e.db.PrepareContext)
	if err != nil {
		return failed(databaseError(err)), false
	}

	var res Result
	if stmt.Returns {
		res = e.query(ctx, prepared, stmt)
	} else {
		res = e.exec(ctx, prepared, stmt)
	}
	release()

	if res.Error != nil {
		if res.Error.Code == CodeConnection {
			e.stmtCache.Remove(stmt.SQL)
		}
		return res, false
	}

	switch {
	case cacheKey != "":
		if err := e.cfg.resultCache.Set(ctx, cacheKey, tables, res.Rows(), e.cfg.resultTTL); err != nil {
			e.cfg.logger.Warn("result cache write failed", "error", err)
		}
	case e.cfg.resultCache != nil && op != "SELECT":
		e.gens.Bump(tables...)
		if err := e.cfg.resultCache.Invalidate(ctx, tables...); err != nil {
			e.cfg.logger.Warn("result cache invalidation failed", "error", err)
		}
	}
	return res, false
}

func (e *LocalExecutor) query(ctx context.Context, prepared *sql.Stmt, stmt Statement) Result {
	rows, err := prepared.QueryContext(ctx, stmt.Params...)
	if err != nil {
		return failed(databaseError(err))
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows)
	if err != nil {
		return failed(databaseError(err))
	}
	return rowsResult(out)
}

func (e *LocalExecutor) exec(ctx context.Context, prepared *sql.Stmt, stmt Statement) Result {
	r, err := prepared.ExecContext(ctx, stmt.Params...)
	if err != nil {
		return failed(databaseError(err))
	}
	n, err := r.RowsAffected()
	if err != nil {
		return failed(databaseError(err))
	}
	return affectedResult(n)
}

// cacheKey returns the result cache key for a cacheable read, or "". The
// key carries the write generation of tables as of now, before the read
// runs.
func (e *LocalExecutor) cacheKey(op string, stmt Statement, tables []string) string {
	if e.cfg.resultCache == nil || op != "SELECT" || !stmt.Returns {
		return ""
	}
	key, err := cache.ResultKey(stmt.SQL, stmt.Params)
	if err != nil {
		e.cfg.logger.Debug("statement not cacheable", "error", err)
		return ""
	}
	return e.gens.Key(key, tables)
}

// Ping checks the pool with the caller's context.
func (e *LocalExecutor) Ping(ctx context.Context) error {
	err := e.db.PingContext(ctx)
	if e.health != nil {
		e.health.record(err)
	}
	if err != nil {
		return databaseError(err)
	}
	return nil
}

// HealthStatus is the last known pool health.
type HealthStatus struct {
	Healthy   bool      `json:"healthy" msgpack:"healthy"`
	LastCheck time.Time `json:"last_check" msgpack:"last_check"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Health returns the last background check, or pings now when background
// checks are disabled.
func (e *LocalExecutor) Health(ctx context.Context) HealthStatus {
	var last time.Time
	var err error
	if e.health != nil {
		last, err = e.health.status()
	} else {
		err = e.db.PingContext(ctx)
		last = time.Now()
	}
	st := HealthStatus{Healthy: err == nil, LastCheck: last}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// Stats reports pool and statement cache counters.
type Stats struct {
	Pool      sql.DBStats
	StmtCache cache.Stats
}

// Stats returns current pool and statement cache counters.
func (e *LocalExecutor) Stats() Stats {
	return Stats{Pool: e.db.Stats(), StmtCache: e.stmtCache.Stats()}
}

// Close stops the health checker and releases cached statements. The pool
// is closed only when the executor opened it.
func (e *LocalExecutor) Close() error {
	if e.health != nil {
		e.health.shutdown()
	}
	e.stmtCache.Clear()
	if e.owned {
		return e.db.Close()
	}
	return nil
}

func normalizeRows(rows []map[string]any) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i], _ = wire.Normalize(r).(map[string]any)
	}
	return out
}
