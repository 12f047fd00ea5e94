package core

import (
	"context"
	"time"

	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/tracer"
)

// Executor runs assembled statements. It is chosen once at startup:
// LocalExecutor inside the trusted process, RemoteExecutor everywhere else.
// Both return the same Result shape, so callers never branch on which one
// they hold.
type Executor interface {
	// Execute runs stmt. Failures are reported in the Result, never
	// returned separately and never retried.
	Execute(ctx context.Context, stmt Statement) Result
	// Dialect is the SQL dialect statements must be assembled for.
	Dialect() dialects.Dialect
}

// Environment names reported in logs, spans and query events.
const (
	EnvironmentLocal  = tracer.EnvironmentLocal
	EnvironmentRemote = tracer.EnvironmentRemote
)

// observation is one finished statement, reported to logs, the span and
// the query hook by both executors.
type observation struct {
	env     string
	dialect string
	stmt    Statement
	res     Result
	elapsed time.Duration
	cached  bool
}

func (s *settings) observe(ctx context.Context, span tracer.Span, o observation) {
	op := tracer.DetectOperation(o.stmt.SQL)
	rows := rowCount(o.res)
	params := s.sanitizer.Format(o.stmt.SQL, o.stmt.Params)

	if o.res.Error != nil {
		s.logger.Error("statement failed",
			"sql", o.stmt.SQL,
			"params", params,
			"duration_ms", o.elapsed.Milliseconds(),
			"dialect", o.dialect,
			"environment", o.env,
			"code", o.res.Error.Code,
			"error", o.res.Error.Message,
		)
	} else {
		s.logger.Info("statement executed",
			"sql", o.stmt.SQL,
			"params", params,
			"duration_ms", o.elapsed.Milliseconds(),
			"rows", rows,
			"dialect", o.dialect,
			"environment", o.env,
			"cached", o.cached,
		)
	}

	meta := &tracer.QueryMetadata{
		SQL:         o.stmt.SQL,
		Args:        o.stmt.Params,
		Duration:    o.elapsed,
		Rows:        rows,
		Database:    o.dialect,
		Operation:   op,
		Table:       o.stmt.Table,
		Environment: o.env,
	}
	if o.res.Error != nil {
		meta.Error = o.res.Error
		meta.ErrorCode = o.res.Error.Code
	}
	tracer.AddQueryAttributes(span, meta)

	s.hook.invoke(ctx, QueryEvent{
		SQL:         o.stmt.SQL,
		Params:      o.stmt.Params,
		Duration:    o.elapsed,
		Rows:        rows,
		Error:       o.res.Error,
		Operation:   op,
		Environment: o.env,
		Cached:      o.cached,
	})
}
