package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed statement. It is passed to QueryHook
// callbacks on both the local and the remote path.
type QueryEvent struct {
	SQL    string
	Params []any
	// Duration covers the round trip: driver time locally, HTTP time remotely.
	Duration time.Duration
	// Rows is the number of rows returned, or affected for statements
	// without RETURNING.
	Rows int64
	// Error is the envelope error, nil on success.
	Error *Error
	// Operation is SELECT, INSERT, UPDATE or UNKNOWN.
	Operation string
	// Environment is "local" or "remote".
	Environment string
	// Cached reports a result served from the result cache.
	Cached bool
}

// QueryHook is called after every statement. Hooks run synchronously on
// the calling goroutine and must not block.
//
// Example:
//
//	client := airbase.NewClient(exec,
//	    airbase.WithQueryHook(func(ctx context.Context, e airbase.QueryEvent) {
//	        slog.Info("statement", "sql", e.SQL, "duration", e.Duration, "env", e.Environment)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (h QueryHook) invoke(ctx context.Context, event QueryEvent) {
	if h != nil {
		h(ctx, event)
	}
}

// rowCount returns the number of rows a result carries.
func rowCount(res Result) int64 {
	if res.Count != nil {
		return int64(*res.Count)
	}
	return int64(len(res.Rows()))
}
