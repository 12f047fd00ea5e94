package core

import (
	"fmt"

	"github.com/coregx/airbase/internal/wire"
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Result is the envelope every resolution method returns. Exactly one of
// Data and Error carries the outcome; Count is best-effort metadata.
//
// Data holds []Row for list resolution, Row for Single/MaybeSingle, or nil.
type Result struct {
	Data  any    `json:"data" msgpack:"data"`
	Error *Error `json:"error" msgpack:"error"`
	Count *int   `json:"count" msgpack:"count"`
}

// Rows returns Data as a list. A single row is returned as a one-element list.
func (r Result) Rows() []Row {
	switch d := r.Data.(type) {
	case []Row:
		return d
	case Row:
		return []Row{d}
	}
	return nil
}

// Row returns Data as a single row, or nil.
func (r Result) Row() Row {
	switch d := r.Data.(type) {
	case Row:
		return d
	case []Row:
		if len(d) == 1 {
			return d[0]
		}
	}
	return nil
}

// Err returns the envelope error as a Go error, or nil on success.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}

// Failed returns an error envelope.
func Failed(err *Error) Result {
	return Result{Error: err}
}

func failed(err *Error) Result {
	return Failed(err)
}

func rowsResult(rows []Row) Result {
	n := len(rows)
	return Result{Data: rows, Count: &n}
}

func affectedResult(n int64) Result {
	c := int(n)
	return Result{Count: &c}
}

// normalize converts decoded wire data back into Row values so a remote
// result is indistinguishable from a local one.
func (r *Result) normalize() {
	switch d := r.Data.(type) {
	case []any:
		rows := make([]Row, 0, len(d))
		for _, item := range d {
			if m, ok := wire.Normalize(item).(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		r.Data = rows
	case map[string]any:
		r.Data = wire.Normalize(d)
	case map[any]any:
		r.Data = wire.Normalize(d)
	}
}

// applyMultiplicity enforces the single-row policy on a list result:
// one row → that row; more than one → MULTIPLE_ROWS; none → NO_ROWS, or a
// null success when allowEmpty (MaybeSingle). A rows-affected result of a
// dialect without RETURNING is judged by its Count and keeps nil Data.
// It runs after every executor, so local and remote execution cannot
// disagree.
func applyMultiplicity(res Result, allowEmpty bool) Result {
	if res.Error != nil {
		return res
	}
	if res.Data == nil && res.Count != nil {
		switch n := *res.Count; {
		case n > 1:
			return failed(ErrMultipleRows.with(fmt.Sprintf("%d rows affected", n), nil))
		case n == 0 && !allowEmpty:
			return failed(ErrNoRows.with("no rows affected", nil))
		}
		return res
	}

	rows := res.Rows()
	n := len(rows)
	switch {
	case n == 1:
		return Result{Data: rows[0], Count: &n}
	case n > 1:
		return failed(ErrMultipleRows.with(fmt.Sprintf("%d rows", n), nil))
	case allowEmpty:
		return Result{Count: &n}
	default:
		return failed(ErrNoRows.with("", nil))
	}
}
