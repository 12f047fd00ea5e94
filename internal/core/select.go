package core

import (
	"context"
	"strings"
)

// SelectQuery builds a SELECT. It is owned by one goroutine; chain methods
// mutate it and return the receiver.
type SelectQuery struct {
	client *Client
	ctx    context.Context
	desc   SelectDescriptor
	f      filters
	err    *Error
}

// Select replaces the field list. Relation tokens become LEFT JOINs
// resolved through the client's schema; relations that cannot be joined
// directly are dropped and logged.
func (q *SelectQuery) Select(fields string) *SelectQuery {
	fields = strings.TrimSpace(fields)
	if fields == "" {
		fields = "*"
	}

	sel, err := q.client.schema.ParseSelect(q.desc.Table, fields)
	if err != nil {
		q.fail(validationError(err))
		return q
	}
	for _, d := range sel.Dropped {
		q.client.cfg.logger.Warn("relation dropped",
			"table", q.desc.Table,
			"alias", d.Alias,
			"relation", d.Table,
			"reason", d.Reason,
		)
	}
	q.desc.Fields = sel.Fields
	q.desc.Joins = sel.Joins
	return q
}

// Eq filters field = value. A nil value renders IS NULL.
func (q *SelectQuery) Eq(field string, value any) *SelectQuery {
	q.f.add(field, OpEq, value)
	return q
}

// Neq filters field <> value. A nil value renders IS NOT NULL.
func (q *SelectQuery) Neq(field string, value any) *SelectQuery {
	q.f.add(field, OpNeq, value)
	return q
}

// Gt filters field > value.
func (q *SelectQuery) Gt(field string, value any) *SelectQuery {
	q.f.add(field, OpGt, value)
	return q
}

// Gte filters field >= value.
func (q *SelectQuery) Gte(field string, value any) *SelectQuery {
	q.f.add(field, OpGte, value)
	return q
}

// Lt filters field < value.
func (q *SelectQuery) Lt(field string, value any) *SelectQuery {
	q.f.add(field, OpLt, value)
	return q
}

// Lte filters field <= value.
func (q *SelectQuery) Lte(field string, value any) *SelectQuery {
	q.f.add(field, OpLte, value)
	return q
}

// Like filters field LIKE pattern.
func (q *SelectQuery) Like(field, pattern string) *SelectQuery {
	q.f.add(field, OpLike, pattern)
	return q
}

// ILike filters case-insensitively.
func (q *SelectQuery) ILike(field, pattern string) *SelectQuery {
	q.f.add(field, OpILike, pattern)
	return q
}

// In filters field IN (values...). values must be a slice; an empty slice
// matches nothing.
func (q *SelectQuery) In(field string, values any) *SelectQuery {
	q.f.add(field, OpIn, values)
	return q
}

// Is filters field IS NULL, IS TRUE or IS FALSE. value must be nil, true
// or false.
func (q *SelectQuery) Is(field string, value any) *SelectQuery {
	q.f.add(field, OpIs, value)
	return q
}

// Order sets the ordering, ascending unless ascending is false. The last
// call wins.
func (q *SelectQuery) Order(field string, ascending ...bool) *SelectQuery {
	asc := len(ascending) == 0 || ascending[0]
	q.desc.Order = &Order{Field: field, Ascending: asc}
	return q
}

// OrderAsc is Order(field, true).
func (q *SelectQuery) OrderAsc(field string) *SelectQuery {
	return q.Order(field, true)
}

// OrderDesc is Order(field, false).
func (q *SelectQuery) OrderDesc(field string) *SelectQuery {
	return q.Order(field, false)
}

// Limit caps the number of rows. The last Limit or Range call wins.
func (q *SelectQuery) Limit(n int) *SelectQuery {
	if n < 0 {
		q.fail(validationf("limit must not be negative, got %d", n))
		return q
	}
	q.desc.Limit = &n
	return q
}

// Offset skips n rows.
func (q *SelectQuery) Offset(n int) *SelectQuery {
	if n < 0 {
		q.fail(validationf("offset must not be negative, got %d", n))
		return q
	}
	q.desc.Offset = &n
	return q
}

// Range selects rows from..to inclusive, zero-based:
// Range(0, 9) is Limit(10) with offset 0.
func (q *SelectQuery) Range(from, to int) *SelectQuery {
	if from < 0 || to < from {
		q.fail(validationf("invalid range %d..%d", from, to))
		return q
	}
	limit := to - from + 1
	q.desc.Offset = &from
	q.desc.Limit = &limit
	return q
}

// WithContext sets the context used at resolution.
func (q *SelectQuery) WithContext(ctx context.Context) *SelectQuery {
	q.ctx = ctx
	return q
}

// Descriptor returns a copy of the accumulated descriptor.
func (q *SelectQuery) Descriptor() SelectDescriptor {
	d := q.desc.clone()
	d.Conditions = append(d.Conditions, q.f.conds...)
	return d
}

// Build assembles the statement without executing it.
func (q *SelectQuery) Build() (Statement, error) {
	if err := q.firstErr(); err != nil {
		return Statement{}, err
	}
	return BuildSelect(q.Descriptor(), q.client.exec.Dialect())
}

// Execute resolves the query as a list: {data: []Row, count: len}.
func (q *SelectQuery) Execute() Result {
	stmt, err := q.Build()
	return q.client.run(q.ctx, stmt, err)
}

// Single resolves exactly one row. No rows is NO_ROWS, more than one is
// MULTIPLE_ROWS.
func (q *SelectQuery) Single() Result {
	return applyMultiplicity(q.Execute(), false)
}

// MaybeSingle resolves at most one row. No rows is a success with nil data.
func (q *SelectQuery) MaybeSingle() Result {
	return applyMultiplicity(q.Execute(), true)
}

func (q *SelectQuery) fail(err *Error) {
	if q.err == nil {
		q.err = err
	}
}

func (q *SelectQuery) firstErr() error {
	switch {
	case q.err != nil:
		return q.err
	case q.f.err != nil:
		return q.f.err
	}
	return nil
}
