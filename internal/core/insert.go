package core

import "context"

// InsertQuery builds a single multi-row INSERT.
type InsertQuery struct {
	client *Client
	ctx    context.Context
	desc   InsertDescriptor
	err    *Error
}

// Select sets the RETURNING list. The default is "*". Dialects without
// RETURNING ignore it and report rows affected in Count.
func (q *InsertQuery) Select(fields string) *InsertQuery {
	terms, err := returningTerms(fields)
	if err != nil {
		q.err = err
		return q
	}
	q.desc.Returning = terms
	return q
}

// WithContext sets the context used at resolution.
func (q *InsertQuery) WithContext(ctx context.Context) *InsertQuery {
	q.ctx = ctx
	return q
}

// Descriptor returns a copy of the accumulated descriptor.
func (q *InsertQuery) Descriptor() InsertDescriptor {
	return q.desc.clone()
}

// Build assembles the statement without executing it.
func (q *InsertQuery) Build() (Statement, error) {
	if q.err != nil {
		return Statement{}, q.err
	}
	return BuildInsert(q.Descriptor(), q.client.exec.Dialect())
}

// Execute inserts the rows and returns the RETURNING rows as a list.
func (q *InsertQuery) Execute() Result {
	stmt, err := q.Build()
	return q.client.run(q.ctx, stmt, err)
}

// Single inserts and expects exactly one returned row.
func (q *InsertQuery) Single() Result {
	return applyMultiplicity(q.Execute(), false)
}

// MaybeSingle inserts and expects at most one returned row.
func (q *InsertQuery) MaybeSingle() Result {
	return applyMultiplicity(q.Execute(), true)
}
