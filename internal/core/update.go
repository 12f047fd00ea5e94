package core

import "context"

// UpdateQuery builds an UPDATE. Resolving it without a filter fails with
// UNBOUNDED_UPDATE and nothing is sent to the database.
type UpdateQuery struct {
	client *Client
	ctx    context.Context
	desc   UpdateDescriptor
	f      filters
	err    *Error
}

// Eq filters field = value.
func (q *UpdateQuery) Eq(field string, value any) *UpdateQuery {
	q.f.add(field, OpEq, value)
	return q
}

// Neq filters field <> value.
func (q *UpdateQuery) Neq(field string, value any) *UpdateQuery {
	q.f.add(field, OpNeq, value)
	return q
}

// Gt filters field > value.
func (q *UpdateQuery) Gt(field string, value any) *UpdateQuery {
	q.f.add(field, OpGt, value)
	return q
}

// Gte filters field >= value.
func (q *UpdateQuery) Gte(field string, value any) *UpdateQuery {
	q.f.add(field, OpGte, value)
	return q
}

// Lt filters field < value.
func (q *UpdateQuery) Lt(field string, value any) *UpdateQuery {
	q.f.add(field, OpLt, value)
	return q
}

// Lte filters field <= value.
func (q *UpdateQuery) Lte(field string, value any) *UpdateQuery {
	q.f.add(field, OpLte, value)
	return q
}

// Like filters field LIKE pattern.
func (q *UpdateQuery) Like(field, pattern string) *UpdateQuery {
	q.f.add(field, OpLike, pattern)
	return q
}

// ILike filters case-insensitively.
func (q *UpdateQuery) ILike(field, pattern string) *UpdateQuery {
	q.f.add(field, OpILike, pattern)
	return q
}

// In filters field IN (values...).
func (q *UpdateQuery) In(field string, values any) *UpdateQuery {
	q.f.add(field, OpIn, values)
	return q
}

// Is filters field IS NULL, IS TRUE or IS FALSE.
func (q *UpdateQuery) Is(field string, value any) *UpdateQuery {
	q.f.add(field, OpIs, value)
	return q
}

// Select sets the RETURNING list.
func (q *UpdateQuery) Select(fields string) *UpdateQuery {
	terms, err := returningTerms(fields)
	if err != nil {
		q.err = err
		return q
	}
	q.desc.Returning = terms
	return q
}

// WithContext sets the context used at resolution.
func (q *UpdateQuery) WithContext(ctx context.Context) *UpdateQuery {
	q.ctx = ctx
	return q
}

// Descriptor returns a copy of the accumulated descriptor.
func (q *UpdateQuery) Descriptor() UpdateDescriptor {
	d := q.desc.clone()
	d.Conditions = append(d.Conditions, q.f.conds...)
	return d
}

// Build assembles the statement without executing it.
func (q *UpdateQuery) Build() (Statement, error) {
	if len(q.f.conds) == 0 {
		return Statement{}, ErrUnboundedUpdate.with(q.desc.Table, nil)
	}
	if q.err != nil {
		return Statement{}, q.err
	}
	if q.f.err != nil {
		return Statement{}, q.f.err
	}
	return BuildUpdate(q.Descriptor(), q.client.exec.Dialect())
}

// Execute runs the update and returns the RETURNING rows, or the number
// of rows affected in Count on dialects without RETURNING.
func (q *UpdateQuery) Execute() Result {
	stmt, err := q.Build()
	return q.client.run(q.ctx, stmt, err)
}

// Single expects exactly one updated row. Without RETURNING the rows
// affected count is checked instead; MySQL counts only rows whose values
// changed unless the DSN sets clientFoundRows=true.
func (q *UpdateQuery) Single() Result {
	return applyMultiplicity(q.Execute(), false)
}

// MaybeSingle expects at most one updated row, by count without RETURNING.
func (q *UpdateQuery) MaybeSingle() Result {
	return applyMultiplicity(q.Execute(), true)
}
