package core

import (
	"context"

	"github.com/coregx/airbase/internal/schema"
)

// Client is the entry point of the chain API. It binds an Executor to a
// relation schema; every From call starts an independent builder, so one
// Client may be shared by any number of goroutines.
//
// Example:
//
//	exec, _ := core.OpenLocal("postgres", dsn)
//	client := core.NewClient(exec, core.WithSchema(schema.Aviation()))
//
//	res := client.From("flights").
//	    Select("id, flight_number, aircraft:aircraft(registration)").
//	    Eq("status", "scheduled").
//	    Order("departure_time").
//	    Limit(20).
//	    Execute()
type Client struct {
	exec   Executor
	schema *schema.Schema
	cfg    *settings
}

// NewClient returns a client dispatching through exec. Options not
// concerning the client (pool sizes, codecs) are ignored.
func NewClient(exec Executor, opts ...Option) *Client {
	cfg := newSettings(opts)
	sc := cfg.schema
	if sc == nil {
		sc = schema.MustNew()
	}
	return &Client{exec: exec, schema: sc, cfg: cfg}
}

// Executor returns the executor the client dispatches through.
func (c *Client) Executor() Executor {
	return c.exec
}

// Schema returns the relation schema used to resolve relation tokens.
func (c *Client) Schema() *schema.Schema {
	return c.schema
}

// From starts a query on table.
func (c *Client) From(table string) *TableQuery {
	return &TableQuery{client: c, table: table}
}

// TableQuery selects the kind of statement to build on one table.
type TableQuery struct {
	client *Client
	table  string
}

// Select starts a read. fields is a comma-separated list of columns and
// relation tokens ("alias:table(col, col)"); empty selects "*".
func (t *TableQuery) Select(fields string) *SelectQuery {
	q := &SelectQuery{client: t.client, desc: SelectDescriptor{Table: t.table}}
	return q.Select(fields)
}

// Insert starts a multi-row insert. Every row must carry the same keys.
func (t *TableQuery) Insert(rows ...Row) *InsertQuery {
	return t.InsertRows(rows)
}

// InsertRows is Insert for an existing slice.
func (t *TableQuery) InsertRows(rows []Row) *InsertQuery {
	return &InsertQuery{client: t.client, desc: InsertDescriptor{Table: t.table, Rows: rows}}
}

// Update starts an update setting values. At least one filter must be
// added before resolution.
func (t *TableQuery) Update(values Row) *UpdateQuery {
	return &UpdateQuery{client: t.client, desc: UpdateDescriptor{Table: t.table, Values: values}}
}

// run executes a built statement, reporting a build failure through the
// envelope instead.
func (c *Client) run(ctx context.Context, stmt Statement, err error) Result {
	if err != nil {
		return failed(validationError(err))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.exec.Execute(ctx, stmt)
}

// filters accumulates AND-combined conditions. The first invalid
// condition is remembered and reported at resolution.
type filters struct {
	conds []Condition
	err   *Error
}

func (f *filters) add(field string, op Operator, value any) {
	c := Condition{Field: field, Operator: op, Value: value}
	if err := c.check(); err != nil && f.err == nil {
		f.err = validationError(err)
	}
	f.conds = append(f.conds, c)
}

// returningTerms splits a RETURNING list and validates each term.
func returningTerms(fields string) ([]string, *Error) {
	terms := schema.SplitTopLevel(fields)
	for _, t := range terms {
		if t == "*" {
			continue
		}
		if err := schema.ValidateIdentifier(t); err != nil {
			return nil, validationError(err)
		}
	}
	return terms, nil
}
