package core

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/schema"
)

// Statement is a parameterized SQL statement: the only value that crosses
// from the assembler to an executor. SQL references every parameter exactly
// once, in order. Returns reports whether the statement yields rows.
type Statement struct {
	SQL     string
	Params  []any
	Returns bool

	// Table is the primary table, used for tracing and cache keys.
	Table string
}

// Assemble renders any descriptor for the given dialect. It is pure: the
// descriptor is read, never modified.
func Assemble(d Descriptor, dialect dialects.Dialect) (Statement, error) {
	switch v := d.(type) {
	case SelectDescriptor:
		return BuildSelect(v, dialect)
	case *SelectDescriptor:
		return BuildSelect(*v, dialect)
	case InsertDescriptor:
		return BuildInsert(v, dialect)
	case *InsertDescriptor:
		return BuildInsert(*v, dialect)
	case UpdateDescriptor:
		return BuildUpdate(v, dialect)
	case *UpdateDescriptor:
		return BuildUpdate(*v, dialect)
	default:
		return Statement{}, validationf("unsupported descriptor %T", d)
	}
}

// BuildSelect renders
//
//	SELECT <fields> FROM <table> [LEFT JOIN ...]* [WHERE ... AND ...]
//	[ORDER BY <field> ASC|DESC] [LIMIT n] [OFFSET n]
//
// When joins are present, unqualified filter and order fields are qualified
// with the base table so they cannot become ambiguous.
func BuildSelect(d SelectDescriptor, dialect dialects.Dialect) (Statement, error) {
	if err := schema.ValidateIdentifier(d.Table); err != nil {
		return Statement{}, validationError(err)
	}

	var sb strings.Builder
	args := newArgList(dialect)

	sb.WriteString("SELECT ")
	sb.WriteString(selectList(d.Fields, dialect))
	sb.WriteString(" FROM ")
	sb.WriteString(dialects.QuoteQualified(dialect, d.Table))

	for _, j := range d.Joins {
		sb.WriteString(" ")
		sb.WriteString(joinClause(d.Table, j, dialect))
	}

	qualify := ""
	if len(d.Joins) > 0 {
		qualify = d.Table
	}

	where, err := whereClause(d.Conditions, qualify, args)
	if err != nil {
		return Statement{}, err
	}
	sb.WriteString(where)

	if d.Order != nil {
		if err := schema.ValidateIdentifier(d.Order.Field); err != nil {
			return Statement{}, validationError(err)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteField(qualify, d.Order.Field, dialect))
		if d.Order.Ascending {
			sb.WriteString(" ASC")
		} else {
			sb.WriteString(" DESC")
		}
	}

	if d.Limit != nil && *d.Limit < 0 {
		return Statement{}, validationf("limit must not be negative, got %d", *d.Limit)
	}
	if d.Offset != nil && *d.Offset < 0 {
		return Statement{}, validationf("offset must not be negative, got %d", *d.Offset)
	}
	switch {
	case d.Limit != nil:
		sb.WriteString(" LIMIT " + strconv.Itoa(*d.Limit))
	case d.Offset != nil && dialect.Name() != "postgresql":
		// MySQL and SQLite only accept OFFSET after a LIMIT.
		sb.WriteString(" LIMIT " + unboundedLimit(dialect))
	}
	if d.Offset != nil {
		sb.WriteString(" OFFSET " + strconv.Itoa(*d.Offset))
	}

	return Statement{SQL: sb.String(), Params: args.params, Returns: true, Table: d.Table}, nil
}

// BuildInsert renders one multi-row INSERT. Columns are the sorted keys of
// the first row; every other row must carry exactly the same keys.
// Parameters are bound row-major.
func BuildInsert(d InsertDescriptor, dialect dialects.Dialect) (Statement, error) {
	if err := schema.ValidateIdentifier(d.Table); err != nil {
		return Statement{}, validationError(err)
	}
	if len(d.Rows) == 0 {
		return Statement{}, validationf("insert into %s: no rows", d.Table)
	}

	columns := slices.Sorted(maps.Keys(d.Rows[0]))
	if len(columns) == 0 {
		return Statement{}, validationf("insert into %s: row 0 has no columns", d.Table)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return Statement{}, validationError(err)
		}
		quoted[i] = dialect.QuoteIdentifier(c)
	}

	args := newArgList(dialect)
	tuples := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		if !sameKeys(row, columns) {
			return Statement{}, validationf("insert into %s: row %d columns differ from row 0 (%s)",
				d.Table, i, strings.Join(columns, ", "))
		}
		ph := make([]string, len(columns))
		for j, c := range columns {
			ph[j] = args.add(row[c])
		}
		tuples[i] = "(" + strings.Join(ph, ", ") + ")"
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(dialects.QuoteQualified(dialect, d.Table))
	sb.WriteString(" (" + strings.Join(quoted, ", ") + ")")
	sb.WriteString(" VALUES ")
	sb.WriteString(strings.Join(tuples, ", "))

	returns := dialect.SupportsReturning()
	if returns {
		sb.WriteString(" RETURNING ")
		sb.WriteString(returningList(d.Returning))
	}

	return Statement{SQL: sb.String(), Params: args.params, Returns: returns, Table: d.Table}, nil
}

// BuildUpdate renders an UPDATE. An update without conditions is rejected
// with UNBOUNDED_UPDATE before anything is rendered.
func BuildUpdate(d UpdateDescriptor, dialect dialects.Dialect) (Statement, error) {
	if len(d.Conditions) == 0 {
		return Statement{}, ErrUnboundedUpdate.with(d.Table, nil)
	}
	if err := schema.ValidateIdentifier(d.Table); err != nil {
		return Statement{}, validationError(err)
	}
	if len(d.Values) == 0 {
		return Statement{}, validationf("update %s: no values", d.Table)
	}

	args := newArgList(dialect)
	columns := slices.Sorted(maps.Keys(d.Values))
	sets := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return Statement{}, validationError(err)
		}
		sets[i] = dialect.QuoteIdentifier(c) + " = " + args.add(d.Values[c])
	}

	where, err := whereClause(d.Conditions, "", args)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(dialects.QuoteQualified(dialect, d.Table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))
	sb.WriteString(where)

	returns := dialect.SupportsReturning()
	if returns {
		sb.WriteString(" RETURNING ")
		sb.WriteString(returningList(d.Returning))
	}

	return Statement{SQL: sb.String(), Params: args.params, Returns: returns, Table: d.Table}, nil
}

func selectList(fields []schema.Field, dialect dialects.Dialect) string {
	if len(fields) == 0 {
		return "*"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		switch {
		case f.Raw != "":
			parts[i] = f.Raw
		case f.Alias != "":
			parts[i] = dialects.QuoteQualified(dialect, f.Table+"."+f.Column) + " AS " + dialect.QuoteIdentifier(f.Alias)
		case f.Nest != "":
			// The marker column tells scanRows where the nested columns start.
			parts[i] = "NULL AS " + dialect.QuoteIdentifier(nestMarker+f.Nest) + ", " +
				dialects.QuoteQualified(dialect, f.Table+"."+f.Column)
		default:
			parts[i] = dialects.QuoteQualified(dialect, f.Table+"."+f.Column)
		}
	}
	return strings.Join(parts, ", ")
}

// joinClause renders LEFT JOIN <table> [AS <alias>] ON <base>.<fk> = <alias>.id.
func joinClause(base string, j schema.Join, dialect dialects.Dialect) string {
	var sb strings.Builder
	sb.WriteString("LEFT JOIN ")
	sb.WriteString(dialect.QuoteIdentifier(j.Table))
	if j.Alias != "" && j.Alias != j.Table {
		sb.WriteString(" AS ")
		sb.WriteString(dialect.QuoteIdentifier(j.Alias))
	}
	ref := j.Alias
	if ref == "" {
		ref = j.Table
	}
	sb.WriteString(" ON ")
	sb.WriteString(dialects.QuoteQualified(dialect, base+"."+j.ForeignKey))
	sb.WriteString(" = ")
	sb.WriteString(dialects.QuoteQualified(dialect, ref+".id"))
	return sb.String()
}

func whereClause(conds []Condition, qualify string, args *argList) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		if err := c.check(); err != nil {
			return "", err
		}
		parts[i] = c.build(quoteField(qualify, c.Field, args.dialect), args)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// quoteField quotes field, prefixing table when field is unqualified and
// table is not empty.
func quoteField(table, field string, dialect dialects.Dialect) string {
	if table != "" && !strings.Contains(field, ".") {
		field = table + "." + field
	}
	return dialects.QuoteQualified(dialect, field)
}

func returningList(terms []string) string {
	if len(terms) == 0 {
		return "*"
	}
	return strings.Join(terms, ", ")
}

func unboundedLimit(dialect dialects.Dialect) string {
	if dialect.Name() == "mysql" {
		return "18446744073709551615"
	}
	return "-1"
}

func sameKeys(row Row, columns []string) bool {
	if len(row) != len(columns) {
		return false
	}
	for _, c := range columns {
		if _, ok := row[c]; !ok {
			return false
		}
	}
	return true
}
