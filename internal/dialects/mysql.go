package dialects

import "strings"

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

// Name returns "mysql".
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// ILike lowers both sides; MySQL has no ILIKE operator.
func (d *MySQLDialect) ILike(column, placeholder string) string {
	return "LOWER(" + column + ") LIKE LOWER(" + placeholder + ")"
}

// SupportsReturning is false: MySQL has no RETURNING clause, so writes
// report rows affected instead of returned rows.
func (d *MySQLDialect) SupportsReturning() bool {
	return false
}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
}
