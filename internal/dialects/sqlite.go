package dialects

import "strings"

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// ILike lowers both sides. SQLite LIKE is already case-insensitive for ASCII,
// LOWER keeps the behavior explicit.
func (d *SQLiteDialect) ILike(column, placeholder string) string {
	return "LOWER(" + column + ") LIKE LOWER(" + placeholder + ")"
}

// SupportsReturning is true (SQLite 3.35+).
func (d *SQLiteDialect) SupportsReturning() bool {
	return true
}
