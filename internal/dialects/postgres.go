package dialects

import (
	"fmt"
	"strings"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
}

// Name returns "postgresql".
func (d *PostgresDialect) Name() string {
	return "postgresql"
}

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// ILike uses the native ILIKE operator.
func (d *PostgresDialect) ILike(column, placeholder string) string {
	return column + " ILIKE " + placeholder
}

// SupportsReturning is always true for PostgreSQL.
func (d *PostgresDialect) SupportsReturning() bool {
	return true
}
