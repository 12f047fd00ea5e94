// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, MySQL, and SQLite, handling identifier quoting, placeholders,
// case-insensitive matching and RETURNING support.
package dialects

import "strings"

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name is the database system name reported in traces (postgresql, mysql, sqlite).
	Name() string
	QuoteIdentifier(string) string
	Placeholder(int) string
	// ILike renders a case-insensitive LIKE between a quoted column and a placeholder.
	ILike(column, placeholder string) string
	// SupportsReturning reports whether INSERT/UPDATE accept a RETURNING clause.
	SupportsReturning() bool
}

var dialects = make(map[string]Dialect)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	if d, ok := dialects[name]; ok {
		return d
	}
	panic("unsupported dialect: " + name)
}

// Lookup retrieves a registered dialect by driver name.
func Lookup(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}

// QuoteQualified quotes a possibly schema- or table-qualified identifier.
// Each dot-separated part is quoted separately; a trailing "*" is left bare.
//
//	PostgreSQL: flights.aircraft_id → "flights"."aircraft_id", flights.* → "flights".*
//	MySQL:      flights.aircraft_id → `flights`.`aircraft_id`
func QuoteQualified(d Dialect, identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "*" {
			parts[i] = part
			continue
		}
		parts[i] = d.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}
