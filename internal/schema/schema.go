// Package schema holds the foreign-key map used to infer joins from the
// compact "alias:table(fields)" select syntax, and the parser for that syntax.
//
// A Schema is built once with functional options and is read-only afterwards,
// so a single instance may be shared by any number of concurrent builders.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/go-openapi/inflect"
)

var (
	// ErrJunction is returned when two tables are related through a junction
	// table and therefore cannot be joined directly.
	ErrJunction = errors.New("relation requires a junction table")
	// ErrUndeclaredRelation is returned in strict mode when no foreign key is
	// declared between two tables.
	ErrUndeclaredRelation = errors.New("relation is not declared")
	// ErrInvalidIdentifier is returned for table, column or alias names that
	// are not plain SQL identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s is a plain SQL identifier
// (letters, digits and underscores, not starting with a digit).
func ValidIdentifier(s string) bool {
	return len(s) <= 128 && identifierRegex.MatchString(s)
}

// ValidateIdentifier returns a wrapped ErrInvalidIdentifier when s is not a
// plain identifier. Dotted references are validated part by part.
func ValidateIdentifier(s string) error {
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '.' {
			continue
		}
		if !ValidIdentifier(s[start:i]) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
		}
		start = i + 1
	}
	return nil
}

// Schema is the foreign-key map: declared direct relations, declared
// many-to-many relations, well-known join columns and the naming fallback.
type Schema struct {
	relations map[string]map[string]string
	named     map[string]map[string]namedRelation
	junctions map[string]map[string]string
	wellKnown map[string]string
	strict    bool
	problems  []error
}

// Option configures a Schema at construction.
type Option func(*Schema)

// WithRelation declares that rows of from reference to through column.
//
//	WithRelation("flights", "aircraft", "aircraft_id")
//	// flights LEFT JOIN aircraft ON flights.aircraft_id = aircraft.id
func WithRelation(from, to, column string) Option {
	return func(s *Schema) {
		if column == "" {
			s.problems = append(s.problems, fmt.Errorf("relation %s->%s: empty foreign key column", from, to))
			return
		}
		put(s.relations, from, to, column)
	}
}

// namedRelation is a relation reachable under an alias of its own.
type namedRelation struct {
	table  string
	column string
}

// WithNamedRelation declares a relation of from to table to that is
// requested under name, so one table can be joined through several
// columns. It applies only when the request names to as its table.
//
//	WithNamedRelation("flights", "departure", "airports", "departure_airport_id")
//	// departure:airports(code) joins airports AS departure ON flights.departure_airport_id
func WithNamedRelation(from, name, to, column string) Option {
	return func(s *Schema) {
		if column == "" {
			s.problems = append(s.problems, fmt.Errorf("relation %s.%s->%s: empty foreign key column", from, name, to))
			return
		}
		inner, ok := s.named[from]
		if !ok {
			inner = make(map[string]namedRelation)
			s.named[from] = inner
		}
		inner[name] = namedRelation{table: to, column: column}
	}
}

// WithJunction declares a many-to-many relation between a and b through the
// junction table via. Such pairs are never joined directly.
func WithJunction(a, b, via string) Option {
	return func(s *Schema) {
		if via == "" {
			s.problems = append(s.problems, fmt.Errorf("junction %s<->%s: empty junction table", a, b))
			return
		}
		put(s.junctions, a, b, via)
		put(s.junctions, b, a, via)
	}
}

// WithWellKnown declares the join column used for table regardless of the
// referencing table, e.g. WithWellKnown("aircraft", "aircraft_id").
func WithWellKnown(table, column string) Option {
	return func(s *Schema) {
		s.wellKnown[table] = column
	}
}

// WithStrictRelations disables naming heuristics: only declared relations
// can be joined and anything else is an ErrUndeclaredRelation.
func WithStrictRelations() Option {
	return func(s *Schema) {
		s.strict = true
	}
}

func put(m map[string]map[string]string, from, to, value string) {
	inner, ok := m[from]
	if !ok {
		inner = make(map[string]string)
		m[from] = inner
	}
	inner[to] = value
}

// New builds a Schema and validates its declarations.
func New(opts ...Option) (*Schema, error) {
	s := &Schema{
		relations: make(map[string]map[string]string),
		named:     make(map[string]map[string]namedRelation),
		junctions: make(map[string]map[string]string),
		wellKnown: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is like New but panics on invalid declarations.
// Intended for package-level schemas built from constants.
func MustNew(opts ...Option) *Schema {
	s, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Strict reports whether naming heuristics are disabled.
func (s *Schema) Strict() bool {
	return s.strict
}

// Validate reports every inconsistent declaration: empty columns, invalid
// identifiers and pairs declared both as direct and as junction relations.
func (s *Schema) Validate() error {
	problems := append([]error(nil), s.problems...)

	for _, from := range sortedKeys(s.relations) {
		for _, to := range sortedKeys(s.relations[from]) {
			for _, id := range []string{from, to, s.relations[from][to]} {
				if err := ValidateIdentifier(id); err != nil {
					problems = append(problems, fmt.Errorf("relation %s->%s: %w", from, to, err))
				}
			}
			if via, ok := s.junctions[from][to]; ok {
				problems = append(problems, fmt.Errorf("relation %s->%s declared both direct and via junction %s", from, to, via))
			}
		}
	}
	for _, from := range sortedKeys(s.named) {
		for _, name := range sortedKeys(s.named[from]) {
			rel := s.named[from][name]
			for _, id := range []string{from, name, rel.table, rel.column} {
				if err := ValidateIdentifier(id); err != nil {
					problems = append(problems, fmt.Errorf("relation %s.%s->%s: %w", from, name, rel.table, err))
				}
			}
		}
	}
	for _, from := range sortedKeys(s.junctions) {
		for _, to := range sortedKeys(s.junctions[from]) {
			if err := ValidateIdentifier(s.junctions[from][to]); err != nil {
				problems = append(problems, fmt.Errorf("junction %s<->%s: %w", from, to, err))
			}
		}
	}
	for _, table := range sortedKeys(s.wellKnown) {
		if err := ValidateIdentifier(s.wellKnown[table]); err != nil {
			problems = append(problems, fmt.Errorf("well-known column for %s: %w", table, err))
		}
	}

	return errors.Join(problems...)
}

// Declared returns the declared foreign key column of from referencing to.
func (s *Schema) Declared(from, to string) (string, bool) {
	col, ok := s.relations[from][to]
	return col, ok
}

// Named returns the foreign key column of the relation of from declared
// under name, provided it targets to.
func (s *Schema) Named(from, name, to string) (string, bool) {
	rel, ok := s.named[from][name]
	if !ok || rel.table != to {
		return "", false
	}
	return rel.column, true
}

// ForeignKey resolves the column of from that references to.id.
// Resolution order: declared relation, well-known table, singular form of
// to plus "_id", then to plus "_id". Junction pairs return ErrJunction;
// strict schemas return ErrUndeclaredRelation instead of guessing.
func (s *Schema) ForeignKey(from, to string) (string, error) {
	if via, ok := s.junctions[from][to]; ok {
		return "", fmt.Errorf("%w: %s<->%s via %s", ErrJunction, from, to, via)
	}
	if col, ok := s.relations[from][to]; ok {
		return col, nil
	}
	if s.strict {
		return "", fmt.Errorf("%w: %s->%s", ErrUndeclaredRelation, from, to)
	}
	if col, ok := s.wellKnown[to]; ok {
		return col, nil
	}
	if singular := inflect.Singularize(to); singular != "" && singular != to {
		return singular + "_id", nil
	}
	return to + "_id", nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
