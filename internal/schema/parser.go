package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// relationRegex matches "alias:table(fields)". The colon is required so that
// function calls such as count(*) stay plain terms.
var relationRegex = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\s*:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\((.*)\)$`)

// RelationRequest is one parsed relation token of a select string.
type RelationRequest struct {
	Alias  string
	Table  string
	Fields string
}

// Join is a LEFT JOIN the assembler must emit:
//
//	LEFT JOIN <Table> [AS <Alias>] ON <base>.<ForeignKey> = <Alias>.id
type Join struct {
	Alias      string
	Table      string
	ForeignKey string
}

// Field is one entry of the SELECT list. Raw entries are emitted verbatim;
// the others are rendered as Table.Column [AS Alias] with dialect quoting.
// Nest is set on the Table.* field of a relation requested with "*": its
// columns are gathered under the Nest key of each row instead of being
// flattened into it.
type Field struct {
	Raw    string
	Table  string
	Column string
	Alias  string
	Nest   string
}

// DroppedRelation describes a relation token that produced no join.
type DroppedRelation struct {
	Alias  string
	Table  string
	Reason error
}

// Selection is the parsed form of a select string.
type Selection struct {
	Fields  []Field
	Joins   []Join
	Dropped []DroppedRelation
}

// relationEntry keeps a resolved relation with the fields it contributes.
type relationEntry struct {
	join   Join
	fields []Field
}

// ParseSelect parses a select string for table. Plain terms are kept
// verbatim, or table-qualified when a join exists; relation tokens become
// joins resolved through the foreign-key map. Nested relation fields come
// last. A relation requested twice under the same alias keeps the last one.
// Junction relations are reported in Dropped instead of producing a join;
// in strict mode an undeclared relation fails the whole parse.
func (s *Schema) ParseSelect(table, fields string) (Selection, error) {
	var sel Selection
	if err := ValidateIdentifier(table); err != nil {
		return sel, err
	}

	var plain []string
	var order []string
	relations := make(map[string]*relationEntry)

	for _, term := range SplitTopLevel(fields) {
		req, ok := ParseRelation(term)
		if !ok {
			plain = append(plain, term)
			continue
		}

		entry, err := s.resolve(table, req)
		if err != nil {
			if errors.Is(err, ErrJunction) {
				sel.Dropped = append(sel.Dropped, DroppedRelation{Alias: req.Alias, Table: req.Table, Reason: err})
				delete(relations, req.Alias)
				order = remove(order, req.Alias)
				continue
			}
			return Selection{}, err
		}

		if _, exists := relations[req.Alias]; !exists {
			order = append(order, req.Alias)
		}
		relations[req.Alias] = entry
	}

	// Once a join exists, bare columns are qualified with the base table so
	// names shared with a joined table (id) stay unambiguous.
	for _, term := range plain {
		if len(relations) > 0 && (term == "*" || ValidIdentifier(term)) {
			sel.Fields = append(sel.Fields, Field{Table: table, Column: term})
			continue
		}
		sel.Fields = append(sel.Fields, Field{Raw: term})
	}
	var nested []Field
	for _, alias := range order {
		entry := relations[alias]
		sel.Joins = append(sel.Joins, entry.join)
		for _, f := range entry.fields {
			if f.Nest != "" {
				nested = append(nested, f)
				continue
			}
			sel.Fields = append(sel.Fields, f)
		}
	}
	sel.Fields = append(sel.Fields, nested...)

	return sel, nil
}

// resolve turns a relation request into a join plus its select fields.
// A relation declared under the alias name for the same table takes
// precedence, so one table can be joined twice (departure:airports,
// arrival:airports). Otherwise the alias is only a label.
func (s *Schema) resolve(table string, req RelationRequest) (*relationEntry, error) {
	for _, id := range []string{req.Alias, req.Table} {
		if err := ValidateIdentifier(id); err != nil {
			return nil, err
		}
	}

	fk, ok := s.Named(table, req.Alias, req.Table)
	if !ok {
		var err error
		if fk, err = s.ForeignKey(table, req.Table); err != nil {
			return nil, err
		}
	}

	entry := &relationEntry{join: Join{Alias: req.Alias, Table: req.Table, ForeignKey: fk}}

	sub := strings.TrimSpace(req.Fields)
	if sub == "" || sub == "*" {
		entry.fields = []Field{{Table: req.Alias, Column: "*", Nest: req.Alias}}
		return entry, nil
	}
	for _, f := range SplitTopLevel(sub) {
		if err := ValidateIdentifier(f); err != nil {
			return nil, fmt.Errorf("relation %s: %w", req.Alias, err)
		}
		entry.fields = append(entry.fields, Field{Table: req.Alias, Column: f, Alias: req.Alias + "_" + f})
	}
	return entry, nil
}

// ParseRelation parses a single "alias:table(fields)" term.
func ParseRelation(term string) (RelationRequest, bool) {
	m := relationRegex.FindStringSubmatch(strings.TrimSpace(term))
	if m == nil {
		return RelationRequest{}, false
	}
	return RelationRequest{Alias: m[1], Table: m[2], Fields: m[3]}, true
}

// SplitTopLevel splits s on commas that are not inside parentheses and
// trims each term. Empty terms are dropped.
func SplitTopLevel(s string) []string {
	var terms []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				terms = appendTerm(terms, s[start:i])
				start = i + 1
			}
		}
	}
	return appendTerm(terms, s[start:])
}

func appendTerm(terms []string, term string) []string {
	if term = strings.TrimSpace(term); term != "" {
		terms = append(terms, term)
	}
	return terms
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
