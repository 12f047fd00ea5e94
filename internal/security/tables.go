package security

import (
	"regexp"
	"strings"
)

const identPart = "(?:\"[^\"]+\"|`[^`]+`|[A-Za-z_][A-Za-z0-9_$]*)"

var tableRegex = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+(` + identPart + `(?:\.` + identPart + `)?)`)

// Tables returns the tables a statement reads or writes, in order of first
// appearance, with identifier quoting removed. It understands the shapes the
// query builder emits and is not a general SQL parser.
func Tables(query string) []string {
	matches := tableRegex.FindAllStringSubmatch(stripLiterals(query), -1)
	seen := make(map[string]bool, len(matches))
	var tables []string
	for _, m := range matches {
		name := unquote(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}

// Table returns the primary table of a statement, or "".
func Table(query string) string {
	if tables := Tables(query); len(tables) > 0 {
		return tables[0]
	}
	return ""
}

func unquote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(p, "\"`")
	}
	return strings.Join(parts, ".")
}
