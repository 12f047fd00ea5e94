// Package security guards the trusted data endpoint: it rejects statements
// that do not look like builder output, extracts the tables a statement
// touches, and writes the audit trail.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors. Callers map them to REJECTED_STATEMENT.
var (
	ErrDangerousPattern   = errors.New("dangerous SQL pattern")
	ErrMultipleStatements = errors.New("multiple statements")
	ErrOperation          = errors.New("operation not allowed")
	ErrSuspiciousParam    = errors.New("suspicious parameter value")
)

// DefaultOperations are the statements the query builder produces.
var DefaultOperations = []string{"SELECT", "INSERT", "UPDATE"}

// Validator checks statements received over the network before they reach
// the pool.
type Validator struct {
	patterns   []*regexp.Regexp
	strict     bool
	operations map[string]bool
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithStrict adds the aggressive pattern set. It rejects many legitimate
// statements and is meant for endpoints serving only simple lookups.
func WithStrict(strict bool) ValidatorOption {
	return func(v *Validator) {
		v.strict = strict
	}
}

// WithAllowedOperations replaces DefaultOperations.
func WithAllowedOperations(ops ...string) ValidatorOption {
	return func(v *Validator) {
		v.operations = make(map[string]bool, len(ops))
		for _, op := range ops {
			v.operations[strings.ToUpper(op)] = true
		}
	}
}

// NewValidator creates a validator with the default pattern set.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		patterns: compilePatterns(dangerousPatterns),
	}
	WithAllowedOperations(DefaultOperations...)(v)

	for _, opt := range opts {
		opt(v)
	}

	if v.strict {
		v.patterns = append(v.patterns, compilePatterns(strictPatterns)...)
	}

	return v
}

// dangerousPatterns never appear in builder output. An always-false
// "1=0" is absent on purpose: the builder emits it for an empty IN list.
var dangerousPatterns = []string{
	`--[\s]`,
	`/\*.*\*/`,
	`#[\s]`,

	`UNION\s+ALL\s+SELECT`,
	`UNION\s+SELECT`,

	`XP_CMDSHELL`,
	`\bEXEC\s*\(`,
	`\bEXECUTE\s*\(`,
	`SP_EXECUTESQL`,
	`\bEXEC\s+XP_`,
	`\bEXEC\s+SP_`,

	`INFORMATION_SCHEMA`,
	`PG_SLEEP\s*\(`,
	`BENCHMARK\s*\(`,
	`WAITFOR\s+DELAY`,

	`\s+OR\s+1\s*=\s*1\b`,
	`\s+OR\s+'1'\s*=\s*'1'`,
}

var strictPatterns = []string{
	`\bOR\b`,
	`\bUNION\b`,
	`\bEXEC\b`,
	`\bEXECUTE\b`,
}

// ValidateQuery rejects stacked statements, operations outside the allowed
// set and known injection patterns.
func (v *Validator) ValidateQuery(query string) error {
	stripped := stripLiterals(query)

	if i := strings.IndexByte(stripped, ';'); i >= 0 && strings.TrimSpace(stripped[i+1:]) != "" {
		return ErrMultipleStatements
	}

	op := firstKeyword(stripped)
	if op == "WITH" {
		op = "SELECT"
	}
	if !v.operations[op] {
		return fmt.Errorf("%w: %s", ErrOperation, op)
	}

	normalized := strings.ToUpper(stripped)
	for _, pattern := range v.patterns {
		if pattern.MatchString(normalized) {
			return fmt.Errorf("%w: %s", ErrDangerousPattern, pattern.String())
		}
	}

	return nil
}

// ValidateParams flags string parameters that look like an attempt to
// break out of a literal. Parameters are bound, so this is an audit aid
// rather than a hard boundary.
func (v *Validator) ValidateParams(params []any) error {
	for i, param := range params {
		str, ok := param.(string)
		if !ok {
			continue
		}
		if containsSQLInjection(str) {
			return fmt.Errorf("%w at index %d", ErrSuspiciousParam, i)
		}
	}
	return nil
}

func containsSQLInjection(value string) bool {
	indicators := []string{
		"'--",
		"';",
		"' OR ",
		"' AND ",
		"/*",
		"*/",
		"' UNION ",
		"' DROP ",
		"XP_",
	}

	upper := strings.ToUpper(value)
	for _, indicator := range indicators {
		if strings.Contains(upper, indicator) {
			return true
		}
	}
	return false
}

// stripLiterals blanks out single-quoted string literals so their content
// cannot trip the checks. Quoted identifiers are kept.
func stripLiterals(query string) string {
	var sb strings.Builder
	sb.Grow(len(query))
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' && inString && i+1 < len(query) && query[i+1] == '\'':
			i++
		case c == '\'':
			inString = !inString
			sb.WriteByte(c)
		case inString:
			sb.WriteByte(' ')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func firstKeyword(query string) string {
	query = strings.TrimLeft(query, " \t\r\n(")
	end := strings.IndexFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(query)
	}
	return strings.ToUpper(query[:end])
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, pattern := range patterns {
		compiled[i] = regexp.MustCompile(pattern)
	}
	return compiled
}
