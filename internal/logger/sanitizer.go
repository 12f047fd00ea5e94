package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSensitiveFields are column names whose presence in a statement
// masks all of its parameters in logs. Crew records carry licence and
// medical data, so those are on the list too.
var DefaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "secret",
	"auth", "authorization", "private_key",
	"license_number", "licence_number", "passport_number",
	"date_of_birth", "medical_certificate", "ssn",
}

const (
	maskValue   = "***REDACTED***"
	maxParamLen = 100
)

// Sanitizer masks statement parameters before they are logged. Parameter
// positions are not tracked, so a statement naming any sensitive column has
// every parameter masked.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer creates a sanitizer for fields, or DefaultSensitiveFields
// when fields is empty.
func NewSanitizer(fields []string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}

	patterns := make([]*regexp.Regexp, len(fields))
	for i, field := range fields {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(field) + `\b`)
	}
	return &Sanitizer{patterns: patterns}
}

// Sensitive reports whether sql names a sensitive column.
func (s *Sanitizer) Sensitive(sql string) bool {
	for _, p := range s.patterns {
		if p.MatchString(sql) {
			return true
		}
	}
	return false
}

// MaskParams returns params with every value masked when sql is sensitive.
// The input slice is never modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.Sensitive(sql) {
		return params
	}
	masked := make([]any, len(params))
	for i := range masked {
		masked[i] = maskValue
	}
	return masked
}

// FormatParams renders params for a log line, truncating long values.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Format masks and renders params in one step.
func (s *Sanitizer) Format(sql string, params []any) string {
	return s.FormatParams(s.MaskParams(sql, params))
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxParamLen {
		return str[:maxParamLen] + "..."
	}
	return str
}
