package core

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/coregx/airbase/internal/wire"
)

// nestMarker prefixes the marker column emitted before a nested relation's
// columns. Every column after it, up to the next marker, belongs to the
// relation named by the rest of the marker.
const nestMarker = "__nest__"

// scanRows reads every row into a Row keyed by column name. Values are
// normalized so local rows compare equal to rows decoded off the wire.
// Columns of a nested relation are gathered into a Row stored under the
// relation alias, or nil when the LEFT JOIN matched nothing. Otherwise a
// repeated column name keeps its first occurrence. rows is not closed here.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// nests[i] is the relation alias column i belongs to, "" for the base
	// row; markers are flagged and skipped.
	nests := make([]string, len(columns))
	markers := make([]bool, len(columns))
	var aliases []string
	current := ""
	for i, col := range columns {
		if alias, ok := strings.CutPrefix(col, nestMarker); ok {
			current = alias
			markers[i] = true
			aliases = append(aliases, alias)
			continue
		}
		nests[i] = current
	}

	out := make([]Row, 0)
	values := make([]any, len(columns))
	dests := make([]any, len(columns))
	for i := range values {
		dests[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		var nested map[string]Row
		if len(aliases) > 0 {
			nested = make(map[string]Row, len(aliases))
			for _, alias := range aliases {
				nested[alias] = make(Row)
			}
		}
		for i, col := range columns {
			if markers[i] {
				continue
			}
			target := row
			if nests[i] != "" {
				target = nested[nests[i]]
			}
			if _, dup := target[col]; dup {
				continue
			}
			target[col] = wire.Normalize(values[i])
		}
		for _, alias := range aliases {
			row[alias] = nestedValue(nested[alias])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// nestedValue returns rel, or nil when every column is NULL: the LEFT JOIN
// found no row, since a matched row has a non-NULL id.
func nestedValue(rel Row) any {
	for _, v := range rel {
		if v != nil {
			return rel
		}
	}
	return nil
}

// decoder maps Row values onto struct fields tagged `db:"column"`.
// Untagged exported fields match their lower-cased name.
type decoder struct {
	mu    sync.RWMutex
	cache map[reflect.Type]map[string][]int
}

var globalDecoder = &decoder{cache: make(map[reflect.Type]map[string][]int)}

// fields returns column → field index path for typ, cached per type.
func (d *decoder) fields(typ reflect.Type) map[string][]int {
	d.mu.RLock()
	m, ok := d.cache[typ]
	d.mu.RUnlock()
	if ok {
		return m
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.cache[typ]; ok {
		return m
	}
	m = make(map[string][]int)
	collectFields(typ, nil, m)
	d.cache[typ] = m
	return m
}

func collectFields(typ reflect.Type, index []int, out map[string][]int) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		path := append(append([]int{}, index...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, path, out)
			continue
		}

		name := strings.ToLower(f.Name)
		if tag, ok := f.Tag.Lookup("db"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		if _, exists := out[name]; !exists {
			out[name] = path
		}
	}
}

// Decode copies Data into dest: a pointer to a struct for a single row, or
// a pointer to a slice of structs (or struct pointers) for a list. A failed
// result returns its error.
func (r Result) Decode(dest any) error {
	if r.Error != nil {
		return r.Error
	}

	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("decode: dest must be a non-nil pointer, got %T", dest)
	}
	v = v.Elem()

	switch v.Kind() {
	case reflect.Struct:
		row := r.Row()
		if row == nil {
			return ErrNoRows
		}
		return decodeRow(row, v)

	case reflect.Slice:
		rows := r.Rows()
		elem := v.Type().Elem()
		isPtr := elem.Kind() == reflect.Pointer
		if isPtr {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return fmt.Errorf("decode: slice element must be a struct, got %s", elem)
		}
		out := reflect.MakeSlice(v.Type(), 0, len(rows))
		for _, row := range rows {
			item := reflect.New(elem)
			if err := decodeRow(row, item.Elem()); err != nil {
				return err
			}
			if isPtr {
				out = reflect.Append(out, item)
			} else {
				out = reflect.Append(out, item.Elem())
			}
		}
		v.Set(out)
		return nil

	default:
		return fmt.Errorf("decode: unsupported destination %T", dest)
	}
}

func decodeRow(row Row, v reflect.Value) error {
	for col, path := range globalDecoder.fields(v.Type()) {
		val, ok := row[col]
		if !ok {
			continue
		}
		if err := assign(v.FieldByIndex(path), val); err != nil {
			return fmt.Errorf("decode column %s: %w", col, err)
		}
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// assign stores a normalized value into field, converting between numeric
// kinds and parsing RFC 3339 strings into time.Time.
func assign(field reflect.Value, val any) error {
	if val == nil {
		field.SetZero()
		return nil
	}

	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := assign(ptr.Elem(), val); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	if field.Type() == timeType {
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("cannot use %T as time", val)
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	if m, ok := val.(map[string]any); ok && field.Kind() == reflect.Struct {
		return decodeRow(m, field)
	}

	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(field.Type()):
		field.Set(rv)
	case isNumber(rv.Kind()) && isNumber(field.Kind()):
		field.Set(rv.Convert(field.Type()))
	case rv.Kind() == reflect.String && field.Kind() == reflect.String:
		field.SetString(rv.String())
	case rv.Kind() == reflect.Int64 && field.Kind() == reflect.Bool:
		// SQLite and MySQL store booleans as integers.
		field.SetBool(rv.Int() != 0)
	default:
		return fmt.Errorf("cannot use %T as %s", val, field.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// parseTime accepts RFC 3339 and the plain formats SQLite stores.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
