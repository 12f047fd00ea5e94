package core

import (
	"reflect"
	"strings"

	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/schema"
)

// Operator is a filter operator.
type Operator string

// Filter operators supported by the chain API. Conditions are always
// combined with AND; OR is not supported.
const (
	OpEq    Operator = "="
	OpNeq   Operator = "<>"
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpLike  Operator = "LIKE"
	OpILike Operator = "ILIKE"
	OpIn    Operator = "IN"
	OpIs    Operator = "IS"
)

// Condition is one WHERE predicate.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// argList numbers placeholders in the order values are bound, so the
// rendered SQL always references $1..$n exactly once and without gaps.
type argList struct {
	dialect dialects.Dialect
	params  []any
}

func newArgList(d dialects.Dialect) *argList {
	return &argList{dialect: d}
}

// add binds v and returns its placeholder.
func (a *argList) add(v any) string {
	a.params = append(a.params, v)
	return a.dialect.Placeholder(len(a.params))
}

// check validates a condition without rendering it.
func (c Condition) check() error {
	if err := schema.ValidateIdentifier(c.Field); err != nil {
		return validationError(err)
	}

	switch c.Operator {
	case OpEq, OpNeq:
	case OpGt, OpGte, OpLt, OpLte, OpLike, OpILike:
		if c.Value == nil {
			return validationf("%s: operator %s needs a non-null value", c.Field, c.Operator)
		}
	case OpIn:
		if c.Value == nil {
			return validationf("%s: in needs a list", c.Field)
		}
		if k := reflect.TypeOf(c.Value).Kind(); k != reflect.Slice && k != reflect.Array {
			return validationf("%s: in needs a list, got %T", c.Field, c.Value)
		}
	case OpIs:
		switch c.Value.(type) {
		case nil, bool:
		default:
			return validationf("%s: is accepts null, true or false, got %T", c.Field, c.Value)
		}
	default:
		return validationf("%s: unknown operator %q", c.Field, c.Operator)
	}
	return nil
}

// build renders the condition against column, the already quoted field.
func (c Condition) build(column string, args *argList) string {
	switch c.Operator {
	case OpEq, OpNeq:
		if c.Value == nil {
			if c.Operator == OpEq {
				return column + " IS NULL"
			}
			return column + " IS NOT NULL"
		}
		return column + " " + string(c.Operator) + " " + args.add(c.Value)

	case OpILike:
		return args.dialect.ILike(column, args.add(c.Value))

	case OpIn:
		v := reflect.ValueOf(c.Value)
		if v.Len() == 0 {
			return "1=0"
		}
		ph := make([]string, v.Len())
		for i := range ph {
			ph[i] = args.add(v.Index(i).Interface())
		}
		return column + " IN (" + strings.Join(ph, ", ") + ")"

	case OpIs:
		switch c.Value {
		case true:
			return column + " IS TRUE"
		case false:
			return column + " IS FALSE"
		default:
			return column + " IS NULL"
		}

	default:
		return column + " " + string(c.Operator) + " " + args.add(c.Value)
	}
}
