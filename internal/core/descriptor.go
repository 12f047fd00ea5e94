package core

import (
	"maps"
	"slices"

	"github.com/coregx/airbase/internal/schema"
)

// Kind identifies the statement a Descriptor describes.
type Kind int

// Descriptor kinds.
const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
)

// String returns the SQL verb for the kind.
func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Descriptor is the structured form of a query accumulated by a builder.
// It is one of SelectDescriptor, InsertDescriptor or UpdateDescriptor.
type Descriptor interface {
	Kind() Kind
	TableName() string
}

// Order is the single active ordering of a select.
type Order struct {
	Field     string
	Ascending bool
}

// SelectDescriptor describes a SELECT. Fields and Joins come from the
// relation parser; a nil Fields list selects everything.
type SelectDescriptor struct {
	Table      string
	Fields     []schema.Field
	Conditions []Condition
	Order      *Order
	Limit      *int
	Offset     *int
	Joins      []schema.Join
}

// Kind implements Descriptor.
func (SelectDescriptor) Kind() Kind { return KindSelect }

// TableName implements Descriptor.
func (d SelectDescriptor) TableName() string { return d.Table }

func (d SelectDescriptor) clone() SelectDescriptor {
	c := d
	c.Fields = slices.Clone(d.Fields)
	c.Conditions = slices.Clone(d.Conditions)
	c.Joins = slices.Clone(d.Joins)
	if d.Order != nil {
		o := *d.Order
		c.Order = &o
	}
	c.Limit = cloneInt(d.Limit)
	c.Offset = cloneInt(d.Offset)
	return c
}

// InsertDescriptor describes a multi-row INSERT. Returning holds the raw
// RETURNING terms; empty means "*".
type InsertDescriptor struct {
	Table     string
	Rows      []Row
	Returning []string
}

// Kind implements Descriptor.
func (InsertDescriptor) Kind() Kind { return KindInsert }

// TableName implements Descriptor.
func (d InsertDescriptor) TableName() string { return d.Table }

func (d InsertDescriptor) clone() InsertDescriptor {
	c := d
	c.Rows = make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		c.Rows[i] = maps.Clone(r)
	}
	c.Returning = slices.Clone(d.Returning)
	return c
}

// UpdateDescriptor describes an UPDATE. At least one condition is required.
type UpdateDescriptor struct {
	Table      string
	Values     Row
	Conditions []Condition
	Returning  []string
}

// Kind implements Descriptor.
func (UpdateDescriptor) Kind() Kind { return KindUpdate }

// TableName implements Descriptor.
func (d UpdateDescriptor) TableName() string { return d.Table }

func (d UpdateDescriptor) clone() UpdateDescriptor {
	c := d
	c.Values = maps.Clone(d.Values)
	c.Conditions = slices.Clone(d.Conditions)
	c.Returning = slices.Clone(d.Returning)
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
