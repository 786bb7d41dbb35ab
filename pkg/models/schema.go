package models

import (
	"strings"
)

// Field is one (name, type) entry of a CanonicalSchema.
type Field struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// CanonicalSchema is the authoritative ordered column list an output file is
// written against. Names are unique.
type CanonicalSchema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// NewCanonicalSchema builds a schema from fields, copying the slice.
func NewCanonicalSchema(fields ...Field) *CanonicalSchema {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return &CanonicalSchema{Fields: cp}
}

// Len returns the number of fields.
func (s *CanonicalSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Fields)
}

// Index returns the position of name, or -1.
func (s *CanonicalSchema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the field names in order.
func (s *CanonicalSchema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether both schemas have the same names and types in the same order.
func (s *CanonicalSchema) Equal(other *CanonicalSchema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (s *CanonicalSchema) Clone() *CanonicalSchema {
	return NewCanonicalSchema(s.Fields...)
}

// String renders the schema as "a:int64, b:string".
func (s *CanonicalSchema) String() string {
	if s == nil {
		return "<nil>"
	}
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return strings.Join(parts, ", ")
}
