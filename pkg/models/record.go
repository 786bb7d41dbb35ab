// Package models defines the data that moves through the conversion pipeline:
// column-oriented row batches, the per-column type tags, and the canonical
// schema an output file is written against.
//
// A RowBatch is created by the chunk reader, re-typed by the coercion engine,
// reshaped by the schema reconciler and consumed by the columnar writer. It is
// never retained after the writer has appended it, which keeps live memory at
// O(batch size × column count) regardless of input size.
package models

import (
	"fmt"
)

// Column is one named, typed column of a RowBatch. A nil entry in Values is a
// null; every non-nil entry has the Go type matching Type:
//
//	String  -> string
//	Int64   -> int64
//	UInt64  -> uint64
//	Float64 -> float64
//	Boolean -> bool
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// NewColumn creates an all-null column of the given type and length.
func NewColumn(name string, typ ColumnType, rows int) *Column {
	return &Column{
		Name:   name,
		Type:   typ,
		Values: make([]any, rows),
	}
}

// NullCount returns the number of null entries.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// RowBatch is a bounded group of records stored column-wise. All columns hold
// exactly NumRows values.
type RowBatch struct {
	Columns []*Column
	NumRows int

	// Source is the input file the batch was read from.
	Source string
	// Seq is the zero-based index of the batch within its source file.
	Seq int
}

// NewRowBatch creates an empty batch for the given source.
func NewRowBatch(source string, seq int) *RowBatch {
	return &RowBatch{Source: source, Seq: seq}
}

// Column returns the column with the given name, or nil.
func (b *RowBatch) Column(name string) *Column {
	for _, c := range b.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Names returns the column names in batch order.
func (b *RowBatch) Names() []string {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema returns the batch's (name, type hint) sequence as a schema value.
func (b *RowBatch) Schema() *CanonicalSchema {
	fields := make([]Field, len(b.Columns))
	for i, c := range b.Columns {
		fields[i] = Field{Name: c.Name, Type: c.Type}
	}
	return &CanonicalSchema{Fields: fields}
}

// Empty reports whether the batch carries no rows.
func (b *RowBatch) Empty() bool {
	return b == nil || b.NumRows == 0
}

// Validate checks the structural invariants: unique column names, equal
// column lengths, and values matching their column type.
func (b *RowBatch) Validate() error {
	seen := make(map[string]struct{}, len(b.Columns))
	for _, c := range b.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != b.NumRows {
			return fmt.Errorf("column %q has %d values, batch has %d rows", c.Name, len(c.Values), b.NumRows)
		}
		for i, v := range c.Values {
			if v != nil && !c.Type.Accepts(v) {
				return fmt.Errorf("column %q row %d: %T is not a %s value", c.Name, i, v, c.Type)
			}
		}
	}
	return nil
}

// Row returns row i as a name → value map. It allocates and is meant for
// tests and diagnostics, not the hot path.
func (b *RowBatch) Row(i int) map[string]any {
	row := make(map[string]any, len(b.Columns))
	for _, c := range b.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}
