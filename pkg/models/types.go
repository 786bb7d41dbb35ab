package models

import (
	"fmt"
	"strings"
)

// ColumnType is the semantic type attached to a column. On a RowBatch it is
// only a hint; it becomes authoritative once it is part of a CanonicalSchema.
type ColumnType int

const (
	// String holds raw or unconverted text. It is the zero value so a freshly
	// read column is text until coerced.
	String ColumnType = iota
	// Int64 is a signed 64-bit integer column.
	Int64
	// UInt64 is an unsigned 64-bit integer column, used when signed parsing overflows.
	UInt64
	// Float64 is a 64-bit IEEE floating point column.
	Float64
	// Boolean is a true/false column.
	Boolean
)

var columnTypeNames = [...]string{
	String:  "string",
	Int64:   "int64",
	UInt64:  "uint64",
	Float64: "float64",
	Boolean: "bool",
}

// String returns the lowercase type name used in logs, summaries and config.
func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// ParseColumnType is the inverse of ColumnType.String. It also accepts a few
// common aliases (int, integer, uint, float, double, boolean, text).
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "utf8":
		return String, nil
	case "int64", "int", "integer":
		return Int64, nil
	case "uint64", "uint":
		return UInt64, nil
	case "float64", "float", "double":
		return Float64, nil
	case "bool", "boolean":
		return Boolean, nil
	default:
		return String, fmt.Errorf("unknown column type %q", s)
	}
}

// Accepts reports whether v is a legal non-null value for a column of type t.
func (t ColumnType) Accepts(v any) bool {
	switch v.(type) {
	case string:
		return t == String
	case int64:
		return t == Int64
	case uint64:
		return t == UInt64
	case float64:
		return t == Float64
	case bool:
		return t == Boolean
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so types print by name in JSON summaries.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(b []byte) error {
	parsed, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
