package schema

import (
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// Widen returns the narrowest type that holds values of both a and b:
// integers widen to float64 when mixed with floats, signed mixed with
// unsigned becomes text, and anything mixed with text or booleans is text.
func Widen(a, b models.ColumnType) models.ColumnType {
	if a == b {
		return a
	}
	numeric := func(t models.ColumnType) bool {
		return t == models.Int64 || t == models.UInt64 || t == models.Float64
	}
	if numeric(a) && numeric(b) && (a == models.Float64 || b == models.Float64) {
		return models.Float64
	}
	return models.String
}

// Merger builds a schema as the union of observed batches. Columns are kept in
// first-appearance order. A column that is entirely null in a batch
// contributes its name but not its type.
type Merger struct {
	fields []models.Field
	typed  []bool
	index  map[string]int
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{index: make(map[string]int)}
}

// AddBatch folds the columns of b into the union.
func (m *Merger) AddBatch(b *models.RowBatch) {
	for _, c := range b.Columns {
		m.add(c.Name, c.Type, c.NullCount() < len(c.Values))
	}
}

// AddSchema folds every field of s into the union.
func (m *Merger) AddSchema(s *models.CanonicalSchema) {
	for _, f := range s.Fields {
		m.add(f.Name, f.Type, true)
	}
}

// AddMerger folds another union into m, keeping the untyped marks of o.
func (m *Merger) AddMerger(o *Merger) {
	if o == nil {
		return
	}
	for i, f := range o.fields {
		m.add(f.Name, f.Type, o.typed[i])
	}
}

func (m *Merger) add(name string, typ models.ColumnType, typed bool) {
	i, ok := m.index[name]
	if !ok {
		m.index[name] = len(m.fields)
		m.fields = append(m.fields, models.Field{Name: name, Type: typ})
		m.typed = append(m.typed, typed)
		return
	}
	switch {
	case !typed:
	case !m.typed[i]:
		m.fields[i].Type = typ
		m.typed[i] = true
	default:
		m.fields[i].Type = Widen(m.fields[i].Type, typ)
	}
}

// Len returns the number of columns seen.
func (m *Merger) Len() int { return len(m.fields) }

// Schema returns the merged schema. Columns never seen with a value are text.
func (m *Merger) Schema() *models.CanonicalSchema {
	fields := make([]models.Field, len(m.fields))
	for i, f := range m.fields {
		if !m.typed[i] {
			f.Type = models.String
		}
		fields[i] = f
	}
	return models.NewCanonicalSchema(fields...)
}

// Merge unions schemas by column name with type widening.
func Merge(schemas ...*models.CanonicalSchema) *models.CanonicalSchema {
	m := NewMerger()
	for _, s := range schemas {
		if s != nil {
			m.AddSchema(s)
		}
	}
	return m.Schema()
}
