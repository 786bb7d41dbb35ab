package coerce

import (
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// Options configures an Engine.
type Options struct {
	Enabled bool
}

// Engine re-types the text columns of row batches. It holds no per-batch
// state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// ColumnReport describes what happened to one text column.
type ColumnReport struct {
	Name     string            `json:"name"`
	Decision Decision          `json:"decision"`
	Stats    Stats             `json:"stats"`
	From     models.ColumnType `json:"from"`
	Nulled   int               `json:"nulled"`
}

// Report summarizes one CoerceBatch call.
type Report struct {
	Columns []ColumnReport `json:"columns"`
	// Nulled is the number of values that did not fit their column's new type.
	Nulled int `json:"nulled"`
}

// Changed returns the reports of columns whose type changed.
func (r Report) Changed() []ColumnReport {
	var out []ColumnReport
	for _, c := range r.Columns {
		if c.From != c.Decision.Type {
			out = append(out, c)
		}
	}
	return out
}

// CoerceBatch re-types every String column of b in place and returns b. The
// row count never changes. A disabled engine returns b untouched.
func (e *Engine) CoerceBatch(b *models.RowBatch) (*models.RowBatch, Report) {
	var rep Report
	if !e.opts.Enabled || b == nil {
		return b, rep
	}
	for _, col := range b.Columns {
		if col.Type != models.String {
			continue
		}
		stats := Profile(col.Values)
		d := Decide(stats)
		nulled := Apply(col, d.Type)
		rep.Columns = append(rep.Columns, ColumnReport{
			Name:     col.Name,
			Decision: d,
			Stats:    stats,
			From:     models.String,
			Nulled:   nulled,
		})
		rep.Nulled += nulled
	}
	return b, rep
}

// Apply converts the text values of col to typ and sets col.Type. Values that
// do not parse become null; the number of such values is returned.
func Apply(col *models.Column, typ models.ColumnType) int {
	if typ == models.String {
		col.Type = models.String
		return 0
	}
	nulled := 0
	for i, v := range col.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var out any
		switch typ {
		case models.Int64:
			if r := ParseSigned(s); r.OK() {
				out = r.Value
			}
		case models.UInt64:
			if r := ParseUnsigned(s); r.OK() {
				out = r.Value
			}
		case models.Float64:
			if r := ParseFloat(s); r.OK() {
				out = r.Value
			}
		case models.Boolean:
			if r := ParseBool(s); r.OK() {
				out = r.Value
			}
		}
		if out == nil {
			nulled++
		}
		col.Values[i] = out
	}
	col.Type = typ
	return nulled
}
