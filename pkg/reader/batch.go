package reader

import (
	"fmt"
	"strconv"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// batchBuilder accumulates rows column-wise. Columns appear in first-seen
// order; a column first seen mid-batch is back-filled with nulls.
type batchBuilder struct {
	cols  []*columnBuilder
	index map[string]int
	rows  int
}

type columnBuilder struct {
	name   string
	values []any
}

func newBatchBuilder() *batchBuilder {
	return &batchBuilder{index: make(map[string]int)}
}

// set stores v for the current row. A repeated name in the same row overwrites.
func (b *batchBuilder) set(name string, v any) {
	i, ok := b.index[name]
	if !ok {
		i = len(b.cols)
		b.index[name] = i
		b.cols = append(b.cols, &columnBuilder{name: name, values: make([]any, b.rows, b.rows+1)})
	}
	c := b.cols[i]
	if len(c.values) == b.rows+1 {
		c.values[b.rows] = v
		return
	}
	for len(c.values) < b.rows {
		c.values = append(c.values, nil)
	}
	c.values = append(c.values, v)
}

// ensure declares a column without giving the current row a value.
func (b *batchBuilder) ensure(name string) {
	if _, ok := b.index[name]; ok {
		return
	}
	b.index[name] = len(b.cols)
	b.cols = append(b.cols, &columnBuilder{name: name, values: make([]any, b.rows)})
}

// endRow closes the current row.
func (b *batchBuilder) endRow() {
	b.rows++
}

// build pads every column to the row count and types the columns.
func (b *batchBuilder) build(sourcePath string, seq int) *models.RowBatch {
	batch := models.NewRowBatch(sourcePath, seq)
	batch.NumRows = b.rows
	batch.Columns = make([]*models.Column, len(b.cols))
	for i, c := range b.cols {
		for len(c.values) < b.rows {
			c.values = append(c.values, nil)
		}
		typ := unify(c.values)
		batch.Columns[i] = &models.Column{Name: c.name, Type: typ, Values: c.values}
	}
	return batch
}

// unify picks one type for a column of decoded values and converts the values
// to it in place. Integers of both signs widen to float64 when mixed with
// floats; any other mixture becomes text.
func unify(values []any) models.ColumnType {
	var hasString, hasInt, hasUint, hasFloat, hasBool, negative bool
	for _, v := range values {
		switch x := v.(type) {
		case nil:
		case string:
			hasString = true
		case int64:
			hasInt = true
			if x < 0 {
				negative = true
			}
		case uint64:
			hasUint = true
		case float64:
			hasFloat = true
		case bool:
			hasBool = true
		}
	}

	numeric := hasInt || hasUint || hasFloat
	switch {
	case !hasString && !hasBool && numeric:
		switch {
		case hasFloat:
			convert(values, toFloat)
			return models.Float64
		case hasUint && hasInt && negative:
			convert(values, toText)
			return models.String
		case hasUint:
			convert(values, toUint)
			return models.UInt64
		default:
			return models.Int64
		}
	case hasBool && !hasString && !numeric:
		return models.Boolean
	default:
		if hasInt || hasUint || hasFloat || hasBool {
			convert(values, toText)
		}
		return models.String
	}
}

func convert(values []any, fn func(any) any) {
	for i, v := range values {
		if v != nil {
			values[i] = fn(v)
		}
	}
}

func toFloat(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	return v
}

func toUint(v any) any {
	if x, ok := v.(int64); ok {
		return uint64(x)
	}
	return v
}

func toText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
