package schema

import (
	"math"
	"strconv"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/coerce"
	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// Converter maps one non-null value to the target type. ok is false when the
// value cannot be represented, in which case it becomes null.
type Converter func(v any) (out any, ok bool)

type conversion struct {
	from, to models.ColumnType
}

var converters = map[conversion]Converter{
	{models.String, models.Int64}:   stringToInt,
	{models.String, models.UInt64}:  stringToUint,
	{models.String, models.Float64}: stringToFloat,
	{models.String, models.Boolean}: stringToBool,

	{models.Int64, models.String}:  toString,
	{models.Int64, models.UInt64}:  intToUint,
	{models.Int64, models.Float64}: intToFloat,

	{models.UInt64, models.String}:  toString,
	{models.UInt64, models.Int64}:   uintToInt,
	{models.UInt64, models.Float64}: uintToFloat,

	{models.Float64, models.String}: toString,
	{models.Float64, models.Int64}:  floatToInt,
	{models.Float64, models.UInt64}: floatToUint,

	{models.Boolean, models.String}: toString,
}

// converterFor returns the converter between two types. Pairs without one,
// such as boolean to numeric, convert every value to null.
func converterFor(from, to models.ColumnType) Converter {
	if c, ok := converters[conversion{from, to}]; ok {
		return c
	}
	return func(any) (any, bool) { return nil, false }
}

// castColumn returns a copy of col converted to typ and the number of
// non-null values that became null.
func castColumn(col *models.Column, typ models.ColumnType) (*models.Column, int) {
	out := &models.Column{Name: col.Name, Type: typ, Values: make([]any, len(col.Values))}
	conv := converterFor(col.Type, typ)
	nulled := 0
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		if c, ok := conv(v); ok {
			out.Values[i] = c
		} else {
			nulled++
		}
	}
	return out, nulled
}

func stringToInt(v any) (any, bool) {
	r := coerce.ParseSigned(v.(string))
	return r.Value, r.OK()
}

func stringToUint(v any) (any, bool) {
	r := coerce.ParseUnsigned(v.(string))
	return r.Value, r.OK()
}

func stringToFloat(v any) (any, bool) {
	r := coerce.ParseFloat(v.(string))
	return r.Value, r.OK()
}

func stringToBool(v any) (any, bool) {
	r := coerce.ParseBool(v.(string))
	return r.Value, r.OK()
}

func toString(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return nil, false
}

func intToUint(v any) (any, bool) {
	x := v.(int64)
	if x < 0 {
		return nil, false
	}
	return uint64(x), true
}

func intToFloat(v any) (any, bool) {
	return float64(v.(int64)), true
}

func uintToInt(v any) (any, bool) {
	x := v.(uint64)
	if x > math.MaxInt64 {
		return nil, false
	}
	return int64(x), true
}

func uintToFloat(v any) (any, bool) {
	return float64(v.(uint64)), true
}

func floatToInt(v any) (any, bool) {
	x := v.(float64)
	if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
		return nil, false
	}
	return int64(x), true
}

func floatToUint(v any) (any, bool) {
	x := v.(float64)
	if x != math.Trunc(x) || x < 0 || x >= math.MaxUint64 {
		return nil, false
	}
	return uint64(x), true
}
