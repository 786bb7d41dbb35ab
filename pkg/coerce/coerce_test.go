package coerce

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

func textColumn(name string, values ...any) *models.Column {
	return &models.Column{Name: name, Type: models.String, Values: values}
}

func batchOf(cols ...*models.Column) *models.RowBatch {
	b := models.NewRowBatch("test.csv", 0)
	b.Columns = cols
	if len(cols) > 0 {
		b.NumRows = len(cols[0].Values)
	}
	return b
}

func TestParseSigned(t *testing.T) {
	assert.Equal(t, Result[int64]{Value: -12, Outcome: Parsed}, ParseSigned("-12"))
	assert.Equal(t, Result[int64]{Value: 7, Outcome: Parsed}, ParseSigned("+7"))
	assert.Equal(t, Overflow, ParseSigned("9223372036854775808").Outcome)
	assert.Equal(t, NoMatch, ParseSigned("1.0").Outcome)
	assert.Equal(t, NoMatch, ParseSigned(" 1").Outcome)
	assert.Equal(t, NoMatch, ParseSigned("").Outcome)
}

func TestParseUnsigned(t *testing.T) {
	assert.Equal(t, Result[uint64]{Value: 18446744073709551615, Outcome: Parsed}, ParseUnsigned("18446744073709551615"))
	assert.Equal(t, Result[uint64]{Value: 5, Outcome: Parsed}, ParseUnsigned("+5"))
	assert.Equal(t, Overflow, ParseUnsigned("18446744073709551616").Outcome)
	assert.Equal(t, NoMatch, ParseUnsigned("-1").Outcome)
}

func TestParseFloat(t *testing.T) {
	for _, s := range []string{"1", "-1.5", "1.", ".5", "1e10", "2.5E-3", "+3"} {
		assert.True(t, ParseFloat(s).OK(), s)
	}
	for _, s := range []string{"", "abc", "1.2.3", "NaN", "inf", "0x10", "1e"} {
		assert.Equal(t, NoMatch, ParseFloat(s).Outcome, s)
	}
	assert.Equal(t, Overflow, ParseFloat("1e999").Outcome)
}

func TestParseBool(t *testing.T) {
	assert.Equal(t, Result[bool]{Value: true, Outcome: Parsed}, ParseBool("TRUE"))
	assert.Equal(t, Result[bool]{Value: false, Outcome: Parsed}, ParseBool("False"))
	assert.False(t, ParseBool("yes").OK())
	assert.False(t, ParseBool(" true").OK())
	assert.Equal(t, "no-match", ParseBool("1").Outcome.String())
}

func TestDecideIsPure(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  models.ColumnType
	}{
		{"no values", Stats{}, models.String},
		{"all integers", Stats{NonNull: 10, Integers: 10, Numeric: 10}, models.Int64},
		{"threshold is strict", Stats{NonNull: 50, Integers: 49, Numeric: 49}, models.String},
		{"just above threshold", Stats{NonNull: 100, Integers: 99, Numeric: 99}, models.Int64},
		{"overflow unsigned", Stats{NonNull: 3, Integers: 3, Numeric: 3, SignedOverflow: 1}, models.UInt64},
		{"overflow with negative", Stats{NonNull: 3, Integers: 3, Numeric: 3, SignedOverflow: 1, Negative: 1}, models.String},
		{"overflow beyond uint64", Stats{NonNull: 3, Integers: 3, Numeric: 3, SignedOverflow: 1, UnsignedOverflow: 1}, models.String},
		{"floats", Stats{NonNull: 10, Integers: 5, Numeric: 10}, models.Float64},
		{"booleans", Stats{NonNull: 10, Booleans: 10}, models.Boolean},
		{"text", Stats{NonNull: 10, Booleans: 5, Numeric: 5}, models.String},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.stats).Type)
		})
	}
}

func TestProfile(t *testing.T) {
	s := Profile([]any{"1", "-2", "99999999999999999999", "1.5", "true", nil})
	assert.Equal(t, Stats{
		NonNull:          5,
		Integers:         3,
		Negative:         1,
		SignedOverflow:   1,
		UnsignedOverflow: 1,
		Numeric:          4,
		Booleans:         1,
	}, s)
}

// Scenario A: a single headerless column of integer strings becomes int64.
func TestCoerceIntegerColumn(t *testing.T) {
	b := batchOf(textColumn("column_0", "1", "2", "3"))
	out, rep := NewEngine(Options{Enabled: true}).CoerceBatch(b)

	require.Same(t, b, out)
	assert.Equal(t, models.Int64, out.Columns[0].Type)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, out.Columns[0].Values)
	assert.Equal(t, 0, rep.Nulled)
	require.Len(t, rep.Changed(), 1)
	assert.NoError(t, out.Validate())
}

// Scenario C: signed overflow without negatives goes unsigned when every value
// fits, otherwise stays text.
func TestCoerceUnsignedFallback(t *testing.T) {
	e := NewEngine(Options{Enabled: true})

	fits, _ := e.CoerceBatch(batchOf(textColumn("id", "1", "2", "18446744073709551615")))
	assert.Equal(t, models.UInt64, fits.Columns[0].Type)
	assert.Equal(t, []any{uint64(1), uint64(2), uint64(18446744073709551615)}, fits.Columns[0].Values)

	tooBig, _ := e.CoerceBatch(batchOf(textColumn("id", "1", "2", "99999999999999999999")))
	assert.Equal(t, models.String, tooBig.Columns[0].Type)
	assert.Equal(t, []any{"1", "2", "99999999999999999999"}, tooBig.Columns[0].Values)

	negative, _ := e.CoerceBatch(batchOf(textColumn("id", "-1", "2", "18446744073709551615")))
	assert.Equal(t, models.String, negative.Columns[0].Type)
}

func TestCoerceNullsOutliers(t *testing.T) {
	values := make([]any, 0, 100)
	for i := 0; i < 99; i++ {
		values = append(values, fmt.Sprintf("%d.5", i))
	}
	values = append(values, "n/a")

	b := batchOf(textColumn("score", values...))
	out, rep := NewEngine(Options{Enabled: true}).CoerceBatch(b)
	assert.Equal(t, models.Float64, out.Columns[0].Type)
	assert.Nil(t, out.Columns[0].Values[99])
	assert.Equal(t, 0.5, out.Columns[0].Values[0])
	assert.Equal(t, 1, rep.Nulled)
	assert.Equal(t, 100, out.NumRows)
}

func TestCoerceBooleansAndNulls(t *testing.T) {
	b := batchOf(
		textColumn("flag", "true", nil, "FALSE"),
		textColumn("empty", nil, nil, nil),
		textColumn("mixed", "a", "1", "true"),
	)
	out, _ := NewEngine(Options{Enabled: true}).CoerceBatch(b)
	assert.Equal(t, models.Boolean, out.Column("flag").Type)
	assert.Equal(t, []any{true, nil, false}, out.Column("flag").Values)
	assert.Equal(t, models.String, out.Column("empty").Type)
	assert.Equal(t, models.String, out.Column("mixed").Type)
	assert.Equal(t, []any{"a", "1", "true"}, out.Column("mixed").Values)
}

func TestCoerceSkipsTypedColumns(t *testing.T) {
	typed := &models.Column{Name: "n", Type: models.Int64, Values: []any{int64(1)}}
	b := batchOf(typed)
	_, rep := NewEngine(Options{Enabled: true}).CoerceBatch(b)
	assert.Empty(t, rep.Columns)
	assert.Equal(t, []any{int64(1)}, typed.Values)
}

func TestCoerceDisabled(t *testing.T) {
	b := batchOf(textColumn("column_0", "1", "2", "3"))
	out, rep := NewEngine(Options{Enabled: false}).CoerceBatch(b)
	assert.Equal(t, models.String, out.Columns[0].Type)
	assert.Equal(t, []any{"1", "2", "3"}, out.Columns[0].Values)
	assert.Empty(t, rep.Columns)
}
