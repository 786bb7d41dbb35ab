// Package coerce narrows text columns to integer, unsigned, float or boolean
// columns when the values clearly support it.
//
// The decision for a column is a pure function of its value statistics:
//
//	stats := coerce.Profile(values)
//	decision := coerce.Decide(stats)
//
// and parsing never panics or relies on recovered failures; every parse
// returns a Result that says whether the text matched, overflowed or parsed.
package coerce

import (
	"regexp"
	"strconv"
	"strings"
)

// Threshold is the fraction of non-null values that must match a type for the
// column to take it. The fraction must strictly exceed it.
const Threshold = 0.98

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)
	numericPattern = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

// Outcome is the result of one parse attempt.
type Outcome int

const (
	// NoMatch means the text does not have the shape of the type.
	NoMatch Outcome = iota
	// Parsed means the text converted exactly.
	Parsed
	// Overflow means the text has the right shape but is out of range.
	Overflow
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case Overflow:
		return "overflow"
	default:
		return "no-match"
	}
}

// Result is a parsed value together with the outcome that produced it.
type Result[T any] struct {
	Value   T
	Outcome Outcome
}

// OK reports whether the parse succeeded.
func (r Result[T]) OK() bool { return r.Outcome == Parsed }

// IsInteger reports whether s is an optionally signed run of decimal digits.
func IsInteger(s string) bool { return integerPattern.MatchString(s) }

// IsNumeric reports whether s is a decimal or exponential numeric literal.
func IsNumeric(s string) bool { return numericPattern.MatchString(s) }

// ParseSigned parses s as a signed 64-bit integer.
func ParseSigned(s string) Result[int64] {
	if !IsInteger(s) {
		return Result[int64]{}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Result[int64]{Outcome: Overflow}
	}
	return Result[int64]{Value: v, Outcome: Parsed}
}

// ParseUnsigned parses s as an unsigned 64-bit integer. A leading '+' is
// accepted; a leading '-' is a mismatch.
func ParseUnsigned(s string) Result[uint64] {
	if !IsInteger(s) || strings.HasPrefix(s, "-") {
		return Result[uint64]{}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		return Result[uint64]{Outcome: Overflow}
	}
	return Result[uint64]{Value: v, Outcome: Parsed}
}

// ParseFloat parses s as a 64-bit float. Literals beyond the float64 range
// overflow.
func ParseFloat(s string) Result[float64] {
	if !IsNumeric(s) {
		return Result[float64]{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Result[float64]{Outcome: Overflow}
	}
	return Result[float64]{Value: v, Outcome: Parsed}
}

// ParseBool accepts "true" and "false" in any letter case.
func ParseBool(s string) Result[bool] {
	switch {
	case strings.EqualFold(s, "true"):
		return Result[bool]{Value: true, Outcome: Parsed}
	case strings.EqualFold(s, "false"):
		return Result[bool]{Value: false, Outcome: Parsed}
	default:
		return Result[bool]{}
	}
}
