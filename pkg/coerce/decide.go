package coerce

import (
	"strings"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/models"
)

// Stats counts how the non-null values of a text column parse.
type Stats struct {
	NonNull int `json:"non_null"`
	// Integers match the integer pattern.
	Integers int `json:"integers"`
	// Negative integers carry a '-' sign.
	Negative int `json:"negative"`
	// SignedOverflow integers do not fit int64.
	SignedOverflow int `json:"signed_overflow"`
	// UnsignedOverflow non-negative integers do not fit uint64.
	UnsignedOverflow int `json:"unsigned_overflow"`
	// Numeric values are decimal or exponential literals, integers included.
	Numeric  int `json:"numeric"`
	Booleans int `json:"booleans"`
}

// Decision is the type chosen for a column and why.
type Decision struct {
	Type   models.ColumnType `json:"type"`
	Reason string            `json:"reason"`
}

// Profile gathers Stats over values. Nil values are nulls and ignored;
// non-string values are ignored as well.
func Profile(values []any) Stats {
	var s Stats
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		s.NonNull++
		if IsInteger(str) {
			s.Integers++
			if strings.HasPrefix(str, "-") {
				s.Negative++
			}
			if ParseSigned(str).Outcome == Overflow {
				s.SignedOverflow++
			}
			if ParseUnsigned(str).Outcome == Overflow {
				s.UnsignedOverflow++
			}
		}
		if IsNumeric(str) {
			s.Numeric++
		}
		if ParseBool(str).OK() {
			s.Booleans++
		}
	}
	return s
}

// exceeds reports count/total > Threshold exactly, without float rounding.
func exceeds(count, total int) bool {
	return count*50 > total*49
}

// Decide applies the coercion rules in order: integer, float, boolean, text.
func Decide(s Stats) Decision {
	if s.NonNull == 0 {
		return Decision{Type: models.String, Reason: "no non-null values"}
	}
	if exceeds(s.Integers, s.NonNull) {
		switch {
		case s.SignedOverflow == 0:
			return Decision{Type: models.Int64, Reason: "integer"}
		case s.Negative == 0 && s.UnsignedOverflow == 0:
			return Decision{Type: models.UInt64, Reason: "integer beyond int64, no negatives"}
		case s.Negative > 0:
			return Decision{Type: models.String, Reason: "integer overflow with negative values"}
		default:
			return Decision{Type: models.String, Reason: "integer beyond uint64"}
		}
	}
	if exceeds(s.Numeric, s.NonNull) {
		return Decision{Type: models.Float64, Reason: "numeric"}
	}
	if exceeds(s.Booleans, s.NonNull) {
		return Decision{Type: models.Boolean, Reason: "boolean"}
	}
	return Decision{Type: models.String, Reason: "mixed text"}
}
