package jsonlogic

import (
	"math"
	"strconv"
	"strings"
)

// Truthy applies JavaScript truthiness, with JSON-Logic's rule that an empty
// array is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	if n, ok := number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// number converts Go numeric kinds to float64.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// toNumber mirrors JavaScript's Number(v).
func toNumber(v any) float64 {
	if n, ok := number(v); ok {
		return n
	}
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case []any:
		if len(t) == 0 {
			return 0
		}
		if len(t) == 1 {
			return toNumber(t[0])
		}
	}
	return math.NaN()
}

// toString mirrors JavaScript's String(v).
func toString(v any) string {
	if n, ok := number(v); ok {
		return formatNumber(n)
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			if item != nil {
				parts[i] = toString(item)
			}
		}
		return strings.Join(parts, ",")
	}
	return "[object Object]"
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, string:
		return true
	}
	_, ok := number(v)
	return ok
}

// looseEquals implements the == operator.
func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if _, ok := a.(bool); ok {
		return looseEquals(toNumber(a), b)
	}
	if _, ok := b.(bool); ok {
		return looseEquals(a, toNumber(b))
	}

	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if aIsString && bIsString {
		return as == bs
	}

	an, aIsNumber := number(a)
	bn, bIsNumber := number(b)
	switch {
	case aIsNumber && bIsNumber:
		return an == bn
	case aIsNumber && bIsString, aIsString && bIsNumber:
		return toNumber(a) == toNumber(b)
	case !isPrimitive(a) && !isPrimitive(b):
		// Objects only compare equal by identity, which decoded JSON never shares.
		return false
	}
	return toString(a) == toString(b)
}

// strictEquals implements the === operator.
func strictEquals(a, b any) bool {
	an, aIsNumber := number(a)
	bn, bIsNumber := number(b)
	if aIsNumber || bIsNumber {
		return aIsNumber && bIsNumber && an == bn
	}

	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	}
	return false
}

// lessThan implements the relational operators: string pairs compare
// lexicographically, everything else numerically.
func lessThan(a, b any, orEqual bool) bool {
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if aIsString && bIsString {
		if orEqual {
			return as <= bs
		}
		return as < bs
	}

	an, bn := toNumber(a), toNumber(b)
	if orEqual {
		return an <= bn
	}
	return an < bn
}
