package jsonlogic

import (
	"math"
	"strconv"
	"strings"
)

// Data is the variable lookup a condition is evaluated against.
// Keys may be flat dotted paths ("user.browserType") or nested maps.
type Data map[string]any

// Lookup resolves a dotted path. Flat keys win over nested traversal.
func (d Data) Lookup(path string) (any, bool) {
	if v, ok := d[path]; ok {
		return v, true
	}

	var current any = map[string]any(d)
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case Data:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Match evaluates the expression and applies truthiness. A nil expression
// always matches.
func (e *Expr) Match(data Data) bool {
	if e == nil {
		return true
	}
	return Truthy(e.Evaluate(data))
}

// Evaluate computes the expression's value.
func (e *Expr) Evaluate(data Data) any {
	if e == nil {
		return nil
	}

	switch e.Op {
	case opLiteral:
		return e.Value
	case opList:
		return e.evalArgs(data)
	case "var":
		return e.evalVar(data)
	case "missing":
		return e.evalMissing(data)
	case "missing_some":
		return e.evalMissingSome(data)
	case "==":
		return looseEquals(e.arg(0, data), e.arg(1, data))
	case "!=":
		return !looseEquals(e.arg(0, data), e.arg(1, data))
	case "===":
		return strictEquals(e.arg(0, data), e.arg(1, data))
	case "!==":
		return !strictEquals(e.arg(0, data), e.arg(1, data))
	case "<", "<=":
		return e.evalBetween(data, e.Op == "<=")
	case ">":
		return lessThan(e.arg(1, data), e.arg(0, data), false)
	case ">=":
		return lessThan(e.arg(1, data), e.arg(0, data), true)
	case "!":
		return !Truthy(e.arg(0, data))
	case "!!":
		return Truthy(e.arg(0, data))
	case "and":
		return e.evalAnd(data)
	case "or":
		return e.evalOr(data)
	case "if", "?:":
		return e.evalIf(data)
	case "in":
		return evalIn(e.arg(0, data), e.arg(1, data))
	case "cat":
		var sb strings.Builder
		for _, v := range e.evalArgs(data) {
			sb.WriteString(toString(v))
		}
		return sb.String()
	case "substr":
		return e.evalSubstr(data)
	case "+":
		sum := 0.0
		for _, v := range e.evalArgs(data) {
			sum += toNumber(v)
		}
		return sum
	case "*":
		product := 1.0
		for _, v := range e.evalArgs(data) {
			product *= toNumber(v)
		}
		return product
	case "-":
		if len(e.Args) == 1 {
			return -toNumber(e.arg(0, data))
		}
		return toNumber(e.arg(0, data)) - toNumber(e.arg(1, data))
	case "/":
		return toNumber(e.arg(0, data)) / toNumber(e.arg(1, data))
	case "%":
		return math.Mod(toNumber(e.arg(0, data)), toNumber(e.arg(1, data)))
	case "min", "max":
		return e.evalMinMax(data, e.Op == "max")
	}
	return nil
}

func (e *Expr) arg(i int, data Data) any {
	if i >= len(e.Args) {
		return nil
	}
	return e.Args[i].Evaluate(data)
}

func (e *Expr) evalArgs(data Data) []any {
	out := make([]any, len(e.Args))
	for i, a := range e.Args {
		out[i] = a.Evaluate(data)
	}
	return out
}

func (e *Expr) evalVar(data Data) any {
	path := e.arg(0, data)
	fallback := e.arg(1, data)

	if path == nil {
		return map[string]any(data)
	}
	key := toString(path)
	if key == "" {
		return map[string]any(data)
	}

	v, ok := data.Lookup(key)
	if !ok || v == nil {
		return fallback
	}
	return v
}

func (e *Expr) evalMissing(data Data) any {
	keys := e.evalArgs(data)
	if len(keys) > 0 {
		if list, ok := keys[0].([]any); ok {
			keys = list
		}
	}
	return missingKeys(data, keys)
}

func (e *Expr) evalMissingSome(data Data) any {
	need := toNumber(e.arg(0, data))
	keys, _ := e.arg(1, data).([]any)

	missing := missingKeys(data, keys)
	if float64(len(keys)-len(missing)) >= need {
		return []any{}
	}
	return missing
}

func missingKeys(data Data, keys []any) []any {
	missing := make([]any, 0, len(keys))
	for _, k := range keys {
		v, ok := data.Lookup(toString(k))
		if !ok || v == nil || v == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// evalBetween supports the exclusive/inclusive "between" forms with three args.
func (e *Expr) evalBetween(data Data, orEqual bool) any {
	a, b := e.arg(0, data), e.arg(1, data)
	if len(e.Args) < 3 {
		return lessThan(a, b, orEqual)
	}
	c := e.arg(2, data)
	return lessThan(a, b, orEqual) && lessThan(b, c, orEqual)
}

func (e *Expr) evalAnd(data Data) any {
	var v any
	for _, a := range e.Args {
		v = a.Evaluate(data)
		if !Truthy(v) {
			return v
		}
	}
	return v
}

func (e *Expr) evalOr(data Data) any {
	var v any
	for _, a := range e.Args {
		v = a.Evaluate(data)
		if Truthy(v) {
			return v
		}
	}
	return v
}

func (e *Expr) evalIf(data Data) any {
	i := 0
	for ; i+1 < len(e.Args); i += 2 {
		if Truthy(e.Args[i].Evaluate(data)) {
			return e.Args[i+1].Evaluate(data)
		}
	}
	if i < len(e.Args) {
		return e.Args[i].Evaluate(data)
	}
	return nil
}

func evalIn(needle, haystack any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if strictEquals(needle, item) {
				return true
			}
		}
	case string:
		return strings.Contains(h, toString(needle))
	}
	return false
}

func (e *Expr) evalSubstr(data Data) any {
	runes := []rune(toString(e.arg(0, data)))
	n := len(runes)

	start := int(toNumber(e.arg(1, data)))
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)

	end := n
	if len(e.Args) > 2 {
		length := int(toNumber(e.arg(2, data)))
		if length < 0 {
			end = max(n+length, start)
		} else {
			end = min(start+length, n)
		}
	}
	return string(runes[start:end])
}

func (e *Expr) evalMinMax(data Data, wantMax bool) any {
	values := e.evalArgs(data)
	if len(values) == 0 {
		return nil
	}

	best := toNumber(values[0])
	for _, v := range values[1:] {
		n := toNumber(v)
		if (wantMax && n > best) || (!wantMax && n < best) {
			best = n
		}
	}
	return best
}
