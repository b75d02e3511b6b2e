// Package jsonlogic compiles and evaluates JSON-Logic rule conditions.
//
// Conditions are compiled once, when an artifact is loaded, into an Expr tree.
// Evaluation walks the tree against a Data lookup and never fails: values are
// coerced with JavaScript semantics so results match the remote service.
package jsonlogic

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownOperator is returned when a condition uses an operator this
// interpreter does not implement.
var ErrUnknownOperator = errors.New("unknown jsonlogic operator")

const (
	opLiteral = ""
	opList    = "[]"
)

// operators lists every operator the interpreter understands.
var operators = map[string]struct{}{
	"var": {}, "missing": {}, "missing_some": {},
	"==": {}, "===": {}, "!=": {}, "!==": {},
	"<": {}, "<=": {}, ">": {}, ">=": {},
	"!": {}, "!!": {}, "and": {}, "or": {}, "if": {}, "?:": {},
	"in": {}, "cat": {}, "substr": {},
	"+": {}, "-": {}, "*": {}, "/": {}, "%": {}, "min": {}, "max": {},
}

// Expr is a compiled condition node.
// Literals carry Value; operators carry Op and their compiled Args.
type Expr struct {
	Op    string
	Args  []*Expr
	Value any
}

// Literal wraps a constant value.
func Literal(v any) *Expr {
	return &Expr{Value: v}
}

// Parse compiles a JSON document into an Expr.
func Parse(data []byte) (*Expr, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}
	return Compile(raw)
}

// Compile turns a decoded JSON value (as produced by encoding/json into any)
// into an Expr. Objects with exactly one key are operators; any other value is
// data.
func Compile(raw any) (*Expr, error) {
	switch v := raw.(type) {
	case map[string]any:
		if len(v) != 1 {
			return Literal(v), nil
		}
		for op, rawArgs := range v {
			if _, ok := operators[op]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
			}
			args, err := compileArgs(rawArgs)
			if err != nil {
				return nil, fmt.Errorf("operator %q: %w", op, err)
			}
			return &Expr{Op: op, Args: args}, nil
		}
	case []any:
		args, err := compileArgs(v)
		if err != nil {
			return nil, err
		}
		return &Expr{Op: opList, Args: args}, nil
	}
	return Literal(raw), nil
}

// compileArgs accepts both the array form {"op": [a, b]} and the unary
// shorthand {"op": a}.
func compileArgs(raw any) ([]*Expr, error) {
	list, ok := raw.([]any)
	if !ok {
		arg, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		return []*Expr{arg}, nil
	}

	args := make([]*Expr, len(list))
	for i, item := range list {
		arg, err := Compile(item)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}

// UnmarshalJSON compiles the condition while the artifact is decoded.
func (e *Expr) UnmarshalJSON(data []byte) error {
	compiled, err := Parse(data)
	if err != nil {
		return err
	}
	*e = *compiled
	return nil
}

// MarshalJSON renders the expression back to its JSON-Logic form.
func (e *Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Raw())
}

// Raw returns the JSON-Logic document the expression was compiled from.
func (e *Expr) Raw() any {
	if e == nil {
		return nil
	}
	switch e.Op {
	case opLiteral:
		return e.Value
	case opList:
		return rawArgs(e.Args)
	default:
		return map[string]any{e.Op: rawArgs(e.Args)}
	}
}

func rawArgs(args []*Expr) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Raw()
	}
	return out
}

// Vars returns the distinct variable paths the expression reads, sorted.
// Only literal paths are reported.
func (e *Expr) Vars() []string {
	seen := make(map[string]struct{})
	e.collectVars(seen)

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Expr) collectVars(seen map[string]struct{}) {
	if e == nil {
		return
	}
	if e.Op == "var" && len(e.Args) > 0 && e.Args[0].Op == opLiteral {
		if path, ok := e.Args[0].Value.(string); ok && path != "" {
			seen[path] = struct{}{}
		}
	}
	for _, a := range e.Args {
		a.collectVars(seen)
	}
}
