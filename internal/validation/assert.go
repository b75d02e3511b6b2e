// Package validation provides helpers for contract enforcement in constructors.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if the provided pointer is nil.
// It is intended for constructors where a dependency is mandatory.
//
// Usage:
//
//	validation.AssertNotNil(provider, "artifact provider")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertPresent panics if v is a nil interface, or an interface holding a nil
// pointer, func, map or chan.
//
// Usage:
//
//	validation.AssertPresent(fetcher, "geo fetcher")
func AssertPresent(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		if rv.IsNil() {
			panic(fmt.Sprintf("critical error: %s cannot be nil", name))
		}
	}
}

// Note: panics here signal PROGRAMMER ERROR (misconfiguration),
// not runtime errors (like "network down").
