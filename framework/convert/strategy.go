package convert

import (
	"reflect"
	"strings"
	"sync"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// Strategy is one way of converting src values to dst. TryStrategy reports
// ok=false when it does not apply; a non-nil error stops the search.
type Strategy interface {
	TryStrategy(src, dst reflect.Type) (f Func, ok bool, err error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(src, dst reflect.Type) (Func, bool, error)

func (f StrategyFunc) TryStrategy(src, dst reflect.Type) (Func, bool, error) { return f(src, dst) }

// ── 1. assignable ─────────────────────────────────────────────────────────────

// assignable handles identity and widening: every src value is usable as dst.
type assignable struct{}

func (assignable) TryStrategy(src, dst reflect.Type) (Func, bool, error) {
	if !src.AssignableTo(dst) {
		return nil, false, nil
	}
	// A nullable of the source's own kind is not a direct assignment.
	if nullableOf(dst, src) {
		return nil, false, nil
	}
	if src.Kind() != reflect.Interface && dst.Kind() == reflect.Interface {
		return asInterface, true, nil
	}
	return asThis, true, nil
}

func asThis(v any) (any, bool) { return v, true }

// asInterface boxes a concrete value into the destination interface.
// Values already travel as any, so the boxed form is the value itself.
func asInterface(v any) (any, bool) { return v, true }

// nullableOf reports whether dst is database/sql.Null[src].
func nullableOf(dst, src reflect.Type) bool {
	if dst.Kind() != reflect.Struct || dst.PkgPath() != "database/sql" {
		return false
	}
	if !strings.HasPrefix(dst.Name(), "Null[") || dst.NumField() != 2 {
		return false
	}
	return dst.Field(0).Type == src && dst.Field(1).Type.Kind() == reflect.Bool
}

// ── 2. downcast ───────────────────────────────────────────────────────────────

// downcast narrows an interface source to dst with a runtime check that
// yields no value instead of panicking.
type downcast struct{}

func (downcast) TryStrategy(src, dst reflect.Type) (Func, bool, error) {
	if src.Kind() != reflect.Interface {
		return nil, false, nil
	}
	if dst.Kind() != reflect.Interface {
		if !dst.Implements(src) {
			return nil, false, nil
		}
		return func(v any) (any, bool) {
			if v == nil || reflect.TypeOf(v) != dst {
				return nil, false
			}
			return v, true
		}, true, nil
	}

	// dynamic type → implements dst
	var verdicts sync.Map
	return func(v any) (any, bool) {
		if v == nil {
			return nil, false
		}
		dt := reflect.TypeOf(v)
		ok, seen := verdicts.Load(dt)
		if !seen {
			ok, _ = verdicts.LoadOrStore(dt, dt.Implements(dst))
		}
		if !ok.(bool) {
			return nil, false
		}
		return v, true
	}, true, nil
}

// ── 3. operators ──────────────────────────────────────────────────────────────

// operators searches user-defined conversion operators: on the source type
// first, then on the destination, implicit before explicit, exact parameter
// type only. Inexact candidates are reported, never ranked.
type operators struct {
	table *operatorTable
}

func (o operators) TryStrategy(src, dst reflect.Type) (Func, bool, error) {
	onSrc := o.table.on(src)
	onDst := o.table.on(dst)

	for _, owner := range [][]Operator{onSrc, onDst} {
		for _, explicit := range []bool{false, true} {
			for _, op := range owner {
				if op.Explicit == explicit && op.Out == dst && op.In == src {
					return op.fn, true, nil
				}
			}
		}
	}

	var candidates []reflect.Type
	for _, owner := range [][]Operator{onSrc, onDst} {
		for _, op := range owner {
			if op.Out == dst && op.In != src && src.AssignableTo(op.In) {
				candidates = append(candidates, op.In)
			}
		}
	}
	if len(candidates) > 0 {
		return nil, false, &regerrors.UnresolvedConversionError{From: src, To: dst, Candidates: candidates}
	}
	return nil, false, nil
}

// ── Numeric (opt-in) ──────────────────────────────────────────────────────────

// Numeric converts between Go numeric kinds with reflect.Value.Convert.
// It is not part of the default chain:
//
//	r.Use(convert.Numeric{})
type Numeric struct{}

func (Numeric) TryStrategy(src, dst reflect.Type) (Func, bool, error) {
	if !numeric(src) || !numeric(dst) || !src.ConvertibleTo(dst) {
		return nil, false, nil
	}
	return func(v any) (any, bool) {
		if v == nil {
			return nil, false
		}
		rv := reflect.ValueOf(v)
		if rv.Type() != src {
			return nil, false
		}
		return rv.Convert(dst).Interface(), true
	}, true, nil
}

func numeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
