package convert

import (
	"reflect"
	"sync"
)

// Operator is a user-defined conversion from In to Out.
type Operator struct {
	Explicit bool
	In       reflect.Type
	Out      reflect.Type

	fn func(any) (any, bool)
}

// Implicit declares an implicit conversion operator.
//
//	convert.Implicit(func(c Celsius) Fahrenheit { return Fahrenheit(c*9/5 + 32) })
func Implicit[S, D any](fn func(S) D) Operator {
	return newOperator(false, fn)
}

// Explicit declares an explicit conversion operator.
func Explicit[S, D any](fn func(S) D) Operator {
	return newOperator(true, fn)
}

func newOperator[S, D any](explicit bool, fn func(S) D) Operator {
	in := reflect.TypeFor[S]()
	acceptsNil := nillable(in)
	return Operator{
		Explicit: explicit,
		In:       in,
		Out:      reflect.TypeFor[D](),
		fn: func(v any) (any, bool) {
			s, ok := v.(S)
			if !ok && (v != nil || !acceptsNil) {
				return nil, false
			}
			return fn(s), true
		},
	}
}

// Declarer is implemented by types that carry their own conversion
// operators. The method is called on the zero value of the type (a fresh
// pointer for pointer types), so it must not depend on receiver state.
//
//	func (Celsius) ConversionOperators() []convert.Operator {
//	    return []convert.Operator{
//	        convert.Implicit(func(c Celsius) Fahrenheit { ... }),
//	    }
//	}
type Declarer interface {
	ConversionOperators() []Operator
}

var declarerType = reflect.TypeFor[Declarer]()

// operatorTable holds the operators declared on each owner type.
type operatorTable struct {
	mu       sync.RWMutex
	external map[reflect.Type][]Operator

	// owner → []Operator discovered through Declarer
	declared sync.Map
}

func newOperatorTable() *operatorTable {
	return &operatorTable{external: make(map[reflect.Type][]Operator)}
}

func (t *operatorTable) add(owner reflect.Type, ops []Operator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.external[owner] = append(t.external[owner], ops...)
}

// on returns every operator declared on owner: its own declarations first,
// then externally registered ones.
func (t *operatorTable) on(owner reflect.Type) []Operator {
	own := t.declaredOn(owner)

	t.mu.RLock()
	ext := t.external[owner]
	t.mu.RUnlock()

	if len(ext) == 0 {
		return own
	}
	out := make([]Operator, 0, len(own)+len(ext))
	out = append(out, own...)
	return append(out, ext...)
}

func (t *operatorTable) declaredOn(owner reflect.Type) []Operator {
	if ops, ok := t.declared.Load(owner); ok {
		return ops.([]Operator)
	}
	var ops []Operator
	if owner.Kind() != reflect.Interface && owner.Implements(declarerType) {
		var recv reflect.Value
		if owner.Kind() == reflect.Pointer {
			recv = reflect.New(owner.Elem())
		} else {
			recv = reflect.Zero(owner)
		}
		ops = recv.Interface().(Declarer).ConversionOperators()
	}
	actual, _ := t.declared.LoadOrStore(owner, ops)
	return actual.([]Operator)
}

// OperatorBuilder declares operators on a type the caller does not own.
//
//	r.On(reflect.TypeFor[int]()).Declare(
//	    convert.Implicit(func(i int) Celsius { return Celsius(i) }),
//	)
type OperatorBuilder struct {
	resolver *Resolver
	owner    reflect.Type
}

// Declare adds ops to the owner type and drops every cached converter, since
// a new operator can change how a pair resolves.
func (b *OperatorBuilder) Declare(ops ...Operator) {
	if b.owner == nil || len(ops) == 0 {
		return
	}
	b.resolver.ops.add(b.owner, ops)
	b.resolver.invalidate()
}
