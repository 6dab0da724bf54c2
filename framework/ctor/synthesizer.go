package ctor

import (
	"fmt"
	"reflect"
	"sync"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// MaxParams bounds the arity of a constructor signature.
const MaxParams = 8

// Func is a synthesized constructor: a direct call of a registered constructor
// behind a fixed calling convention.
type Func func(args ...any) (any, error)

// signature is a structural key for an ordered parameter list.
type signature struct {
	n      int
	params [MaxParams]reflect.Type
}

func newSignature(params []reflect.Type) (signature, error) {
	var s signature
	if len(params) > MaxParams {
		return s, regerrors.NewInvalidArgument("ctor", fmt.Sprintf("%d parameters exceed the limit of %d", len(params), MaxParams))
	}
	s.n = len(params)
	for i, p := range params {
		if p == nil {
			return s, regerrors.NewInvalidArgument("ctor", fmt.Sprintf("parameter %d is a nil type", i))
		}
		s.params[i] = p
	}
	return s, nil
}

func (s signature) types() []reflect.Type {
	out := make([]reflect.Type, s.n)
	copy(out, s.params[:s.n])
	return out
}

// key identifies one synthesized constructor.
type key struct {
	target reflect.Type
	sig    signature
}

// entry is a registered constructor before synthesis.
type entry struct {
	sig   signature
	call  func(args []any) (any, error)
	typed any // func() T / func(K) T when registered through Provide0/Provide1
}

// Synthesizer caches directly callable constructors keyed by
// (target type, parameter signature).
//
// Constructors are registered explicitly at startup (Provide0, Provide1,
// Register); GetCtor never searches the program for them.
type Synthesizer struct {
	mu         sync.RWMutex
	registered map[reflect.Type][]entry

	// key → Func
	cache sync.Map

	// signature → calling convention, shared across targets
	conventions sync.Map
}

// New creates an empty Synthesizer.
func New() *Synthesizer {
	return &Synthesizer{registered: make(map[reflect.Type][]entry)}
}

// Register records an arbitrary constructor function. fn must be a func
// returning T or (T, error); its parameter list is the signature it serves.
// Calls through the resulting constructor go through reflect.Value.Call; use
// Provide0 or Provide1 for zero- and one-argument constructors.
func (s *Synthesizer) Register(fn any) error {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return regerrors.NewInvalidArgument("ctor.Register", fmt.Sprintf("%T is not a function", fn))
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return regerrors.NewInvalidArgument("ctor.Register", "variadic constructors are not supported")
	}
	withErr := ft.NumOut() == 2 && ft.Out(1) == errorType
	if ft.NumOut() != 1 && !withErr {
		return regerrors.NewInvalidArgument("ctor.Register", fmt.Sprintf("%s must return T or (T, error)", ft))
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	sig, err := newSignature(params)
	if err != nil {
		return err
	}

	call := func(args []any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			if a == nil {
				in[i] = reflect.Zero(params[i])
				continue
			}
			in[i] = reflect.ValueOf(a)
		}
		out := rv.Call(in)
		if withErr && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}

	s.add(ft.Out(0), entry{sig: sig, call: call})
	return nil
}

// add stores e, replacing a previous registration with the same signature.
func (s *Synthesizer) add(target reflect.Type, e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.registered[target]
	for i := range entries {
		if entries[i].sig == e.sig {
			entries[i] = e
			s.cache.Delete(key{target: target, sig: e.sig})
			return
		}
	}
	s.registered[target] = append(entries, e)
	s.cache.Delete(key{target: target, sig: e.sig})
}

func (s *Synthesizer) lookup(target reflect.Type, sig signature) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.registered[target] {
		if e.sig == sig {
			return e, true
		}
	}
	return entry{}, false
}

// GetCtor returns the constructor of target whose declared parameter types
// are exactly params. The result is synthesized once and cached; a missing
// constructor is reported as an unsupported-type error and is not cached.
//
// With no parameters and nothing registered, a pointer-to-struct target gets
// its zero-value constructor (new(T)).
func (s *Synthesizer) GetCtor(target reflect.Type, params ...reflect.Type) (Func, error) {
	if target == nil {
		return nil, regerrors.NewInvalidArgument("ctor.GetCtor", "nil target type")
	}
	sig, err := newSignature(params)
	if err != nil {
		return nil, err
	}
	k := key{target: target, sig: sig}
	if f, ok := s.cache.Load(k); ok {
		return f.(Func), nil
	}

	f, err := s.synthesize(target, sig)
	if err != nil {
		return nil, err
	}
	actual, _ := s.cache.LoadOrStore(k, f)
	return actual.(Func), nil
}

func (s *Synthesizer) synthesize(target reflect.Type, sig signature) (Func, error) {
	e, ok := s.lookup(target, sig)
	if !ok {
		if sig.n == 0 && target.Kind() == reflect.Pointer && target.Elem().Kind() == reflect.Struct {
			elem := target.Elem()
			return func(args ...any) (any, error) {
				if len(args) != 0 {
					return nil, regerrors.NewInvalidArgument("ctor", fmt.Sprintf("%s takes no arguments, got %d", target, len(args)))
				}
				return reflect.New(elem).Interface(), nil
			}, nil
		}
		return nil, &regerrors.UnsupportedTypeError{Type: target, Params: sig.types()}
	}

	check := s.convention(sig)
	call := e.call
	return func(args ...any) (any, error) {
		if err := check(args); err != nil {
			return nil, err
		}
		return call(args)
	}, nil
}

// convention returns the argument check for sig, built once per signature
// and reused by every target sharing it.
func (s *Synthesizer) convention(sig signature) func([]any) error {
	if c, ok := s.conventions.Load(sig); ok {
		return c.(func([]any) error)
	}
	params := sig.types()
	check := func(args []any) error {
		if len(args) != len(params) {
			return regerrors.NewInvalidArgument("ctor", fmt.Sprintf("want %d arguments, got %d", len(params), len(args)))
		}
		for i, a := range args {
			if a == nil {
				if !nillable(params[i]) {
					return regerrors.NewInvalidArgument("ctor", fmt.Sprintf("argument %d: nil for %s", i, params[i]))
				}
				continue
			}
			if at := reflect.TypeOf(a); at != params[i] && !at.AssignableTo(params[i]) {
				return regerrors.NewInvalidArgument("ctor", fmt.Sprintf("argument %d: %s is not %s", i, at, params[i]))
			}
		}
		return nil
	}
	actual, _ := s.conventions.LoadOrStore(sig, check)
	return actual.(func([]any) error)
}

// Len returns the number of synthesized constructors.
func (s *Synthesizer) Len() int {
	n := 0
	s.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Conventions returns the number of distinct calling conventions built.
func (s *Synthesizer) Conventions() int {
	n := 0
	s.conventions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var errorType = reflect.TypeFor[error]()

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
