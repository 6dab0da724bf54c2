package convert

import (
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// Func converts a value of the source type to the destination type. ok is
// false when the runtime value cannot be converted (a failed downcast).
// A Func performs no further type checks and is only valid for the pair it
// was resolved for.
type Func func(in any) (out any, ok bool)

// pair is the structural cache key for one conversion.
type pair struct {
	src reflect.Type
	dst reflect.Type
}

// Pair is an exported snapshot of a resolved conversion.
type Pair struct {
	From reflect.Type
	To   reflect.Type
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for resolution events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver locates or synthesizes converters between runtime types and
// caches them per (source, destination) pair.
type Resolver struct {
	log *zap.Logger
	ops *operatorTable

	mu     sync.RWMutex
	custom []Strategy
	gen    uint64 // bumped whenever strategies or operators change

	// pair → Func
	cache sync.Map

	searches atomic.Int64
}

// New creates a Resolver with the built-in strategies.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		log: zap.NewNop(),
		ops: newOperatorTable(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On starts an operator declaration for owner.
func (r *Resolver) On(owner reflect.Type) *OperatorBuilder {
	return &OperatorBuilder{resolver: r, owner: owner}
}

// Use appends custom strategies. They are consulted, in order, after the
// built-in ones.
func (r *Resolver) Use(strategies ...Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, strategies...)
	r.gen++
	r.cache.Clear()
}

// invalidate drops every cached converter. Searches already running when it
// is called do not store their result.
func (r *Resolver) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache.Clear()
}

// MakeConverter returns the converter from src to dst. Strategies are tried
// in a fixed order and the first that applies wins:
//
//  1. assignable (identity, widening, boxing into an interface)
//  2. downcast from an interface, checked at run time
//  3. user-defined conversion operators
//  4. custom strategies added with Use
//
// The result is cached; later calls for the same pair skip the search.
func (r *Resolver) MakeConverter(src, dst reflect.Type) (Func, error) {
	if src == nil || dst == nil {
		return nil, regerrors.NewInvalidArgument("convert.MakeConverter", "nil type")
	}
	k := pair{src: src, dst: dst}
	if f, ok := r.cache.Load(k); ok {
		return f.(Func), nil
	}

	f, gen, err := r.search(src, dst)
	if err != nil {
		r.log.Debug("conversion failed", zap.Stringer("from", src), zap.Stringer("to", dst), zap.Error(err))
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if gen != r.gen {
		return f, nil
	}
	actual, _ := r.cache.LoadOrStore(k, f)
	return actual.(Func), nil
}

func (r *Resolver) search(src, dst reflect.Type) (Func, uint64, error) {
	r.searches.Add(1)

	r.mu.RLock()
	gen := r.gen
	chain := make([]Strategy, 0, 3+len(r.custom))
	chain = append(chain, assignable{}, downcast{}, operators{table: r.ops})
	chain = append(chain, r.custom...)
	r.mu.RUnlock()

	for i, s := range chain {
		f, ok, err := s.TryStrategy(src, dst)
		if err != nil {
			return nil, gen, err
		}
		if ok {
			r.log.Debug("conversion resolved",
				zap.Stringer("from", src), zap.Stringer("to", dst), zap.Int("strategy", i+1))
			return f, gen, nil
		}
	}
	return nil, gen, &regerrors.UnsupportedConversionError{From: src, To: dst}
}

// Convert converts v to dst using the converter for v's dynamic type.
func (r *Resolver) Convert(v any, dst reflect.Type) (any, bool, error) {
	if v == nil {
		return nil, false, regerrors.NewInvalidArgument("convert.Convert", "nil value")
	}
	f, err := r.MakeConverter(reflect.TypeOf(v), dst)
	if err != nil {
		return nil, false, err
	}
	out, ok := f(v)
	return out, ok, nil
}

// Searches returns how many strategy searches have run. Cache hits do not
// count.
func (r *Resolver) Searches() int64 { return r.searches.Load() }

// Cached returns the pairs with a cached converter.
func (r *Resolver) Cached() []Pair {
	var out []Pair
	r.cache.Range(func(k, _ any) bool {
		p := k.(pair)
		out = append(out, Pair{From: p.src, To: p.dst})
		return true
	})
	return out
}

// For returns a typed converter from S to D.
//
//	toF, err := convert.For[Celsius, Fahrenheit](r)
//	f, ok := toF(100)
func For[S, D any](r *Resolver) (func(S) (D, bool), error) {
	f, err := r.MakeConverter(reflect.TypeFor[S](), reflect.TypeFor[D]())
	if err != nil {
		return nil, err
	}
	return func(s S) (D, bool) {
		var zero D
		out, ok := f(s)
		if !ok {
			return zero, false
		}
		if out == nil {
			return zero, true
		}
		d, ok := out.(D)
		return d, ok
	}, nil
}
