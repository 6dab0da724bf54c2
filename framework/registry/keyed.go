package registry

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-registry/framework/ctor"
	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// Controller is the type-erased view of a KeyedRegistry. Every keyed registry
// is itself a managed instance of its Context, so the Controllers index finds
// the registry for a managed type.
type Controller interface {
	Managed

	// ManagedType is the type of the instances the registry owns.
	ManagedType() reflect.Type

	// KeyType is the type of the registry's keys.
	KeyType() reflect.Type

	// Instance is Get with a loosely-typed key.
	Instance(key any) (Managed, error)

	Len() int
	Clear() int
}

// KeyedRegistry holds at most one T per key and creates it lazily through
// T's single-key constructor. Obtain one with Keyed.
type KeyedRegistry[K comparable, T KeyedManaged[K]] struct {
	Base

	ctx *Context

	mu        sync.Mutex
	instances map[K]T

	ctorMu sync.Mutex
	ctor   func(K) (T, error)
}

// Keyed returns the keyed registry of T in c, creating it on first use.
//
//	sessions, err := registry.Keyed[string, *Session](c)
//	s, err := sessions.Get("alice")
func Keyed[K comparable, T KeyedManaged[K]](c *Context) (*KeyedRegistry[K, T], error) {
	t := reflect.TypeFor[*KeyedRegistry[K, T]]()
	m, err := c.getOrCreate(t, func() (Managed, error) {
		return &KeyedRegistry[K, T]{ctx: c, instances: make(map[K]T)}, nil
	})
	if err != nil {
		return nil, err
	}
	return m.(*KeyedRegistry[K, T]), nil
}

func (r *KeyedRegistry[K, T]) selfConstructed() {}

func (r *KeyedRegistry[K, T]) ManagedType() reflect.Type { return reflect.TypeFor[T]() }

func (r *KeyedRegistry[K, T]) KeyType() reflect.Type { return reflect.TypeFor[K]() }

// constructor resolves T's (K) constructor once. A missing constructor is
// reported on every call until one is registered.
func (r *KeyedRegistry[K, T]) constructor() (func(K) (T, error), error) {
	r.ctorMu.Lock()
	defer r.ctorMu.Unlock()
	if r.ctor != nil {
		return r.ctor, nil
	}
	f, err := ctor.Get1[K, T](r.ctx.ctors)
	if err != nil {
		return nil, err
	}
	r.ctor = f
	return f, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get returns the instance for key, constructing it on first use.
//
// Two goroutines racing on a fresh key both construct; the first to publish
// wins and the other's instance is discarded as removed, so both callers get
// the winner. When creation observers fail the instance stays registered and
// the error is returned with a zero T.
func (r *KeyedRegistry[K, T]) Get(key K) (T, error) {
	var zero T
	if any(key) == nil {
		return zero, regerrors.NewInvalidArgument("registry.Get", "nil key")
	}
	if inst, ok := r.Lookup(key); ok {
		return inst, nil
	}

	newT, err := r.constructor()
	if err != nil {
		return zero, err
	}
	inst, err := newT(key)
	if err != nil {
		return zero, fmt.Errorf("construct %s for key %v: %w", r.ManagedType(), key, err)
	}
	if isNil(inst) {
		return zero, regerrors.NewInvalidArgument("registry.Get",
			fmt.Sprintf("constructor for %s returned no instance", r.ManagedType()))
	}
	inst.setKey(key)

	r.mu.Lock()
	if winner, ok := r.instances[key]; ok {
		r.mu.Unlock()
		inst.markRemoved()
		return winner, nil
	}
	r.instances[key] = inst
	r.mu.Unlock()

	if err := r.ctx.initialized(inst); err != nil {
		return zero, err
	}
	return inst, nil
}

// GetAny is Get with a loosely-typed key, converted to K through the
// Context's conversion resolver.
func (r *KeyedRegistry[K, T]) GetAny(key any) (T, error) {
	var zero T
	k, err := r.keyOf(key)
	if err != nil {
		return zero, err
	}
	return r.Get(k)
}

// Instance implements Controller.
func (r *KeyedRegistry[K, T]) Instance(key any) (Managed, error) {
	inst, err := r.GetAny(key)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *KeyedRegistry[K, T]) keyOf(key any) (K, error) {
	var zero K
	if key == nil {
		return zero, regerrors.NewInvalidArgument("registry.Get", "nil key")
	}
	if k, ok := key.(K); ok {
		return k, nil
	}
	out, ok, err := r.ctx.conv.Convert(key, r.KeyType())
	if err != nil {
		return zero, err
	}
	k, isK := out.(K)
	if !ok || !isK {
		return zero, regerrors.NewInvalidArgument("registry.Get",
			fmt.Sprintf("key %v is not a %s", key, r.KeyType()))
	}
	return k, nil
}

// Lookup returns the instance for key without creating it.
func (r *KeyedRegistry[K, T]) Lookup(key K) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[key]
	return inst, ok
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register publishes a pre-built instance under inst.Key(). It fails with a
// conflict error when the key is taken.
func (r *KeyedRegistry[K, T]) Register(inst T) error {
	if isNil(inst) {
		return regerrors.NewInvalidArgument("registry.Register", "nil instance")
	}
	key := inst.Key()

	r.mu.Lock()
	if _, ok := r.instances[key]; ok {
		r.mu.Unlock()
		return regerrors.NewConflict("keyed registry", r.ManagedType(), key)
	}
	r.instances[key] = inst
	r.mu.Unlock()

	return r.ctx.initialized(inst)
}

// Remove evicts the instance for key and marks it removed. It reports
// whether there was one.
func (r *KeyedRegistry[K, T]) Remove(key K) bool {
	r.mu.Lock()
	inst, ok := r.instances[key]
	if ok {
		inst.markRemoved()
		delete(r.instances, key)
	}
	r.mu.Unlock()

	if ok {
		r.ctx.log.Debug("instance removed", zap.Stringer("type", r.ManagedType()), zap.Any("key", key))
		r.ctx.removed(inst)
	}
	return ok
}

// Clear removes every instance and returns how many there were.
func (r *KeyedRegistry[K, T]) Clear() int {
	r.mu.Lock()
	evicted := make([]T, 0, len(r.instances))
	for _, inst := range r.instances {
		inst.markRemoved()
		evicted = append(evicted, inst)
	}
	clear(r.instances)
	r.mu.Unlock()

	for _, inst := range evicted {
		r.ctx.removed(inst)
	}
	return len(evicted)
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Keys returns the current keys in no particular order.
func (r *KeyedRegistry[K, T]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]K, 0, len(r.instances))
	for k := range r.instances {
		out = append(out, k)
	}
	return out
}

func (r *KeyedRegistry[K, T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// GetKeyed returns the instance of t for key from t's keyed registry. The
// registry must already exist (see Keyed); types are not enough to create one.
func (c *Context) GetKeyed(t reflect.Type, key any) (Managed, error) {
	if t == nil {
		return nil, regerrors.NewInvalidArgument("registry.GetKeyed", "nil type")
	}
	idx, err := Controllers(c)
	if err != nil {
		return nil, err
	}
	ctrl, ok := idx.Lookup(t)
	if !ok {
		return nil, &regerrors.UnsupportedTypeError{Type: t, Params: []reflect.Type{reflect.TypeOf(key)}}
	}
	return ctrl.Instance(key)
}
