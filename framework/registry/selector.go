package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// Rule extracts the index keys of a managed instance. It must be a pure
// function of the instance: it runs while the event hub is locked.
type Rule[K comparable, T Managed] interface {
	KeysFor(inst T) []K
}

// RuleFunc adapts a function to Rule. Function rules are not comparable, so
// every Select with one builds a fresh index.
type RuleFunc[K comparable, T Managed] func(inst T) []K

func (f RuleFunc[K, T]) KeysFor(inst T) []K { return f(inst) }

// ByKey indexes keyed instances by their own key, across every registry
// whose instances are T.
type ByKey[K comparable, T KeyedManaged[K]] struct{}

func (ByKey[K, T]) KeysFor(inst T) []K { return []K{inst.Key()} }

// byManagedType indexes keyed registries by the type they manage.
type byManagedType struct{}

func (byManagedType) KeysFor(ctrl Controller) []reflect.Type {
	return []reflect.Type{ctrl.ManagedType()}
}

type selectorKey struct {
	rule    any
	key     reflect.Type
	watched reflect.Type
}

// SelectorIndex maps rule-produced keys to the T instances that produced
// them. It never owns or creates instances; removed instances are evicted.
type SelectorIndex[K comparable, T Managed] struct {
	ctx    *Context
	rule   Rule[K, T]
	sk     *selectorKey
	cancel func()

	mu     sync.RWMutex
	table  map[K]T
	keysOf map[Managed][]K
}

// Select returns the index of T instances under rule, building it on first
// use. A new index first catches up with every live instance, so it answers
// for instances created before it.
//
//	byEmail, err := registry.Select[string, *User](c, registry.RuleFunc[string, *User](
//	    func(u *User) []string { return []string{u.Email} },
//	))
func Select[K comparable, T Managed](c *Context, rule Rule[K, T]) (*SelectorIndex[K, T], error) {
	if rule == nil || isNil(rule) {
		return nil, regerrors.NewInvalidArgument("registry.Select", "nil rule")
	}

	var sk *selectorKey
	if reflect.TypeOf(rule).Comparable() {
		sk = &selectorKey{rule: rule, key: reflect.TypeFor[K](), watched: reflect.TypeFor[T]()}
	}

	c.selMu.Lock()
	defer c.selMu.Unlock()
	if sk != nil {
		if idx, ok := c.selectors[*sk]; ok {
			return idx.(*SelectorIndex[K, T]), nil
		}
	}

	idx := &SelectorIndex[K, T]{
		ctx:    c,
		rule:   rule,
		sk:     sk,
		table:  make(map[K]T),
		keysOf: make(map[Managed][]K),
	}
	cancel, err := c.hub.subscribe(idx.observe)
	if err != nil {
		return nil, fmt.Errorf("build selector index: %w", err)
	}
	idx.cancel = cancel
	if sk != nil {
		c.selectors[*sk] = idx
	}
	return idx, nil
}

// Controllers returns the index of keyed registries by managed type.
func Controllers(c *Context) (*SelectorIndex[reflect.Type, Controller], error) {
	return Select[reflect.Type, Controller](c, byManagedType{})
}

func (idx *SelectorIndex[K, T]) observe(ev Event) error {
	inst, ok := ev.Instance.(T)
	if !ok {
		return nil
	}
	switch ev.Type {
	case Created:
		return idx.insert(inst)
	case Removed:
		idx.evict(inst)
	}
	return nil
}

// insert indexes inst under every key the rule yields. A key already held by
// another live instance is a conflict; the remaining keys are still inserted.
// A key held by a removed instance whose Removed event has not arrived yet is
// taken over.
func (idx *SelectorIndex[K, T]) insert(inst T) error {
	keys := idx.rule.KeysFor(inst)
	if len(keys) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if inst.IsRemoved() {
		return nil
	}
	var errs []error
	for _, k := range keys {
		if held, ok := idx.table[k]; ok {
			if Managed(held) == Managed(inst) {
				continue
			}
			if !held.IsRemoved() {
				errs = append(errs, regerrors.NewConflict("selector index", reflect.TypeOf(inst), k))
				continue
			}
			idx.dropKey(held, k)
		}
		idx.table[k] = inst
		idx.keysOf[Managed(inst)] = append(idx.keysOf[Managed(inst)], k)
	}
	return errors.Join(errs...)
}

// evict drops the keys inst still holds. Keys already taken over by a newer
// instance are left alone.
func (idx *SelectorIndex[K, T]) evict(inst T) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, k := range idx.keysOf[Managed(inst)] {
		if held, ok := idx.table[k]; ok && Managed(held) == Managed(inst) {
			delete(idx.table, k)
		}
	}
	delete(idx.keysOf, Managed(inst))
}

func (idx *SelectorIndex[K, T]) dropKey(held T, k K) {
	m := Managed(held)
	keys := slices.DeleteFunc(idx.keysOf[m], func(x K) bool { return x == k })
	if len(keys) == 0 {
		delete(idx.keysOf, m)
		return
	}
	idx.keysOf[m] = keys
}

// Lookup returns the instance indexed under key.
func (idx *SelectorIndex[K, T]) Lookup(key K) (T, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	inst, ok := idx.table[key]
	return inst, ok
}

// LookupAny is Lookup with a loosely-typed key, converted to K through the
// Context's conversion resolver.
func (idx *SelectorIndex[K, T]) LookupAny(key any) (T, bool, error) {
	var zero T
	if key == nil {
		return zero, false, regerrors.NewInvalidArgument("registry.LookupAny", "nil key")
	}
	k, ok := key.(K)
	if !ok {
		out, converted, err := idx.ctx.conv.Convert(key, reflect.TypeFor[K]())
		if err != nil {
			return zero, false, err
		}
		if k, ok = out.(K); !converted || !ok {
			return zero, false, nil
		}
	}
	inst, found := idx.Lookup(k)
	return inst, found, nil
}

// Keys returns the indexed keys in no particular order.
func (idx *SelectorIndex[K, T]) Keys() []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]K, 0, len(idx.table))
	for k := range idx.table {
		out = append(out, k)
	}
	return out
}

func (idx *SelectorIndex[K, T]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.table)
}

// Close stops tracking new instances. A later Select with the same rule
// builds a fresh index.
func (idx *SelectorIndex[K, T]) Close() {
	idx.cancel()
	if idx.sk == nil {
		return
	}
	idx.ctx.selMu.Lock()
	defer idx.ctx.selMu.Unlock()
	if cur, ok := idx.ctx.selectors[*idx.sk]; ok && cur == any(idx) {
		delete(idx.ctx.selectors, *idx.sk)
	}
}
