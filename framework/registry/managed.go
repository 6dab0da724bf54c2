package registry

import (
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Managed is the contract of every registry-owned instance. It can only be
// satisfied by embedding Base (or KeyedBase), which keeps the removal flag
// under the registry's control.
type Managed interface {
	// IsRemoved reports whether the owning registry has evicted the instance.
	IsRemoved() bool

	markRemoved()
}

// Base is the embeddable implementation of Managed.
//
//	type Clock struct {
//	    registry.Base
//	    start time.Time
//	}
type Base struct {
	removed atomic.Bool
}

func (b *Base) IsRemoved() bool { return b.removed.Load() }

func (b *Base) markRemoved() { b.removed.Store(true) }

// KeyedManaged is the contract of instances owned by a KeyedRegistry.
type KeyedManaged[K comparable] interface {
	Managed
	Key() K
	setKey(K)
}

// KeyedBase is the embeddable implementation of KeyedManaged. The registry
// stamps the key before the instance becomes visible.
//
//	type Session struct {
//	    registry.KeyedBase[string]
//	    opened time.Time
//	}
type KeyedBase[K comparable] struct {
	Base
	key K
}

// Key returns the key the instance was constructed with.
func (b *KeyedBase[K]) Key() K { return b.key }

func (b *KeyedBase[K]) setKey(k K) { b.key = k }

// Initializer is implemented by managed types that need a post-initialization
// step. AfterInitialize runs once, after the instance is visible in its
// registry and the creation event has been delivered.
type Initializer interface {
	AfterInitialize(c *Context)
}

// selfConstructed marks managed types that are only built by the registry
// itself (KeyedRegistry) and never through their zero-argument constructor.
type selfConstructed interface {
	selfConstructed()
}

var (
	managedType         = reflect.TypeFor[Managed]()
	selfConstructedType = reflect.TypeFor[selfConstructed]()
)

// TypeKey returns the package-qualified name of t, pointers included.
//
//	registry.TypeKey(reflect.TypeFor[*Clock]())  // "*github.com/acme/app.Clock"
func TypeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	stars := 0
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
		stars++
	}
	name := t.String()
	if t.Name() != "" && t.PkgPath() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	return strings.Repeat("*", stars) + name
}

// IdentityHash is the stable hash of an instance's own type. Since a type
// registry holds one instance per type, it identifies the instance as well.
func IdentityHash(m Managed) uint64 {
	return xxhash.Sum64String(TypeKey(reflect.TypeOf(m)))
}

// WithKey sets the key of an instance built outside its registry, before
// KeyedRegistry.Register.
//
//	err := sessions.Register(registry.WithKey(&Session{}, "alice"))
func WithKey[K comparable, T KeyedManaged[K]](inst T, key K) T {
	inst.setKey(key)
	return inst
}
