// Package registry provides type-keyed and key-keyed instance registries
// with lazy, concurrency-safe creation, and selector indexes that classify
// registered instances by rule-produced keys.
//
// # Overview
//
// A Context is a type registry: at most one instance per runtime type,
// created on first request through the constructor synthesizer of package
// ctor. Every instance a registry owns embeds Base (or KeyedBase), which
// carries the removal flag the registry flips on eviction.
//
//	c := registry.New(registry.WithLogger(logger))
//
//	type Clock struct {
//	    registry.Base
//	    start time.Time
//	}
//
//	registry.Provide(c, func() *Clock { return &Clock{start: time.Now()} })
//	clock, err := registry.Instance[*Clock](c)
//
// Types without a registered constructor that are pointers to structs get
// their zero value:
//
//	type Counter struct{ registry.Base; n atomic.Int64 }
//	counter := registry.MustInstance[*Counter](c)
//
// # Keyed registries
//
// A KeyedRegistry holds one instance per key value. Instances are built by
// the single-argument constructor registered for the exact key type:
//
//	type Session struct {
//	    registry.KeyedBase[string]
//	    opened time.Time
//	}
//
//	registry.ProvideKeyed(c, func(id string) *Session { return &Session{opened: time.Now()} })
//
//	sessions, _ := registry.Keyed[string, *Session](c)
//	s, _ := sessions.Get("alice")   // s.Key() == "alice"
//	sessions.Remove("alice")        // s.IsRemoved() == true
//
// A keyed registry is itself managed by its Context, so the Controllers index
// finds it by managed type:
//
//	inst, err := c.GetKeyed(reflect.TypeFor[*Session](), "alice")
//
// # Selector indexes
//
// Select builds an index of T instances under a Rule. The index catches up
// with the instances that already exist, then follows creation and removal
// events. Two instances yielding the same key is a conflict error returned
// from the call that created the second one.
//
//	byKey, _ := registry.Select[string, *Session](c, registry.ByKey[string, *Session]{})
//	s, ok := byKey.Lookup("alice")
//
// # Locking
//
// Construction is serialized per type. A constructor may request other
// types, but requesting its own type deadlocks. Observers and rules run with
// the event hub locked and must not create instances.
package registry
