// Package ctor synthesizes and caches directly callable constructors.
//
// A constructor is identified by its target type and the exact, ordered list
// of its parameter types. Constructors are registered at startup and looked
// up by that pair; there is no overload resolution and no argument coercion.
//
//	s := ctor.New()
//	ctor.Provide1(s, func(id string) *Session { return NewSession(id) })
//
//	// erased: one cached Func per (target, signature)
//	f, err := s.GetCtor(reflect.TypeFor[*Session](), reflect.TypeFor[string]())
//	v, err := f("abc")
//
//	// typed: no per-call checks for constructors registered with Provide1
//	newSession, err := ctor.Get1[string, *Session](s)
//	sess, err := newSession("abc")
//
// A missing signature is an unsupported-type error. It is not cached, so a
// later registration makes the same lookup succeed.
package ctor
