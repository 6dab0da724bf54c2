package ctor

import (
	"reflect"
)

// Provide0 registers a zero-argument constructor for T.
//
//	ctor.Provide0(s, func() *Config { return &Config{Port: 8000} })
func Provide0[T any](s *Synthesizer, fn func() T) {
	s.add(reflect.TypeFor[T](), entry{
		call:  func(_ []any) (any, error) { return fn(), nil },
		typed: fn,
	})
}

// Provide1 registers a single-argument constructor for T taking K.
//
//	ctor.Provide1(s, func(id string) *Session { return NewSession(id) })
func Provide1[K, T any](s *Synthesizer, fn func(K) T) {
	sig, _ := newSignature([]reflect.Type{reflect.TypeFor[K]()})
	s.add(reflect.TypeFor[T](), entry{
		sig: sig,
		call: func(args []any) (any, error) {
			k, _ := args[0].(K)
			return fn(k), nil
		},
		typed: fn,
	})
}

// Get0 returns the zero-argument constructor of T as a typed function.
// Constructors registered through Provide0 are returned as-is.
func Get0[T any](s *Synthesizer) (func() (T, error), error) {
	target := reflect.TypeFor[T]()
	if e, ok := s.lookup(target, signature{}); ok {
		if fn, ok := e.typed.(func() T); ok {
			return func() (T, error) { return fn(), nil }, nil
		}
	}
	f, err := s.GetCtor(target)
	if err != nil {
		return nil, err
	}
	return func() (T, error) {
		v, err := f()
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}, nil
}

// Get1 returns the constructor of T taking exactly one K as a typed function.
// Constructors registered through Provide1 are returned without any
// per-call argument checks.
func Get1[K, T any](s *Synthesizer) (func(K) (T, error), error) {
	target := reflect.TypeFor[T]()
	param := reflect.TypeFor[K]()
	sig, err := newSignature([]reflect.Type{param})
	if err != nil {
		return nil, err
	}
	if e, ok := s.lookup(target, sig); ok {
		if fn, ok := e.typed.(func(K) T); ok {
			return func(k K) (T, error) { return fn(k), nil }, nil
		}
	}
	f, err := s.GetCtor(target, param)
	if err != nil {
		return nil, err
	}
	return func(k K) (T, error) {
		v, err := f(k)
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}, nil
}
