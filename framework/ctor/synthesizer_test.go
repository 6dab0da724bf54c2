package ctor

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

type point struct{ X, Y float64 }

type session struct{ ID string }

type labelled struct {
	Name  string
	Count int
}

// ── GetCtor ───────────────────────────────────────────────────────────────────

func TestGetCtor_ExactSignature(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(func(x, y float64) *point { return &point{X: x, Y: y} }))

	f, err := s.GetCtor(reflect.TypeFor[*point](), reflect.TypeFor[float64](), reflect.TypeFor[float64]())
	require.NoError(t, err)

	v, err := f(1.5, 2.5)
	require.NoError(t, err)
	assert.Equal(t, &point{X: 1.5, Y: 2.5}, v)
}

func TestGetCtor_NoCoercion(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(func(x, y float64) *point { return &point{X: x, Y: y} }))

	_, err := s.GetCtor(reflect.TypeFor[*point](), reflect.TypeFor[int](), reflect.TypeFor[int]())
	require.Error(t, err)
	assert.True(t, errors.Is(err, regerrors.ErrUnsupportedType))

	var ute *regerrors.UnsupportedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, reflect.TypeFor[*point](), ute.Type)
	assert.Len(t, ute.Params, 2)
}

func TestGetCtor_CachedPerKey(t *testing.T) {
	s := New()
	Provide1(s, func(id string) *session { return &session{ID: id} })

	for range 3 {
		f, err := s.GetCtor(reflect.TypeFor[*session](), reflect.TypeFor[string]())
		require.NoError(t, err)
		v, err := f("a")
		require.NoError(t, err)
		assert.Equal(t, "a", v.(*session).ID)
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Conventions())
}

func TestGetCtor_MissingThenRegistered(t *testing.T) {
	s := New()
	target := reflect.TypeFor[*session]()
	param := reflect.TypeFor[string]()

	_, err := s.GetCtor(target, param)
	require.True(t, regerrors.IsUnsupported(err))

	Provide1(s, func(id string) *session { return &session{ID: id} })

	f, err := s.GetCtor(target, param)
	require.NoError(t, err, "failures are not cached")
	v, err := f("x")
	require.NoError(t, err)
	assert.Equal(t, "x", v.(*session).ID)
}

func TestGetCtor_DefaultZeroValueConstructor(t *testing.T) {
	s := New()

	f, err := s.GetCtor(reflect.TypeFor[*labelled]())
	require.NoError(t, err)

	a, err := f()
	require.NoError(t, err)
	b, err := f()
	require.NoError(t, err)

	assert.Equal(t, &labelled{}, a)
	assert.NotSame(t, a, b, "each call constructs a new value")
}

func TestGetCtor_NoDefaultForKeyedSignature(t *testing.T) {
	s := New()
	_, err := s.GetCtor(reflect.TypeFor[*labelled](), reflect.TypeFor[string]())
	assert.True(t, regerrors.IsUnsupported(err))
}

func TestGetCtor_NoDefaultForNonStruct(t *testing.T) {
	s := New()
	_, err := s.GetCtor(reflect.TypeFor[int]())
	assert.True(t, regerrors.IsUnsupported(err))
}

func TestGetCtor_NilTarget(t *testing.T) {
	s := New()
	_, err := s.GetCtor(nil)
	assert.True(t, regerrors.IsInvalidArgument(err))
}

func TestGetCtor_TooManyParams(t *testing.T) {
	s := New()
	params := make([]reflect.Type, MaxParams+1)
	for i := range params {
		params[i] = reflect.TypeFor[int]()
	}
	_, err := s.GetCtor(reflect.TypeFor[*point](), params...)
	assert.True(t, regerrors.IsInvalidArgument(err))
}

func TestGetCtor_ArgumentChecks(t *testing.T) {
	s := New()
	Provide1(s, func(id string) *session { return &session{ID: id} })
	f, err := s.GetCtor(reflect.TypeFor[*session](), reflect.TypeFor[string]())
	require.NoError(t, err)

	_, err = f()
	assert.True(t, regerrors.IsInvalidArgument(err), "arity")

	_, err = f(42)
	assert.True(t, regerrors.IsInvalidArgument(err), "type")

	_, err = f(nil)
	assert.True(t, regerrors.IsInvalidArgument(err), "nil for a value type")
}

func TestGetCtor_ConventionSharedAcrossTargets(t *testing.T) {
	s := New()
	Provide1(s, func(id string) *session { return &session{ID: id} })
	Provide1(s, func(name string) *labelled { return &labelled{Name: name} })

	_, err := s.GetCtor(reflect.TypeFor[*session](), reflect.TypeFor[string]())
	require.NoError(t, err)
	_, err = s.GetCtor(reflect.TypeFor[*labelled](), reflect.TypeFor[string]())
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Conventions())
}

func TestGetCtor_ConcurrentFirstUse(t *testing.T) {
	s := New()
	Provide1(s, func(id string) *session { return &session{ID: id} })

	var wg sync.WaitGroup
	results := make([]*session, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := s.GetCtor(reflect.TypeFor[*session](), reflect.TypeFor[string]())
			if err != nil {
				return
			}
			v, err := f("same")
			if err != nil {
				return
			}
			results[i] = v.(*session)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		require.NotNil(t, r, "goroutine %d", i)
		assert.Equal(t, "same", r.ID)
	}
	assert.Equal(t, 1, s.Len())
}

// ── Register ──────────────────────────────────────────────────────────────────

func TestRegister_Rejects(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		fn   any
	}{
		{"nil", nil},
		{"not a func", 42},
		{"no result", func() {}},
		{"variadic", func(xs ...int) *point { return nil }},
		{"second result not error", func() (*point, int) { return nil, 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, regerrors.IsInvalidArgument(s.Register(tt.fn)))
		})
	}
}

func TestRegister_ErrorResult(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	require.NoError(t, s.Register(func(name string) (*labelled, error) {
		if name == "" {
			return nil, boom
		}
		return &labelled{Name: name}, nil
	}))

	f, err := s.GetCtor(reflect.TypeFor[*labelled](), reflect.TypeFor[string]())
	require.NoError(t, err)

	_, err = f("")
	assert.ErrorIs(t, err, boom)

	v, err := f("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", v.(*labelled).Name)
}

func TestRegister_ReplacesSameSignature(t *testing.T) {
	s := New()
	Provide0(s, func() *labelled { return &labelled{Name: "first"} })

	f, err := s.GetCtor(reflect.TypeFor[*labelled]())
	require.NoError(t, err)
	v, _ := f()
	assert.Equal(t, "first", v.(*labelled).Name)

	Provide0(s, func() *labelled { return &labelled{Name: "second"} })

	f, err = s.GetCtor(reflect.TypeFor[*labelled]())
	require.NoError(t, err)
	v, _ = f()
	assert.Equal(t, "second", v.(*labelled).Name)
}

// ── Typed access ──────────────────────────────────────────────────────────────

func TestGet1_Provided(t *testing.T) {
	s := New()
	Provide1(s, func(id string) *session { return &session{ID: id} })

	newSession, err := Get1[string, *session](s)
	require.NoError(t, err)

	sess, err := newSession("k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", sess.ID)
}

func TestGet1_FromReflectRegistration(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(func(n int) *labelled { return &labelled{Count: n} }))

	newLabelled, err := Get1[int, *labelled](s)
	require.NoError(t, err)

	l, err := newLabelled(7)
	require.NoError(t, err)
	assert.Equal(t, 7, l.Count)
}

func TestGet1_Missing(t *testing.T) {
	s := New()
	_, err := Get1[string, *session](s)
	assert.True(t, regerrors.IsUnsupported(err))
}

func TestGet0_DefaultAndProvided(t *testing.T) {
	s := New()

	newPoint, err := Get0[*point](s)
	require.NoError(t, err)
	p, err := newPoint()
	require.NoError(t, err)
	assert.Equal(t, &point{}, p)

	Provide0(s, func() *point { return &point{X: 1} })
	newPoint, err = Get0[*point](s)
	require.NoError(t, err)
	p, err = newPoint()
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.X)
}
