package convert

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

type Celsius float64

type Fahrenheit float64

type Kelvin float64

func (Celsius) ConversionOperators() []Operator {
	return []Operator{
		Implicit(func(c Celsius) Fahrenheit { return Fahrenheit(c*9/5 + 32) }),
		Explicit(func(c Celsius) Kelvin { return Kelvin(c + 273.15) }),
	}
}

// Rankine declares its operator on the destination side.
type Rankine float64

func (Rankine) ConversionOperators() []Operator {
	return []Operator{
		Explicit(func(k Kelvin) Rankine { return Rankine(k * 9 / 5) }),
	}
}

// Label accepts any fmt.Stringer, which makes it inexact for concrete sources.
type Label string

func (Label) ConversionOperators() []Operator {
	return []Operator{
		Implicit(func(s fmt.Stringer) Label { return Label(s.String()) }),
	}
}

type version struct{ major, minor int }

func (v version) String() string { return fmt.Sprintf("v%d.%d", v.major, v.minor) }

type shape interface{ Area() float64 }

type square struct{ side float64 }

func (s *square) Area() float64 { return s.side * s.side }

// ── Strategy 1: assignable ────────────────────────────────────────────────────

func TestMakeConverter_IntToAnyBoxes(t *testing.T) {
	r := New()

	f, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[any]())
	require.NoError(t, err)

	out, ok := f(5)
	require.True(t, ok)
	assert.Equal(t, 5, out)
	_, isAny := out.(any)
	assert.True(t, isAny)
}

func TestMakeConverter_Identity(t *testing.T) {
	r := New()

	toSame, err := For[string, string](r)
	require.NoError(t, err)
	got, ok := toSame("abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", got)
}

func TestMakeConverter_ConcreteToInterface(t *testing.T) {
	r := New()

	toShape, err := For[*square, shape](r)
	require.NoError(t, err)

	sq := &square{side: 2}
	s, ok := toShape(sq)
	require.True(t, ok)
	assert.Same(t, sq, s)
	assert.Equal(t, 4.0, s.Area())
}

func TestMakeConverter_NullableSkipsIdentity(t *testing.T) {
	r := New()

	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[sql.Null[int]]())
	require.Error(t, err)
	assert.True(t, errors.Is(err, regerrors.ErrUnsupportedConversion))

	var uce *regerrors.UnsupportedConversionError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, reflect.TypeFor[int](), uce.From)
	assert.Equal(t, reflect.TypeFor[sql.Null[int]](), uce.To)
}

func TestNullableOf(t *testing.T) {
	assert.True(t, nullableOf(reflect.TypeFor[sql.Null[int]](), reflect.TypeFor[int]()))
	assert.True(t, nullableOf(reflect.TypeFor[sql.Null[string]](), reflect.TypeFor[string]()))
	assert.False(t, nullableOf(reflect.TypeFor[sql.Null[int]](), reflect.TypeFor[int64]()))
	assert.False(t, nullableOf(reflect.TypeFor[sql.NullInt64](), reflect.TypeFor[int64]()))
	assert.False(t, nullableOf(reflect.TypeFor[*int](), reflect.TypeFor[int]()))
}

func TestAssignable_NullableIdentity(t *testing.T) {
	nt := reflect.TypeFor[sql.Null[int]]()
	f, ok, err := assignable{}.TryStrategy(nt, nt)
	require.NoError(t, err)
	assert.True(t, ok, "identity on the nullable type itself is still allowed")
	assert.NotNil(t, f)
}

// ── Strategy 2: downcast ──────────────────────────────────────────────────────

func TestMakeConverter_AnyToString(t *testing.T) {
	r := New()

	f, err := r.MakeConverter(reflect.TypeFor[any](), reflect.TypeFor[string]())
	require.NoError(t, err)

	out, ok := f("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", out)

	out, ok = f(42)
	assert.False(t, ok, "not a string yields no value")
	assert.Nil(t, out)

	out, ok = f(nil)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestMakeConverter_InterfaceToInterface(t *testing.T) {
	r := New()

	toShape, err := For[any, shape](r)
	require.NoError(t, err)

	s, ok := toShape(&square{side: 3})
	require.True(t, ok)
	assert.Equal(t, 9.0, s.Area())

	_, ok = toShape("not a shape")
	assert.False(t, ok)

	// verdicts are memoized per dynamic type; the answer does not change
	_, ok = toShape("still not")
	assert.False(t, ok)
	_, ok = toShape(&square{side: 1})
	assert.True(t, ok)
}

func TestMakeConverter_DowncastImpossibleFallsThrough(t *testing.T) {
	r := New()

	// square (non-pointer) does not implement shape; no assertion can succeed
	_, err := r.MakeConverter(reflect.TypeFor[shape](), reflect.TypeFor[square]())
	assert.True(t, regerrors.IsUnsupported(err))
}

// ── Strategy 3: operators ─────────────────────────────────────────────────────

func TestMakeConverter_ImplicitOperatorOnSource(t *testing.T) {
	r := New()

	toF, err := For[Celsius, Fahrenheit](r)
	require.NoError(t, err)

	f, ok := toF(100)
	require.True(t, ok)
	assert.Equal(t, Fahrenheit(212), f)
}

func TestMakeConverter_ExplicitOperatorOnSource(t *testing.T) {
	r := New()

	toK, err := For[Celsius, Kelvin](r)
	require.NoError(t, err)

	k, ok := toK(0)
	require.True(t, ok)
	assert.InDelta(t, 273.15, float64(k), 1e-9)
}

func TestMakeConverter_OperatorOnDestination(t *testing.T) {
	r := New()

	toR, err := For[Kelvin, Rankine](r)
	require.NoError(t, err)

	got, ok := toR(100)
	require.True(t, ok)
	assert.InDelta(t, 180.0, float64(got), 1e-9)
}

func TestMakeConverter_ImplicitBeatsExplicit(t *testing.T) {
	r := New()
	r.On(reflect.TypeFor[int]()).Declare(
		Explicit(func(i int) Celsius { return Celsius(-1) }),
		Implicit(func(i int) Celsius { return Celsius(i) }),
	)

	toC, err := For[int, Celsius](r)
	require.NoError(t, err)
	c, ok := toC(21)
	require.True(t, ok)
	assert.Equal(t, Celsius(21), c)
}

func TestMakeConverter_SourceBeatsDestination(t *testing.T) {
	r := New()
	r.On(reflect.TypeFor[Kelvin]()).Declare(
		Explicit(func(k Kelvin) Rankine { return Rankine(-1) }),
	)

	toR, err := For[Kelvin, Rankine](r)
	require.NoError(t, err)
	got, _ := toR(10)
	assert.Equal(t, Rankine(-1), got, "operator on the source type is found first")
}

func TestMakeConverter_InexactOperatorIsUnresolved(t *testing.T) {
	r := New()

	_, err := r.MakeConverter(reflect.TypeFor[version](), reflect.TypeFor[Label]())
	require.Error(t, err)
	assert.True(t, errors.Is(err, regerrors.ErrUnresolvedConversion))

	var ue *regerrors.UnresolvedConversionError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, []reflect.Type{reflect.TypeFor[fmt.Stringer]()}, ue.Candidates)
}

func TestMakeConverter_ExactInterfaceOperator(t *testing.T) {
	r := New()

	toLabel, err := For[fmt.Stringer, Label](r)
	require.NoError(t, err)

	l, ok := toLabel(version{1, 2})
	require.True(t, ok)
	assert.Equal(t, Label("v1.2"), l)
}

func TestMakeConverter_NoStrategy(t *testing.T) {
	r := New()
	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[string]())
	require.Error(t, err)
	assert.True(t, regerrors.IsUnsupported(err))
	assert.Contains(t, err.Error(), "int")
	assert.Contains(t, err.Error(), "string")
}

func TestMakeConverter_NilTypes(t *testing.T) {
	r := New()
	_, err := r.MakeConverter(nil, reflect.TypeFor[int]())
	assert.True(t, regerrors.IsInvalidArgument(err))
	_, err = r.MakeConverter(reflect.TypeFor[int](), nil)
	assert.True(t, regerrors.IsInvalidArgument(err))
}

// ── Custom strategies ─────────────────────────────────────────────────────────

func TestUse_NumericStrategy(t *testing.T) {
	r := New()

	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[float64]())
	require.True(t, regerrors.IsUnsupported(err))

	r.Use(Numeric{})

	toF64, err := For[int, float64](r)
	require.NoError(t, err)
	f, ok := toF64(3)
	require.True(t, ok)
	assert.Equal(t, 3.0, f)
}

func TestUse_CustomStrategyAfterBuiltins(t *testing.T) {
	r := New()
	var asked []string
	r.Use(StrategyFunc(func(src, dst reflect.Type) (Func, bool, error) {
		asked = append(asked, src.String()+"->"+dst.String())
		if src.Kind() == reflect.Int && dst.Kind() == reflect.String {
			return func(v any) (any, bool) { return fmt.Sprint(v), true }, true, nil
		}
		return nil, false, nil
	}))

	// built-in strategy wins: custom strategy never consulted
	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[any]())
	require.NoError(t, err)
	assert.Empty(t, asked)

	toS, err := For[int, string](r)
	require.NoError(t, err)
	s, ok := toS(12)
	require.True(t, ok)
	assert.Equal(t, "12", s)
	assert.Equal(t, []string{"int->string"}, asked)
}

func TestUse_StrategyErrorStopsSearch(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Use(
		StrategyFunc(func(src, dst reflect.Type) (Func, bool, error) { return nil, false, boom }),
		StrategyFunc(func(src, dst reflect.Type) (Func, bool, error) {
			t.Fatal("later strategies must not run")
			return nil, false, nil
		}),
	)
	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[string]())
	assert.ErrorIs(t, err, boom)
}

// ── Caching ───────────────────────────────────────────────────────────────────

func TestMakeConverter_CachedSearchRunsOnce(t *testing.T) {
	r := New()

	f1, err := r.MakeConverter(reflect.TypeFor[Celsius](), reflect.TypeFor[Fahrenheit]())
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Searches())

	f2, err := r.MakeConverter(reflect.TypeFor[Celsius](), reflect.TypeFor[Fahrenheit]())
	require.NoError(t, err)
	assert.EqualValues(t, 1, r.Searches(), "second resolution must not search")

	a, _ := f1(Celsius(37))
	b, _ := f2(Celsius(37))
	assert.Equal(t, a, b)

	require.Len(t, r.Cached(), 1)
	assert.Equal(t, Pair{From: reflect.TypeFor[Celsius](), To: reflect.TypeFor[Fahrenheit]()}, r.Cached()[0])
}

func TestMakeConverter_PairKeyIsOrdered(t *testing.T) {
	r := New()

	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[any]())
	require.NoError(t, err)
	f, err := r.MakeConverter(reflect.TypeFor[any](), reflect.TypeFor[int]())
	require.NoError(t, err)

	assert.EqualValues(t, 2, r.Searches())
	_, ok := f("x")
	assert.False(t, ok, "reverse pair resolves to a downcast, not the cached boxing")
}

func TestMakeConverter_FailuresNotCached(t *testing.T) {
	r := New()

	_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[Celsius]())
	require.Error(t, err)
	_, err = r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[Celsius]())
	require.Error(t, err)
	assert.EqualValues(t, 2, r.Searches())

	r.On(reflect.TypeFor[int]()).Declare(Implicit(func(i int) Celsius { return Celsius(i) }))
	_, err = r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[Celsius]())
	assert.NoError(t, err)
}

func TestDeclare_DuringSearchDropsStaleResult(t *testing.T) {
	r := New()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	r.Use(StrategyFunc(func(src, dst reflect.Type) (Func, bool, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return func(any) (any, bool) { return Fahrenheit(-1), true }, true, nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.MakeConverter(reflect.TypeFor[int](), reflect.TypeFor[Fahrenheit]())
		assert.NoError(t, err)
	}()
	<-entered
	r.On(reflect.TypeFor[int]()).Declare(Implicit(func(i int) Fahrenheit { return Fahrenheit(i) }))
	close(release)
	<-done

	assert.Empty(t, r.Cached())

	toF, err := For[int, Fahrenheit](r)
	require.NoError(t, err)
	f, ok := toF(50)
	require.True(t, ok)
	assert.Equal(t, Fahrenheit(50), f)
	assert.Equal(t, int64(2), r.Searches())
}

func TestMakeConverter_ConcurrentFirstUse(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	out := make([]Fahrenheit, 16)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			toF, err := For[Celsius, Fahrenheit](r)
			if err != nil {
				return
			}
			out[i], _ = toF(0)
		}(i)
	}
	wg.Wait()

	for _, f := range out {
		assert.Equal(t, Fahrenheit(32), f)
	}
	assert.Len(t, r.Cached(), 1)
}

func TestConvert_UsesDynamicType(t *testing.T) {
	r := New()

	out, ok, err := r.Convert(Celsius(-40), reflect.TypeFor[Fahrenheit]())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Fahrenheit(-40), out)

	_, _, err = r.Convert(nil, reflect.TypeFor[Fahrenheit]())
	assert.True(t, regerrors.IsInvalidArgument(err))
}

// ── Properties ────────────────────────────────────────────────────────────────

func TestProperty_BoxThenDowncastRoundTrips(t *testing.T) {
	r := New()
	box, err := For[int, any](r)
	require.NoError(t, err)
	unbox, err := For[any, int](r)
	require.NoError(t, err)
	toString, err := For[any, string](r)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.Int().Draw(rt, "n")

		boxed, ok := box(n)
		if !ok {
			rt.Fatalf("boxing %d failed", n)
		}
		back, ok := unbox(boxed)
		if !ok || back != n {
			rt.Fatalf("round trip: got %v (ok=%v), want %d", back, ok, n)
		}
		if _, ok := toString(boxed); ok {
			rt.Fatalf("int %d downcast to string", n)
		}
	})
}

func TestProperty_ResolutionIsDeterministic(t *testing.T) {
	r := New()
	toF, err := For[Celsius, Fahrenheit](r)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		c := Celsius(rapid.Float64Range(-500, 500).Draw(rt, "c"))

		again, err := For[Celsius, Fahrenheit](r)
		if err != nil {
			rt.Fatal(err)
		}
		a, _ := toF(c)
		b, _ := again(c)
		if a != b {
			rt.Fatalf("converters disagree for %v: %v vs %v", c, a, b)
		}
	})
	assert.EqualValues(t, 1, r.Searches())
}
