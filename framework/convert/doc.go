// Package convert resolves converters between two runtime types.
//
// Given a source and a destination reflect.Type, a Resolver picks the first
// applicable strategy in a fixed order:
//
//  1. Assignable: every source value is usable as the destination (identity,
//     widening, boxing a concrete value into an interface). A destination that
//     is sql.Null of the source type is skipped here on purpose.
//  2. Downcast: the source is an interface; the converter checks the dynamic
//     type and reports ok=false instead of panicking when it does not match.
//  3. Operators: user-defined conversion operators, searched on the source
//     type, then on the destination type, implicit before explicit, with an
//     exact parameter type. Operators that only accept the source through
//     assignability make the resolution fail with ErrUnresolvedConversion.
//  4. Custom strategies registered with Resolver.Use.
//
// The resolved Func is cached per (source, destination) pair.
//
// # Declaring operators
//
//	type Celsius float64
//	type Fahrenheit float64
//
//	func (Celsius) ConversionOperators() []convert.Operator {
//	    return []convert.Operator{
//	        convert.Implicit(func(c Celsius) Fahrenheit { return Fahrenheit(c*9/5 + 32) }),
//	    }
//	}
//
//	toF, _ := convert.For[Celsius, Fahrenheit](r)
//	f, _ := toF(100) // 212
//
// Operators for types you do not own are declared through On:
//
//	r.On(reflect.TypeFor[int]()).Declare(convert.Explicit(func(i int) Celsius { return Celsius(i) }))
package convert
