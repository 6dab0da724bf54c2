// Package errors defines the failure taxonomy shared by the registry,
// constructor and conversion packages.
//
// Every typed error carries the offending type or key and matches one of the
// sentinel errors through errors.Is, so callers can branch on the category
// without caring about the concrete struct:
//
//	if errors.Is(err, regerrors.ErrConflict) {
//	    // already exists, use the existing instance
//	}
package errors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors, one per category.
var (
	// ErrInvalidArgument is returned for nil or otherwise unusable types and keys.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTypeMismatch is returned when a type does not satisfy the managed-instance contract.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrConflict is returned when a second instance is registered for an
	// occupied type, (type, key) or selector key.
	ErrConflict = errors.New("already exists")

	// ErrUnsupportedType is returned when a type lacks the required constructor.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrUnsupportedConversion is returned when no conversion strategy applies.
	ErrUnsupportedConversion = errors.New("unsupported conversion")

	// ErrUnresolvedConversion is returned when only assignable-compatible
	// conversion operators exist and none matches exactly.
	ErrUnresolvedConversion = errors.New("unresolved conversion")
)

// InvalidArgumentError reports an unusable argument to an entry point.
type InvalidArgumentError struct {
	Op     string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// TypeMismatchError reports a type that does not implement the required contract.
type TypeMismatchError struct {
	Type reflect.Type
	Want string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type %s does not satisfy %s", typeName(e.Type), e.Want)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// ConflictError reports an attempt to register a second instance under an
// occupied slot. Scope is one of "type", "keyed" or "selector".
type ConflictError struct {
	Scope string
	Type  reflect.Type
	Key   any
}

func (e *ConflictError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("%s %s already has an instance", e.Scope, typeName(e.Type))
	}
	return fmt.Sprintf("%s %s with key %v already exists", e.Scope, typeName(e.Type), e.Key)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// UnsupportedTypeError reports a missing constructor signature.
type UnsupportedTypeError struct {
	Type   reflect.Type
	Params []reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	names := make([]string, len(e.Params))
	for i, p := range e.Params {
		names[i] = typeName(p)
	}
	return fmt.Sprintf("no constructor for %s with parameters (%s)", typeName(e.Type), strings.Join(names, ", "))
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}

// UnsupportedConversionError reports that no strategy converts From to To.
type UnsupportedConversionError struct {
	From reflect.Type
	To   reflect.Type
}

func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("no conversion from %s to %s", typeName(e.From), typeName(e.To))
}

func (e *UnsupportedConversionError) Is(target error) bool {
	return target == ErrUnsupportedConversion
}

// UnresolvedConversionError reports operators that accept From only through
// assignability. No tie-break is defined, so none of them is picked.
type UnresolvedConversionError struct {
	From       reflect.Type
	To         reflect.Type
	Candidates []reflect.Type
}

func (e *UnresolvedConversionError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = typeName(c)
	}
	return fmt.Sprintf("conversion from %s to %s is ambiguous: %d inexact operator(s) accepting [%s]",
		typeName(e.From), typeName(e.To), len(e.Candidates), strings.Join(names, ", "))
}

func (e *UnresolvedConversionError) Is(target error) bool {
	return target == ErrUnresolvedConversion
}

// NewInvalidArgument creates an InvalidArgumentError.
func NewInvalidArgument(op, reason string) error {
	return &InvalidArgumentError{Op: op, Reason: reason}
}

// NewConflict creates a ConflictError.
func NewConflict(scope string, t reflect.Type, key any) error {
	return &ConflictError{Scope: scope, Type: t, Key: key}
}

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsTypeMismatch reports whether err is a type-mismatch error.
func IsTypeMismatch(err error) bool { return errors.Is(err, ErrTypeMismatch) }

// IsConflict reports whether err is a structural-conflict error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnsupported reports whether err is an unsupported-type or
// unsupported-conversion error.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrUnsupportedConversion)
}

// IsUnresolved reports whether err is an ambiguous-conversion error.
func IsUnresolved(err error) bool { return errors.Is(err, ErrUnresolvedConversion) }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
