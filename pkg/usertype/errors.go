package usertype

import (
	"errors"
	"fmt"
)

// TypeMismatchError is returned when no registered variant matches the
// type of a value.
type TypeMismatchError struct {
	// Value is the name (or address) of the value.
	Value string
	// Type is the name of the type of the value.
	Type string
	// TypeName is the name of the logical type that was expected.
	TypeName string
}

func (err *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s (type %s) is not a %s: no registered layout matched", err.Value, err.Type, err.TypeName)
}

// FieldAccessError is returned when reading a property of an adapter
// fails after its variant was selected, for example because the symbols
// of the target are incomplete or its memory is unreadable.
type FieldAccessError struct {
	TypeName string
	Property string
	Err      error
}

func (err *FieldAccessError) Error() string {
	return fmt.Sprintf("could not read %s of %s: %v", err.Property, err.TypeName, err.Err)
}

func (err *FieldAccessError) Unwrap() error {
	return err.Err
}

// UnknownPropertyError is returned by Adapter.Property for names the
// user type does not define.
type UnknownPropertyError struct {
	UserType string
	Property string
}

func (err *UnknownPropertyError) Error() string {
	return fmt.Sprintf("%s has no property %q", err.UserType, err.Property)
}

// ErrorKind classifies the errors returned by adapters.
type ErrorKind uint8

const (
	NoError ErrorKind = iota
	TypeMismatch
	FieldAccessFailure
	OtherError
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "no error"
	case TypeMismatch:
		return "type mismatch"
	case FieldAccessFailure:
		return "field access failure"
	default:
		return "error"
	}
}

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	var tm *TypeMismatchError
	var fa *FieldAccessError
	switch {
	case err == nil:
		return NoError
	case errors.As(err, &tm):
		return TypeMismatch
	case errors.As(err, &fa):
		return FieldAccessFailure
	default:
		return OtherError
	}
}
