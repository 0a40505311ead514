package stdtypes

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/usertype"
)

const (
	// BasicStringType is the user type name of BasicString.
	BasicStringType = "std::basic_string"

	basicStringLogical = "growable character buffer"
)

var (
	basicStrings        = usertype.NewRegistry[*BasicString](basicStringLogical)
	basicStringSelector = usertype.NewSelector(basicStrings)
)

func init() {
	basicStrings.RegisterFunc("msvc2013", func(d native.Description) bool {
		return native.HasFieldPath(d, "_Bx", "_Buf") &&
			native.HasFieldPath(d, "_Bx", "_Ptr") &&
			native.HasFieldPath(d, "_Mysize") &&
			native.HasFieldPath(d, "_Myres")
	}, newMSVC2013)

	basicStrings.RegisterFunc("msvc2015", func(d native.Description) bool {
		return native.HasFieldPath(d, "_Mypair", "_Myval2", "_Bx", "_Buf") &&
			native.HasFieldPath(d, "_Mypair", "_Myval2", "_Bx", "_Ptr") &&
			native.HasFieldPath(d, "_Mypair", "_Myval2", "_Mysize") &&
			native.HasFieldPath(d, "_Mypair", "_Myval2", "_Myres")
	}, newMSVC2015)

	basicStrings.RegisterFunc("libstdc++", func(d native.Description) bool {
		return native.HasFieldPath(d, "_M_dataplus", "_M_p") &&
			native.HasFieldPath(d, "_M_string_length") &&
			native.HasFieldPath(d, "_M_local_buf") &&
			native.HasFieldPath(d, "_M_allocated_capacity")
	}, newLibstdcxx)
}

// BasicStringLayouts returns the registry of the known layouts of
// std::basic_string.
func BasicStringLayouts() *usertype.Registry[*BasicString] {
	return basicStrings
}

// BasicStringLayout returns the name of the layout NewBasicString would
// use for v.
func BasicStringLayout(v native.Value) (string, error) {
	return basicStringSelector.SelectedVariant(v)
}

// BasicString is a std::basic_string, std::string or std::wstring value.
type BasicString struct {
	value  native.Value
	layout string

	length   *cache.Member[int64]
	reserved *cache.Member[int64]
	text     *cache.Member[string]
}

// NewBasicString casts v to a BasicString. It returns a
// *usertype.TypeMismatchError if the type of v has none of the known
// layouts.
func NewBasicString(v native.Value) (*BasicString, error) {
	return basicStringSelector.Select(v)
}

// NewWString is like NewBasicString but also checks that the characters
// of v are wider than one byte.
func NewWString(v native.Value) (*BasicString, error) {
	s, err := NewBasicString(v)
	if err != nil {
		return nil, err
	}
	w, err := s.CharSize()
	if err != nil {
		return nil, err
	}
	if w < 2 {
		return nil, &usertype.TypeMismatchError{Value: v.String(), Type: typeName(v), TypeName: "wide " + basicStringLogical}
	}
	return s, nil
}

func typeName(v native.Value) string {
	if d := v.Type(); d != nil {
		return d.Name()
	}
	return "<nil>"
}

func newMSVC2013(v native.Value) (*BasicString, error) {
	return newMSVC(v, "msvc2013", func() (native.Value, error) { return v, nil }), nil
}

func newMSVC2015(v native.Value) (*BasicString, error) {
	myval2 := cache.New(v.Cache(), func() (native.Value, error) {
		pair, err := v.Field("_Mypair")
		if err != nil {
			return nil, err
		}
		return pair.Field("_Myval2")
	})
	return newMSVC(v, "msvc2015", myval2.Value), nil
}

// newMSVC builds the adapter for the Dinkumware layout. The fields are
// read from the value returned by root.
func newMSVC(v native.Value, layout string, root func() (native.Value, error)) *BasicString {
	s := &BasicString{value: v, layout: layout}
	b := v.Cache()
	s.length = cache.New(b, property("length", func() (int64, error) {
		return intAt(root, "_Mysize")
	}))
	s.reserved = cache.New(b, property("reserved", func() (int64, error) {
		return intAt(root, "_Myres")
	}))
	s.text = cache.New(b, property("text", func() (string, error) {
		n, err := s.length.Value()
		if err != nil {
			return "", err
		}
		r, err := root()
		if err != nil {
			return "", err
		}
		bx, err := r.Field("_Bx")
		if err != nil {
			return "", err
		}
		buf, err := bx.Field("_Buf")
		if err != nil {
			return "", err
		}
		inline, err := buf.ArrayLength()
		if err != nil {
			return "", err
		}
		if n < inline {
			return buf.ReadText(n)
		}
		ptr, err := bx.Field("_Ptr")
		if err != nil {
			return "", err
		}
		return ptr.ReadText(n)
	}))
	return s
}

// addressable is implemented by values that live in memory.
type addressable interface {
	Address() uint64
}

func newLibstdcxx(v native.Value) (*BasicString, error) {
	s := &BasicString{value: v, layout: "libstdc++"}
	b := v.Cache()
	root := func() (native.Value, error) { return v, nil }
	s.length = cache.New(b, property("length", func() (int64, error) {
		return intAt(root, "_M_string_length")
	}))
	s.reserved = cache.New(b, property("reserved", func() (int64, error) {
		p, err := intAt(root, "_M_dataplus", "_M_p")
		if err != nil {
			return 0, err
		}
		local, err := v.Field("_M_local_buf")
		if err != nil {
			return 0, err
		}
		// The data pointer points to the local buffer while the string is
		// short, the capacity field is then overlapped by the characters.
		if a, ok := local.(addressable); ok && uint64(p) == a.Address() {
			n, err := local.ArrayLength()
			if err != nil {
				return 0, err
			}
			return n - 1, nil
		}
		return intAt(root, "_M_allocated_capacity")
	}))
	s.text = cache.New(b, property("text", func() (string, error) {
		n, err := s.length.Value()
		if err != nil {
			return "", err
		}
		dp, err := v.Field("_M_dataplus")
		if err != nil {
			return "", err
		}
		p, err := dp.Field("_M_p")
		if err != nil {
			return "", err
		}
		return p.ReadText(n)
	}))
	return s, nil
}

// property wraps the errors returned by producer in a
// *usertype.FieldAccessError.
func property[T any](name string, producer func() (T, error)) func() (T, error) {
	return func() (T, error) {
		r, err := producer()
		if err != nil {
			var fa *usertype.FieldAccessError
			if !errors.As(err, &fa) {
				err = &usertype.FieldAccessError{TypeName: BasicStringType, Property: name, Err: err}
			}
		}
		return r, err
	}
}

// intAt reads the integer at path starting from the value returned by root.
func intAt(root func() (native.Value, error), path ...string) (int64, error) {
	v, err := root()
	if err != nil {
		return 0, err
	}
	v, err = fieldPath(v, path...)
	if err != nil {
		return 0, err
	}
	return v.Int()
}

// Layout returns the name of the layout of s.
func (s *BasicString) Layout() string { return s.layout }

// Value returns the value s was casted from.
func (s *BasicString) Value() native.Value { return s.value }

// Length returns the number of characters in the string.
func (s *BasicString) Length() (int64, error) {
	return s.length.Value()
}

// Reserved returns the number of characters the string can hold without
// reallocating.
func (s *BasicString) Reserved() (int64, error) {
	return s.reserved.Value()
}

// Capacity is the same as Reserved.
func (s *BasicString) Capacity() (int64, error) {
	return s.Reserved()
}

// Text returns the contents of the string.
func (s *BasicString) Text() (string, error) {
	return s.text.Value()
}

// CharSize returns the size in bytes of the characters of the string.
func (s *BasicString) CharSize() (int64, error) {
	var buf native.Value
	var err error
	switch s.layout {
	case "libstdc++":
		buf, err = s.value.Field("_M_local_buf")
	case "msvc2015":
		buf, err = fieldPath(s.value, "_Mypair", "_Myval2", "_Bx", "_Buf")
	default:
		buf, err = fieldPath(s.value, "_Bx", "_Buf")
	}
	if err != nil {
		return 0, &usertype.FieldAccessError{TypeName: BasicStringType, Property: "char size", Err: err}
	}
	n, err := buf.ArrayLength()
	if err != nil || n == 0 {
		if err == nil {
			err = fmt.Errorf("empty inline buffer")
		}
		return 0, &usertype.FieldAccessError{TypeName: BasicStringType, Property: "char size", Err: err}
	}
	return buf.Type().Size() / n, nil
}

func fieldPath(v native.Value, path ...string) (native.Value, error) {
	var err error
	for _, name := range path {
		v, err = v.Field(name)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (s *BasicString) String() string {
	text, err := s.Text()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return strconv.Quote(text)
}

// UserType implements usertype.Adapter.
func (s *BasicString) UserType() string { return BasicStringType }

var basicStringProperties = []string{"length", "reserved", "text"}

// PropertyNames implements usertype.Adapter.
func (s *BasicString) PropertyNames() []string { return basicStringProperties }

// Property implements usertype.Adapter.
func (s *BasicString) Property(name string) (interface{}, error) {
	switch name {
	case "length":
		return s.Length()
	case "reserved", "capacity":
		return s.Reserved()
	case "text":
		return s.Text()
	case "layout":
		return s.layout, nil
	default:
		return nil, &usertype.UnknownPropertyError{UserType: BasicStringType, Property: name}
	}
}
