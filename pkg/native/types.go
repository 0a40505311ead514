package native

import (
	"fmt"
	"strings"
	"sync"
)

// Description is the structural description of a native type, as derived
// from the debug symbols of the target.
//
// Descriptions are used as map keys and should be comparable (normally
// they are pointers). A description whose value cannot be hashed, such as
// a struct with an interface field holding a slice, is still accepted but
// its type matches are never memoized.
type Description interface {
	Name() string
	Size() int64
	// Fields returns the fields of the type by name, fields of anonymous
	// struct and union members are included, unless a member closer to the
	// type has the same name. It returns an empty map for types that have
	// no fields.
	Fields() map[string]Description
}

// HasFieldPath returns true if d has a field named path[0], whose type has
// a field named path[1], and so on.
func HasFieldPath(d Description, path ...string) bool {
	for _, name := range path {
		if d == nil {
			return false
		}
		f, ok := d.Fields()[name]
		if !ok {
			return false
		}
		d = f
	}
	return d != nil
}

// Kind is the kind of a Type.
type Kind uint8

const (
	Invalid Kind = iota
	Struct
	Union
	Array
	Pointer
	Int
	Uint
	Char
	Bool
	Float
)

var kindNames = [...]string{
	Invalid: "invalid",
	Struct:  "struct",
	Union:   "union",
	Array:   "array",
	Pointer: "pointer",
	Int:     "int",
	Uint:    "uint",
	Char:    "char",
	Bool:    "bool",
	Float:   "float",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return Invalid, fmt.Errorf("unknown type kind %q", s)
}

// Field is a member of a struct or union type. Anonymous members have an
// empty Name.
type Field struct {
	Name   string
	Offset int64
	Type   *Type
}

// Type is the default implementation of Description.
//
// A Type must not be modified after its Fields method has been called.
type Type struct {
	TypeName string
	Kind     Kind
	ByteSize int64

	// Members of struct and union types.
	Members []Field
	// Elem is the element type of arrays and the pointed-to type of
	// pointers, it is nil for void pointers.
	Elem *Type
	// Count is the number of elements of an array.
	Count int64

	fieldsOnce sync.Once
	fields     map[string]Description
}

// NewBasic returns a scalar type.
func NewBasic(name string, kind Kind, size int64) *Type {
	return &Type{TypeName: name, Kind: kind, ByteSize: size}
}

// NewStruct returns a struct type with the given members.
func NewStruct(name string, size int64, members ...Field) *Type {
	return &Type{TypeName: name, Kind: Struct, ByteSize: size, Members: members}
}

// NewUnion returns a union type with the given members.
func NewUnion(name string, size int64, members ...Field) *Type {
	return &Type{TypeName: name, Kind: Union, ByteSize: size, Members: members}
}

// NewArray returns an array of count elements of type elem.
func NewArray(elem *Type, count int64) *Type {
	return &Type{
		TypeName: fmt.Sprintf("%s[%d]", elem.TypeName, count),
		Kind:     Array,
		ByteSize: elem.ByteSize * count,
		Elem:     elem,
		Count:    count,
	}
}

// NewPointer returns a pointer to elem, elem can be nil for void pointers.
func NewPointer(elem *Type, ptrSize int64) *Type {
	name := "void*"
	if elem != nil {
		name = elem.TypeName + "*"
	}
	return &Type{TypeName: name, Kind: Pointer, ByteSize: ptrSize, Elem: elem}
}

func (t *Type) Name() string { return t.TypeName }

func (t *Type) Size() int64 { return t.ByteSize }

func (t *Type) Fields() map[string]Description {
	t.fieldsOnce.Do(func() {
		t.fields = make(map[string]Description)
		t.collectFields(t.fields)
	})
	return t.fields
}

const maxAnonymousDepth = 8

// walkFields calls fn with the named members of t and of its anonymous
// members, breadth first, until fn returns false. Offsets are relative to
// the start of t. Fields and StructMember both resolve names through it so
// that a direct member always hides a member of an anonymous one.
func (t *Type) walkFields(fn func(f Field) bool) {
	type pending struct {
		typ  *Type
		base int64
	}
	queue := []pending{{t, 0}}
	for depth := 0; len(queue) > 0 && depth <= maxAnonymousDepth; depth++ {
		var next []pending
		for _, p := range queue {
			for _, f := range p.typ.Members {
				if f.Type == nil {
					continue
				}
				if f.Name == "" {
					next = append(next, pending{f.Type, p.base + f.Offset})
					continue
				}
				f.Offset += p.base
				if !fn(f) {
					return
				}
			}
		}
		queue = next
	}
}

func (t *Type) collectFields(m map[string]Description) {
	t.walkFields(func(f Field) bool {
		if _, dup := m[f.Name]; !dup {
			m[f.Name] = f.Type
		}
		return true
	})
}

// lookupField finds the field called name. The returned offset is relative
// to the start of t.
func (t *Type) lookupField(name string) (r Field, found bool) {
	t.walkFields(func(f Field) bool {
		if f.Name == name {
			r, found = f, true
		}
		return !found
	})
	return r, found
}

// String returns the name of the type.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	if t.TypeName != "" {
		return t.TypeName
	}
	switch t.Kind {
	case Struct, Union:
		names := make([]string, 0, len(t.Members))
		for _, f := range t.Members {
			names = append(names, f.Name)
		}
		return fmt.Sprintf("%s {%s}", t.Kind, strings.Join(names, "; "))
	default:
		return t.Kind.String()
	}
}

func (t *Type) isText() bool {
	return t != nil && (t.Kind == Char || t.Kind == Int || t.Kind == Uint) &&
		(t.ByteSize == 1 || t.ByteSize == 2 || t.ByteSize == 4)
}
