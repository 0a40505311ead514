package native

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-delve/nativeview/pkg/cache"
)

// Value is a value of a native type materialized against the memory of the
// target. Every method reads the current memory of the target, nothing is
// cached at this level.
type Value interface {
	Type() Description
	// Field returns the named field of a struct or union value.
	Field(name string) (Value, error)
	// ArrayLength returns the number of elements of an array value.
	ArrayLength() (int64, error)
	// Int returns the value of an integer, character, boolean or pointer.
	Int() (int64, error)
	// ReadText decodes count characters, either from a character array or
	// from the memory pointed to by a character pointer.
	ReadText(count int64) (string, error)
	// String renders the value.
	String() string
	// Cache returns the cache registry of the process the value belongs
	// to, it can be nil.
	Cache() *cache.Bucket
}

// MaxTextLen is the maximum number of characters ReadText decodes.
const MaxTextLen = 1 << 20

// NoFieldError is returned by Field when the type of the value has no
// field with the requested name.
type NoFieldError struct {
	Value string
	Type  string
	Field string
}

func (err *NoFieldError) Error() string {
	if err.Value == "" {
		return fmt.Sprintf("type %s has no field %s", err.Type, err.Field)
	}
	return fmt.Sprintf("%s (type %s) has no field %s", err.Value, err.Type, err.Field)
}

// NotArrayError is returned by ArrayLength and ReadText when the value has
// the wrong kind.
type NotArrayError struct {
	Type string
}

func (err *NotArrayError) Error() string {
	return fmt.Sprintf("type %s is not an array", err.Type)
}

// ErrNilPointer is returned when dereferencing a nil pointer.
var ErrNilPointer = errors.New("nil pointer dereference")

// Variable represents a variable. It contains the address, name and type
// of the variable and the memory of the target it should be read from.
type Variable struct {
	Name     string
	Addr     uint64
	RealType *Type

	mem     MemoryReader
	ptrSize int64
	bucket  *cache.Bucket
}

// NewVariable returns a variable of type typ at addr.
func NewVariable(name string, addr uint64, typ *Type, mem MemoryReader, ptrSize int, b *cache.Bucket) *Variable {
	return &Variable{
		Name:     name,
		Addr:     addr,
		RealType: typ,
		mem:      mem,
		ptrSize:  int64(ptrSize),
		bucket:   b,
	}
}

func (v *Variable) newVariable(name string, addr uint64, typ *Type) *Variable {
	return NewVariable(name, addr, typ, v.mem, int(v.ptrSize), v.bucket)
}

func (v *Variable) Type() Description { return v.RealType }

func (v *Variable) Cache() *cache.Bucket { return v.bucket }

// PtrSize returns the size of a pointer on the target.
func (v *Variable) PtrSize() int { return int(v.ptrSize) }

// Address returns the address of the variable.
func (v *Variable) Address() uint64 { return v.Addr }

// Mem returns the memory the variable is read from.
func (v *Variable) Mem() MemoryReader { return v.mem }

// TypeString returns the string representation of the type of this
// variable.
func (v *Variable) TypeString() string {
	return v.RealType.String()
}

func (v *Variable) displayName() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("*(%s*)(%#x)", v.TypeString(), v.Addr)
}

// Field implements Value.
func (v *Variable) Field(name string) (Value, error) {
	f, err := v.StructMember(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// StructMember returns the named member of a struct or union variable.
// Members of anonymous struct and union members are found as well.
func (v *Variable) StructMember(name string) (*Variable, error) {
	switch v.RealType.Kind {
	case Struct, Union:
	default:
		return nil, fmt.Errorf("%s (type %s) is not a struct", v.displayName(), v.TypeString())
	}
	f, ok := v.RealType.lookupField(name)
	if !ok || f.Type == nil {
		return nil, &NoFieldError{Value: v.Name, Type: v.TypeString(), Field: name}
	}
	fname := ""
	if v.Name != "" {
		fname = v.Name + "." + name
	}
	return v.newVariable(fname, uint64(int64(v.Addr)+f.Offset), f.Type), nil
}

// ArrayLength implements Value.
func (v *Variable) ArrayLength() (int64, error) {
	if v.RealType.Kind != Array {
		return 0, &NotArrayError{Type: v.TypeString()}
	}
	return v.RealType.Count, nil
}

// Index returns the i-th element of an array variable.
func (v *Variable) Index(i int64) (*Variable, error) {
	if v.RealType.Kind != Array {
		return nil, &NotArrayError{Type: v.TypeString()}
	}
	if i < 0 || i >= v.RealType.Count {
		return nil, fmt.Errorf("index %d out of bounds [0, %d)", i, v.RealType.Count)
	}
	name := ""
	if v.Name != "" {
		name = fmt.Sprintf("%s[%d]", v.Name, i)
	}
	return v.newVariable(name, v.Addr+uint64(i*v.RealType.Elem.ByteSize), v.RealType.Elem), nil
}

// Int implements Value.
func (v *Variable) Int() (int64, error) {
	switch v.RealType.Kind {
	case Int, Char:
		return readIntRaw(v.mem, v.Addr, v.RealType.ByteSize)
	case Uint, Bool, Pointer:
		n, err := readUintRaw(v.mem, v.Addr, v.RealType.ByteSize)
		return int64(n), err
	default:
		return 0, fmt.Errorf("%s (type %s) is not an integer", v.displayName(), v.TypeString())
	}
}

// Deref returns the variable pointed to by a pointer variable.
func (v *Variable) Deref() (*Variable, error) {
	if v.RealType.Kind != Pointer {
		return nil, fmt.Errorf("%s (type %s) is not a pointer", v.displayName(), v.TypeString())
	}
	if v.RealType.Elem == nil {
		return nil, fmt.Errorf("can not dereference %s (type %s)", v.displayName(), v.TypeString())
	}
	addr, err := readUintRaw(v.mem, v.Addr, v.RealType.ByteSize)
	if err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, ErrNilPointer
	}
	name := ""
	if v.Name != "" {
		name = "*" + v.Name
	}
	return v.newVariable(name, addr, v.RealType.Elem), nil
}

// ReadText implements Value.
func (v *Variable) ReadText(count int64) (string, error) {
	if count < 0 {
		return "", fmt.Errorf("invalid length: %d", count)
	}
	if count > MaxTextLen {
		return "", fmt.Errorf("string of %d characters is too long", count)
	}
	var base uint64
	elem := v.RealType.Elem
	switch v.RealType.Kind {
	case Array:
		base = v.Addr
		if count > v.RealType.Count {
			count = v.RealType.Count
		}
	case Pointer:
		p, err := readUintRaw(v.mem, v.Addr, v.RealType.ByteSize)
		if err != nil {
			return "", err
		}
		if p == 0 && count > 0 {
			return "", ErrNilPointer
		}
		base = p
	default:
		return "", &NotArrayError{Type: v.TypeString()}
	}
	if !elem.isText() {
		return "", fmt.Errorf("%s (type %s) is not a character buffer", v.displayName(), v.TypeString())
	}
	if count == 0 {
		return "", nil
	}
	buf, err := readMemory(v.mem, base, count*elem.ByteSize)
	if err != nil {
		return "", err
	}
	return decodeText(buf, elem.ByteSize), nil
}

func decodeText(buf []byte, charSize int64) string {
	switch charSize {
	case 2:
		u := make([]uint16, len(buf)/2)
		for i := range u {
			u[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		}
		return string(utf16.Decode(u))
	case 4:
		r := make([]rune, len(buf)/4)
		for i := range r {
			r[i] = rune(uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24)
		}
		return string(r)
	default:
		return string(buf)
	}
}

// String implements Value.
func (v *Variable) String() string {
	s, err := v.render()
	if err != nil {
		return fmt.Sprintf("(unreadable %v)", err)
	}
	return s
}

func (v *Variable) render() (string, error) {
	switch v.RealType.Kind {
	case Int, Uint:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		if v.RealType.Kind == Uint {
			return strconv.FormatUint(uint64(n)&sizeMask(v.RealType.ByteSize), 10), nil
		}
		return strconv.FormatInt(n, 10), nil
	case Char:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %s", n, strconv.QuoteRune(rune(n))), nil
	case Bool:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(n != 0), nil
	case Pointer:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s)(%#x)", v.TypeString(), uint64(n)), nil
	case Array:
		if v.RealType.Elem.isText() {
			s, err := v.ReadText(v.RealType.Count)
			if err != nil {
				return "", err
			}
			if i := strings.IndexByte(s, 0); i >= 0 {
				s = s[:i]
			}
			return strconv.Quote(s), nil
		}
		return fmt.Sprintf("%s [%d elements] @ %#x", v.TypeString(), v.RealType.Count, v.Addr), nil
	default:
		return fmt.Sprintf("%s @ %#x", v.TypeString(), v.Addr), nil
	}
}

func sizeMask(size int64) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(size)) - 1
}
