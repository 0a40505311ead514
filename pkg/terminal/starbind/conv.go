package starbind

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/usertype"
)

// toStarlark converts a value returned by the session, or by a property of
// a user type, into a starlark.Value. Structs and slices are wrapped, their
// elements are converted when they are read.
func (env *Env) toStarlark(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case error:
		return starlark.String(v.Error())
	case *native.Variable:
		if v == nil {
			return starlark.None
		}
		return env.variableToStarlarkValue(v)
	case usertype.Adapter:
		return adapterAsStarlarkValue{v, env}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return starlark.Bool(rv.Bool())
	case reflect.String:
		return starlark.String(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float())
	case reflect.Slice, reflect.Array:
		return goSlice{rv, env}
	case reflect.Struct:
		return goStruct{rv, env}
	case reflect.Ptr:
		if rv.IsNil() {
			return starlark.None
		}
		if rv.Elem().Kind() == reflect.Struct {
			return goStruct{rv.Elem(), env}
		}
	}
	return starlark.String(fmt.Sprint(v))
}

// goSlice is a read only starlark sequence backed by a Go slice or array.
type goSlice struct {
	v   reflect.Value
	env *Env
}

var (
	_ starlark.Indexable = goSlice{}
	_ starlark.Sequence  = goSlice{}
)

func (s goSlice) Freeze()               {}
func (s goSlice) Hash() (uint32, error) { return 0, errors.New("unhashable: " + s.Type()) }
func (s goSlice) Truth() starlark.Bool  { return s.v.Len() > 0 }
func (s goSlice) Type() string          { return s.v.Type().String() }
func (s goSlice) Len() int              { return s.v.Len() }

func (s goSlice) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < s.v.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Index(i).String())
	}
	b.WriteByte(']')
	return b.String()
}

func (s goSlice) Index(i int) starlark.Value {
	return s.env.toStarlark(s.v.Index(i).Interface())
}

func (s goSlice) Iterate() starlark.Iterator {
	return &goSliceIterator{s: s}
}

type goSliceIterator struct {
	s goSlice
	i int
}

func (it *goSliceIterator) Next(p *starlark.Value) bool {
	if it.i >= it.s.Len() {
		return false
	}
	*p = it.s.Index(it.i)
	it.i++
	return true
}

func (it *goSliceIterator) Done() {}

// goStruct exposes the exported fields of a Go struct as starlark
// attributes.
type goStruct struct {
	v   reflect.Value
	env *Env
}

var _ starlark.HasAttrs = goStruct{}

func (s goStruct) Freeze()               {}
func (s goStruct) Hash() (uint32, error) { return 0, errors.New("unhashable: " + s.Type()) }
func (s goStruct) Truth() starlark.Bool  { return true }
func (s goStruct) Type() string          { return s.v.Type().String() }
func (s goStruct) String() string        { return fmt.Sprintf("%+v", s.v.Interface()) }

func (s goStruct) Attr(name string) (starlark.Value, error) {
	f, ok := s.v.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return nil, nil
	}
	return s.env.toStarlark(s.v.FieldByIndex(f.Index).Interface()), nil
}

func (s goStruct) AttrNames() []string {
	var names []string
	for _, f := range reflect.VisibleFields(s.v.Type()) {
		if f.IsExported() && !f.Anonymous {
			names = append(names, f.Name)
		}
	}
	return names
}

// Attributes of variableAsStarlarkValue that are not members of the
// variable. Members with the same name are reachable through field().
var variableAttrs = []string{"addr", "deref", "field", "kind", "name", "text", "type", "value"}

// variableAsStarlarkValue converts a variable of the target process into
// a starlark.Value. The public methods of variableAsStarlarkValue
// implement the starlark.HasAttrs and starlark.Indexable interfaces.
type variableAsStarlarkValue struct {
	v   *native.Variable
	env *Env
}

var _ starlark.HasAttrs = variableAsStarlarkValue{}
var _ starlark.Indexable = variableAsStarlarkValue{}

func (env *Env) variableToStarlarkValue(v *native.Variable) variableAsStarlarkValue {
	return variableAsStarlarkValue{v, env}
}

func (v variableAsStarlarkValue) Freeze() {
}

func (v variableAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v variableAsStarlarkValue) String() string {
	return v.v.String()
}

func (v variableAsStarlarkValue) Truth() starlark.Bool {
	return true
}

func (v variableAsStarlarkValue) Type() string {
	return fmt.Sprintf("Variable<%s>", v.v.TypeString())
}

func (v variableAsStarlarkValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "addr":
		return starlark.MakeUint64(v.v.Address()), nil
	case "name":
		return starlark.String(v.v.Name), nil
	case "type":
		return starlark.String(v.v.TypeString()), nil
	case "kind":
		return starlark.String(v.v.RealType.Kind.String()), nil
	case "value":
		return v.value()
	case "text":
		return v.text()
	case "deref":
		d, err := v.v.Deref()
		if err != nil {
			return nil, err
		}
		return v.env.variableToStarlarkValue(d), nil
	case "field":
		return starlark.NewBuiltin("field", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fname string
			if err := starlark.UnpackArgs("field", args, kwargs, "name", &fname); err != nil {
				return nil, err
			}
			f, err := v.v.StructMember(fname)
			if err != nil {
				return nil, err
			}
			return v.env.variableToStarlarkValue(f), nil
		}), nil
	}
	switch v.v.RealType.Kind {
	case native.Struct, native.Union:
	default:
		return nil, nil
	}
	f, err := v.v.StructMember(name)
	if err != nil {
		var nferr *native.NoFieldError
		if errors.As(err, &nferr) {
			return nil, nil // no such field or method
		}
		return nil, err
	}
	return v.env.variableToStarlarkValue(f), nil
}

// value returns the variable as a starlark value, integers and booleans
// are converted, character arrays become strings and everything else is
// returned unchanged.
func (v variableAsStarlarkValue) value() (starlark.Value, error) {
	typ := v.v.RealType
	switch typ.Kind {
	case native.Int, native.Char:
		n, err := v.v.Int()
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt64(n), nil
	case native.Uint, native.Pointer:
		n, err := v.v.Int()
		if err != nil {
			return nil, err
		}
		u := uint64(n)
		if typ.ByteSize < 8 {
			u &= 1<<(8*uint(typ.ByteSize)) - 1
		}
		return starlark.MakeUint64(u), nil
	case native.Bool:
		n, err := v.v.Int()
		if err != nil {
			return nil, err
		}
		return starlark.Bool(n != 0), nil
	case native.Array:
		if typ.Elem != nil && typ.Elem.Kind == native.Char {
			return v.text()
		}
	}
	return v, nil
}

func (v variableAsStarlarkValue) text() (starlark.Value, error) {
	if v.v.RealType.Kind != native.Array {
		return nil, &native.NotArrayError{Type: v.v.TypeString()}
	}
	s, err := v.v.ReadText(v.v.RealType.Count)
	if err != nil {
		return nil, err
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return starlark.String(s), nil
}

func (v variableAsStarlarkValue) AttrNames() []string {
	r := append([]string{}, variableAttrs...)
	switch v.v.RealType.Kind {
	case native.Struct, native.Union:
		for name := range v.v.RealType.Fields() {
			r = append(r, name)
		}
	}
	sort.Strings(r)
	return r
}

func (v variableAsStarlarkValue) Index(i int) starlark.Value {
	e, err := v.v.Index(int64(i))
	if err != nil {
		return starlark.String(err.Error())
	}
	return v.env.variableToStarlarkValue(e)
}

func (v variableAsStarlarkValue) Len() int {
	n, err := v.v.ArrayLength()
	if err != nil {
		return 0
	}
	return int(n)
}

// adapterAsStarlarkValue converts the result of a user type cast into a
// starlark.Value. The properties of the user type are its attributes.
type adapterAsStarlarkValue struct {
	a   usertype.Adapter
	env *Env
}

var _ starlark.HasAttrs = adapterAsStarlarkValue{}

func (v adapterAsStarlarkValue) Freeze() {
}

func (v adapterAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v adapterAsStarlarkValue) String() string {
	if s, ok := v.a.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%s %v", v.a.UserType(), v.a.PropertyNames())
}

func (v adapterAsStarlarkValue) Truth() starlark.Bool {
	return true
}

func (v adapterAsStarlarkValue) Type() string {
	return v.a.UserType()
}

func (v adapterAsStarlarkValue) Attr(name string) (starlark.Value, error) {
	r, err := v.a.Property(name)
	if err != nil {
		var perr *usertype.UnknownPropertyError
		if errors.As(err, &perr) {
			return nil, nil
		}
		return nil, err
	}
	return v.env.toStarlark(r), nil
}

func (v adapterAsStarlarkValue) AttrNames() []string {
	return v.a.PropertyNames()
}


// fromStarlark stores val in the Go value dst points to. Lists are stored
// in slices and dicts with string keys in the fields of structs. Errors
// name val after path.
func fromStarlark(val starlark.Value, dst interface{}, path string) error {
	return setFromStarlark(reflect.ValueOf(dst).Elem(), val, path)
}

func setFromStarlark(dst reflect.Value, val starlark.Value, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error setting argument %q to %s: %v", path, val, r)
		}
	}()
	cannot := func(why string) error {
		msg := fmt.Sprintf("error setting argument %q: can not convert %s to %s", path, val, dst.Type())
		if why != "" {
			msg += ": " + why
		}
		return errors.New(msg)
	}

	if val == starlark.None {
		return nil
	}
	for dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	switch val := val.(type) {
	case starlark.Bool:
		dst.SetBool(bool(val))
	case starlark.String:
		dst.SetString(string(val))
	case starlark.Float:
		dst.SetFloat(float64(val))
	case starlark.Int:
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, ok := val.Int64()
			if !ok || dst.OverflowInt(n) {
				return cannot("overflow")
			}
			dst.SetInt(n)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			n, ok := val.Uint64()
			if !ok || dst.OverflowUint(n) {
				return cannot("overflow")
			}
			dst.SetUint(n)
		default:
			return cannot("")
		}
	case *starlark.List:
		if dst.Kind() != reflect.Slice {
			return cannot("")
		}
		s := reflect.MakeSlice(dst.Type(), val.Len(), val.Len())
		for i := 0; i < val.Len(); i++ {
			if err := setFromStarlark(s.Index(i), val.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		dst.Set(s)
	case *starlark.Dict:
		if dst.Kind() != reflect.Struct {
			return cannot("")
		}
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return cannot("non-string key " + item[0].String())
			}
			f := dst.FieldByName(string(key))
			if !f.IsValid() {
				return cannot("unknown field " + string(key))
			}
			if err := setFromStarlark(f, item[1], path+"."+string(key)); err != nil {
				return err
			}
		}
	case goStruct:
		dst.Set(val.v)
	default:
		return cannot("")
	}
	return nil
}
