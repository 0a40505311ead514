package symbols

import (
	"fmt"
	"strings"

	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/snapshot"
)

// builtinTypes are the types available in snapshots without being
// declared. Declared types with the same name take precedence.
func builtinTypes(ptrSize int64) map[string]*native.Type {
	m := make(map[string]*native.Type)
	add := func(name string, kind native.Kind, size int64) {
		m[name] = native.NewBasic(name, kind, size)
	}
	add("char", native.Char, 1)
	add("signed char", native.Char, 1)
	add("unsigned char", native.Uint, 1)
	add("wchar_t", native.Char, 2)
	add("char16_t", native.Char, 2)
	add("char32_t", native.Char, 4)
	add("bool", native.Bool, 1)
	add("short", native.Int, 2)
	add("unsigned short", native.Uint, 2)
	add("int", native.Int, 4)
	add("unsigned int", native.Uint, 4)
	add("long long", native.Int, 8)
	add("unsigned long long", native.Uint, 8)
	add("unsigned __int64", native.Uint, 8)
	add("float", native.Float, 4)
	add("double", native.Float, 8)
	add("size_t", native.Uint, ptrSize)
	return m
}

type snapshotLoader struct {
	snap *snapshot.Snapshot
}

// FromSnapshot returns a loader that reads the types and globals declared
// in snap.
func FromSnapshot(snap *snapshot.Snapshot) Loader {
	return &snapshotLoader{snap: snap}
}

func (l *snapshotLoader) Name() string {
	if l.snap.Path != "" {
		return l.snap.Path
	}
	return "snapshot"
}

func (l *snapshotLoader) Load() (*Symbols, error) {
	ptrSize := int64(l.snap.PtrSize)
	types := builtinTypes(ptrSize)
	declared := make(map[string]bool)

	// Types are created first and completed later so that declarations can
	// refer to each other in any order.
	for _, def := range l.snap.Types {
		if declared[def.Name] {
			return nil, fmt.Errorf("type %q declared twice", def.Name)
		}
		kind, err := native.ParseKind(def.Kind)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", def.Name, err)
		}
		declared[def.Name] = true
		types[def.Name] = &native.Type{TypeName: def.Name, Kind: kind, ByteSize: def.Size}
	}

	var resolve func(name string) (*native.Type, error)
	resolve = func(name string) (*native.Type, error) {
		name = strings.TrimSpace(name)
		if t, ok := types[name]; ok {
			return t, nil
		}
		t, err := derive(name, resolve, ptrSize)
		if err != nil {
			return nil, err
		}
		types[name] = t
		return t, nil
	}

	for _, def := range l.snap.Types {
		typ := types[def.Name]
		switch typ.Kind {
		case native.Struct, native.Union:
			for _, f := range def.Fields {
				ft, err := resolve(f.Type)
				if err != nil {
					return nil, fmt.Errorf("field %s of %s: %w", f.Name, def.Name, err)
				}
				if f.Offset < 0 || f.Offset+ft.ByteSize > typ.ByteSize {
					return nil, fmt.Errorf("field %s of %s does not fit in %d bytes", f.Name, def.Name, typ.ByteSize)
				}
				typ.Members = append(typ.Members, native.Field{Name: f.Name, Offset: f.Offset, Type: ft})
			}
		case native.Pointer:
			if def.Elem != "" && def.Elem != "void" {
				elem, err := resolve(def.Elem)
				if err != nil {
					return nil, fmt.Errorf("type %s: %w", def.Name, err)
				}
				typ.Elem = elem
			}
			if typ.ByteSize == 0 {
				typ.ByteSize = ptrSize
			}
		case native.Array:
			elem, err := resolve(def.Elem)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", def.Name, err)
			}
			if def.Count < 0 {
				return nil, fmt.Errorf("type %s: negative length", def.Name)
			}
			typ.Elem = elem
			typ.Count = def.Count
			if typ.ByteSize == 0 {
				typ.ByteSize = elem.ByteSize * def.Count
			}
		}
	}

	globals := make(map[string]Global, len(l.snap.Globals))
	for _, g := range l.snap.Globals {
		typ, err := resolve(g.Type)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name, err)
		}
		globals[g.Name] = Global{Name: g.Name, Addr: g.Addr, Type: typ}
	}

	return &Symbols{PtrSize: int(ptrSize), Types: types, Globals: globals}, nil
}
