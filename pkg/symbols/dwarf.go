package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-delve/nativeview/pkg/dwarf/op"
	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/native"
)

// ErrNoDebugInfo is returned for executables without DWARF sections.
var ErrNoDebugInfo = errors.New("could not find debug info")

type dwarfLoader struct {
	path       string
	staticBase uint64
	open       func() (*dwarf.Data, error)
}

// FromExecutable returns a loader that reads the DWARF sections of the
// ELF, Mach-O or PE executable at path. Addresses of global variables are
// relocated by staticBase.
func FromExecutable(path string, staticBase uint64) Loader {
	return &dwarfLoader{path: path, staticBase: staticBase, open: func() (*dwarf.Data, error) { return openDWARF(path) }}
}

// FromDWARF returns a loader that reads d.
func FromDWARF(name string, d *dwarf.Data) Loader {
	return &dwarfLoader{path: name, open: func() (*dwarf.Data, error) { return d, nil }}
}

func (l *dwarfLoader) Name() string { return l.path }

func openDWARF(path string) (*dwarf.Data, error) {
	var d *dwarf.Data
	var err error
	if f, ferr := elf.Open(path); ferr == nil {
		d, err = f.DWARF()
		f.Close()
	} else if f, ferr := macho.Open(path); ferr == nil {
		d, err = f.DWARF()
		f.Close()
	} else if f, ferr := pe.Open(path); ferr == nil {
		d, err = f.DWARF()
		f.Close()
	} else {
		return nil, fmt.Errorf("%s: unrecognized executable format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
	}
	return d, nil
}

// Find returns the path of the executable called name. Relative names are
// searched in the current directory and then in searchPaths.
func Find(name string, searchPaths []string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, dir := range append([]string{"."}, searchPaths...) {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find %s in %s", name, strings.Join(searchPaths, string(filepath.ListSeparator)))
}

func (l *dwarfLoader) Load() (*Symbols, error) {
	d, err := l.open()
	if err != nil {
		return nil, err
	}
	return loadDWARF(d, l.staticBase)
}

// converter translates DWARF types into native types.
type converter struct {
	ptrSize int64
	seen    map[dwarf.Type]*native.Type
}

func loadDWARF(d *dwarf.Data, staticBase uint64) (*Symbols, error) {
	logger := logflags.SymbolsLogger()
	c := &converter{ptrSize: 8, seen: make(map[dwarf.Type]*native.Type)}
	syms := &Symbols{Types: make(map[string]*native.Type), Globals: make(map[string]Global)}

	// scope holds the qualified names of the enclosing compile units and
	// namespaces, "" for compile units.
	var scope []string
	qualify := func(name string) string {
		if len(scope) > 0 && scope[len(scope)-1] != "" {
			return scope[len(scope)-1] + "::" + name
		}
		return name
	}

	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(scope) > 0 {
				scope = scope[:len(scope)-1]
			}
			continue
		}
		name, _ := e.Val(dwarf.AttrName).(string)

		switch e.Tag {
		case dwarf.TagCompileUnit:
			if sz := r.AddressSize(); sz > 0 {
				c.ptrSize = int64(sz)
				syms.PtrSize = sz
			}
			if e.Children {
				scope = append(scope, "")
			}
			continue
		case dwarf.TagNamespace:
			if e.Children {
				if name == "" {
					scope = append(scope, qualify("(anonymous namespace)"))
				} else {
					scope = append(scope, qualify(name))
				}
			}
			continue
		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagTypedef, dwarf.TagBaseType, dwarf.TagEnumerationType:
			if decl, _ := e.Val(dwarf.AttrDeclaration).(bool); name != "" && !decl {
				qname := qualify(name)
				if _, dup := syms.Types[qname]; !dup {
					dt, err := d.Type(e.Offset)
					if err != nil {
						logger.Debugf("could not read type %s: %v", qname, err)
					} else {
						typ := c.convert(dt)
						if e.Tag != dwarf.TagTypedef && e.Tag != dwarf.TagBaseType && typ.TypeName == name {
							typ.TypeName = qname
						}
						syms.Types[qname] = typ
					}
				}
			}
		case dwarf.TagVariable:
			if g, ok := c.global(d, e, qualify(name), staticBase); ok {
				syms.Globals[g.Name] = g
			}
		}
		if e.Children {
			r.SkipChildren()
		}
	}
	if syms.PtrSize == 0 {
		syms.PtrSize = int(c.ptrSize)
	}
	return syms, nil
}

func (c *converter) global(d *dwarf.Data, e *dwarf.Entry, name string, staticBase uint64) (Global, bool) {
	loc, ok := e.Val(dwarf.AttrLocation).([]byte)
	if !ok || strings.HasSuffix(name, "::") || name == "" {
		return Global{}, false
	}
	off, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return Global{}, false
	}
	addr, err := op.StaticAddress(loc, int(c.ptrSize), staticBase)
	if err != nil {
		logflags.SymbolsLogger().Debugf("skipping %s: %v", name, err)
		return Global{}, false
	}
	dt, err := d.Type(off)
	if err != nil {
		logflags.SymbolsLogger().Debugf("skipping %s: %v", name, err)
		return Global{}, false
	}
	return Global{Name: name, Addr: addr, Type: c.convert(dt)}, true
}

// convert returns the native type corresponding to t. Typedefs and
// qualifiers are resolved to the type they refer to.
func (c *converter) convert(t dwarf.Type) *native.Type {
	if t == nil {
		return nil
	}
	if nt, ok := c.seen[t]; ok {
		return nt
	}
	var nt *native.Type
	switch t := t.(type) {
	case *dwarf.TypedefType:
		nt = c.convert(t.Type)
		c.seen[t] = nt
		return nt
	case *dwarf.QualType:
		nt = c.convert(t.Type)
		c.seen[t] = nt
		return nt
	case *dwarf.StructType:
		kind := native.Struct
		if t.Kind == "union" {
			kind = native.Union
		}
		nt = &native.Type{TypeName: t.StructName, Kind: kind, ByteSize: t.ByteSize}
		// registered before the members are converted, members can point
		// back to t.
		c.seen[t] = nt
		for _, f := range t.Field {
			nt.Members = append(nt.Members, native.Field{Name: f.Name, Offset: f.ByteOffset, Type: c.convert(f.Type)})
		}
		return nt
	case *dwarf.PtrType:
		nt = &native.Type{Kind: native.Pointer, ByteSize: t.ByteSize}
		if nt.ByteSize <= 0 {
			nt.ByteSize = c.ptrSize
		}
		c.seen[t] = nt
		if _, void := t.Type.(*dwarf.VoidType); !void {
			nt.Elem = c.convert(t.Type)
		}
		nt.TypeName = native.NewPointer(nt.Elem, nt.ByteSize).TypeName
		return nt
	case *dwarf.ArrayType:
		count := t.Count
		if count < 0 {
			count = 0
		}
		nt = native.NewArray(c.convert(t.Type), count)
		if t.ByteSize > 0 {
			nt.ByteSize = t.ByteSize
		}
	case *dwarf.CharType:
		nt = native.NewBasic(t.Name, native.Char, t.ByteSize)
	case *dwarf.UcharType:
		nt = native.NewBasic(t.Name, native.Char, t.ByteSize)
	case *dwarf.IntType:
		nt = native.NewBasic(t.Name, native.Int, t.ByteSize)
	case *dwarf.UintType:
		nt = native.NewBasic(t.Name, native.Uint, t.ByteSize)
	case *dwarf.BoolType:
		nt = native.NewBasic(t.Name, native.Bool, t.ByteSize)
	case *dwarf.FloatType:
		nt = native.NewBasic(t.Name, native.Float, t.ByteSize)
	case *dwarf.EnumType:
		nt = native.NewBasic(t.EnumName, native.Int, t.ByteSize)
	case *dwarf.AddrType:
		nt = native.NewBasic(t.Name, native.Uint, t.ByteSize)
	default:
		nt = native.NewBasic(t.String(), native.Invalid, t.Size())
	}
	c.seen[t] = nt
	return nt
}
