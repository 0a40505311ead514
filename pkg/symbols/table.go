// Package symbols maps names to the types and global variables of a
// target.
//
// Symbols are read from the DWARF sections of an executable or from the
// type tables of a snapshot. A Table can be reloaded, for example after
// the executable was rebuilt, types obtained before the reload stay valid
// but are not updated.
package symbols

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/native"
)

// Global is a global variable.
type Global struct {
	Name string
	Addr uint64
	Type *native.Type
}

// Symbols is the content of a Table.
type Symbols struct {
	PtrSize int
	Types   map[string]*native.Type
	Globals map[string]Global
}

// Loader reads the symbols of a target.
type Loader interface {
	// Name describes where the symbols are read from.
	Name() string
	Load() (*Symbols, error)
}

// UnknownTypeError is returned when looking up a type that does not
// exist.
type UnknownTypeError struct {
	Name string
}

func (err *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", err.Name)
}

// UnknownGlobalError is returned when looking up a global variable that
// does not exist.
type UnknownGlobalError struct {
	Name string
}

func (err *UnknownGlobalError) Error() string {
	return fmt.Sprintf("could not find symbol value for %s", err.Name)
}

// Table is the symbol table of a target.
type Table struct {
	loader Loader

	mu      sync.RWMutex
	syms    *Symbols
	derived map[string]*native.Type
	loads   int
}

// NewTable loads the symbols read by loader.
func NewTable(loader Loader) (*Table, error) {
	t := &Table{loader: loader}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload reads the symbols again. If loading fails the old symbols are
// kept.
func (t *Table) Reload() error {
	syms, err := t.loader.Load()
	if err != nil {
		return fmt.Errorf("could not load symbols from %s: %w", t.loader.Name(), err)
	}
	if syms.PtrSize == 0 {
		syms.PtrSize = 8
	}
	t.mu.Lock()
	t.syms = syms
	t.derived = make(map[string]*native.Type)
	t.loads++
	t.mu.Unlock()
	if logflags.Symbols() {
		logflags.SymbolsLogger().WithField("source", t.loader.Name()).Debugf("loaded %d types and %d globals", len(syms.Types), len(syms.Globals))
	}
	return nil
}

// Name returns the name of the loader of t.
func (t *Table) Name() string {
	return t.loader.Name()
}

// Loads returns how many times the symbols were loaded.
func (t *Table) Loads() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loads
}

// PtrSize returns the size of pointers of the target.
func (t *Table) PtrSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.syms.PtrSize
}

// Type returns the type called name. Pointer and array types of known
// types, such as "char*" and "wchar_t[8]", are created on demand.
func (t *Table) Type(name string) (*native.Type, error) {
	name = strings.TrimSpace(name)
	t.mu.RLock()
	typ, ok := t.syms.Types[name]
	if !ok {
		typ, ok = t.derived[name]
	}
	t.mu.RUnlock()
	if ok {
		return typ, nil
	}

	typ, err := derive(name, t.Type, int64(t.PtrSize()))
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if old, ok := t.derived[name]; ok {
		typ = old
	} else {
		t.derived[name] = typ
	}
	t.mu.Unlock()
	return typ, nil
}

// Global returns the global variable called name.
func (t *Table) Global(name string) (Global, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.syms.Globals[name]
	if !ok {
		return Global{}, &UnknownGlobalError{Name: name}
	}
	return g, nil
}

// Globals returns all global variables sorted by name.
func (t *Table) Globals() []Global {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := make([]Global, 0, len(t.syms.Globals))
	for _, g := range t.syms.Globals {
		r = append(r, g)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r
}

// TypeNames returns the names of all named types, sorted.
func (t *Table) TypeNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := make([]string, 0, len(t.syms.Types))
	for name := range t.syms.Types {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// derive builds the pointer or array type called name, looking up its
// element type with lookup.
func derive(name string, lookup func(string) (*native.Type, error), ptrSize int64) (*native.Type, error) {
	switch {
	case strings.HasSuffix(name, "*"):
		elemName := strings.TrimSpace(name[:len(name)-1])
		if elemName == "void" {
			return native.NewPointer(nil, ptrSize), nil
		}
		elem, err := lookup(elemName)
		if err != nil {
			return nil, err
		}
		return native.NewPointer(elem, ptrSize), nil
	case strings.HasSuffix(name, "]"):
		i := strings.LastIndexByte(name, '[')
		if i < 0 {
			return nil, &UnknownTypeError{Name: name}
		}
		count, err := strconv.ParseInt(name[i+1:len(name)-1], 0, 64)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid array length in %q", name)
		}
		elem, err := lookup(strings.TrimSpace(name[:i]))
		if err != nil {
			return nil, err
		}
		return native.NewArray(elem, count), nil
	default:
		return nil, &UnknownTypeError{Name: name}
	}
}
