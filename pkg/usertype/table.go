package usertype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-delve/nativeview/pkg/native"
)

// Adapter is the common interface of the objects built for values casted
// to a user type.
type Adapter interface {
	// UserType returns the name of the user type of the adapter.
	UserType() string
	// PropertyNames returns the names of the computed properties of the
	// adapter, in display order.
	PropertyNames() []string
	// Property returns the value of the named property.
	Property(name string) (interface{}, error)
}

// CastFunc builds the adapter of a value for a user type.
type CastFunc func(native.Value) (Adapter, error)

// Table maps user type names to the functions that cast values to them.
type Table struct {
	mu    sync.RWMutex
	casts map[string]CastFunc
}

// Default is the table used by the session and the terminal.
var Default = &Table{}

// Register associates name with cast, replacing any previous association.
func (t *Table) Register(name string, cast CastFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.casts == nil {
		t.casts = make(map[string]CastFunc)
	}
	t.casts[name] = cast
}

// Lookup returns the cast function registered for name.
func (t *Table) Lookup(name string) (CastFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cast, ok := t.casts[name]
	return cast, ok
}

// Cast casts v to the user type called name.
func (t *Table) Cast(name string, v native.Value) (Adapter, error) {
	cast, ok := t.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown user type %q", name)
	}
	return cast(v)
}

// Names returns the sorted names of all registered user types.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.casts))
	for name := range t.casts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
