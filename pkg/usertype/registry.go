package usertype

import (
	"sync"

	"github.com/go-delve/nativeview/pkg/native"
)

// Variant describes one known layout of a logical type.
type Variant[T any] struct {
	// Name identifies the layout in logs and in the output of whatis.
	Name string
	// Match reports whether a type description has this layout. Match
	// must only depend on the description.
	Match func(native.Description) bool
	// New builds the adapter of a value whose type matched.
	New func(native.Value) (T, error)
}

// Registry is the ordered list of the known layouts of a logical type.
type Registry[T any] struct {
	typeName string

	mu       sync.RWMutex
	variants []Variant[T]
	gen      uint64
}

// NewRegistry returns an empty registry for the logical type typeName.
func NewRegistry[T any](typeName string) *Registry[T] {
	return &Registry[T]{typeName: typeName}
}

// TypeName returns the name of the logical type.
func (r *Registry[T]) TypeName() string {
	return r.typeName
}

// Register appends v to the registry and returns its index. Variants
// registered first take precedence.
func (r *Registry[T]) Register(v Variant[T]) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants = append(r.variants, v)
	r.gen++
	return len(r.variants) - 1
}

// RegisterFunc is a shorthand for Register.
func (r *Registry[T]) RegisterFunc(name string, match func(native.Description) bool, new func(native.Value) (T, error)) int {
	return r.Register(Variant[T]{Name: name, Match: match, New: new})
}

// Len returns the number of registered variants.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.variants)
}

// Variant returns the i-th registered variant.
func (r *Registry[T]) Variant(i int) Variant[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variants[i]
}

// match returns the index of the first variant matching d, or -1, and the
// generation of the registry it was computed for.
func (r *Registry[T]) match(d native.Description) (int, uint64) {
	r.mu.RLock()
	variants, gen := r.variants, r.gen
	r.mu.RUnlock()
	for i := range variants {
		if variants[i].Match(d) {
			return i, gen
		}
	}
	return -1, gen
}

func (r *Registry[T]) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}
