package usertype

import (
	"fmt"
	"reflect"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/native"
)

// Selector builds adapters for values of the logical type described by a
// Registry.
//
// Matching a description against the registry walks its fields once per
// variant, so the index of the selected variant is remembered for each
// description. Descriptions belong to the process they were loaded for,
// the remembered indexes are kept per process cache bucket and are
// forgotten when the bucket's metadata scope is cleared.
type Selector[T any] struct {
	reg *Registry[T]

	mu    sync.Mutex
	memos map[*cache.Bucket]*lru.Cache
	local *lru.Cache
}

type memoEntry struct {
	index int
	gen   uint64
}

// NewSelector returns a selector for the variants of reg.
func NewSelector[T any](reg *Registry[T]) *Selector[T] {
	local, _ := lru.New(cache.DefaultTypeMatchCacheSize)
	return &Selector[T]{
		reg:   reg,
		memos: make(map[*cache.Bucket]*lru.Cache),
		local: local,
	}
}

// Registry returns the registry of s.
func (s *Selector[T]) Registry() *Registry[T] {
	return s.reg
}

// Match returns the index of the first registered variant whose Match
// function accepts d. It does not use the memo.
func (s *Selector[T]) Match(d native.Description) (int, bool) {
	i, _ := s.reg.match(d)
	return i, i >= 0
}

// Lookup is like Match but uses, and fills, the memo of b.
func (s *Selector[T]) Lookup(b *cache.Bucket, d native.Description) (int, bool) {
	if d == nil {
		return -1, false
	}
	if !memoizable(d) {
		return s.Match(d)
	}
	memo := s.memo(b)
	if e, ok := memo.Get(d); ok {
		if e := e.(memoEntry); e.gen == s.reg.generation() {
			return e.index, e.index >= 0
		}
	}
	i, gen := s.reg.match(d)
	memo.Add(d, memoEntry{index: i, gen: gen})
	if logflags.Selector() {
		logger := logflags.SelectorLogger().WithFields(logflags.Fields{"type": d.Name(), "logical": s.reg.typeName})
		if i >= 0 {
			logger.Debugf("matched layout %s", s.reg.Variant(i).Name)
		} else {
			logger.Debug("no layout matched")
		}
	}
	return i, i >= 0
}

// Memoized reports whether the variant selected for d is remembered in
// the memo of b.
func (s *Selector[T]) Memoized(b *cache.Bucket, d native.Description) bool {
	if d == nil || !memoizable(d) {
		return false
	}
	return s.memo(b).Contains(d)
}

// memoizable reports whether d can be hashed as a memo key. Interface
// fields are checked against the value they hold.
func memoizable(d native.Description) bool {
	return reflect.ValueOf(d).Comparable()
}

func (s *Selector[T]) memo(b *cache.Bucket) *lru.Cache {
	if b == nil {
		return s.local
	}
	s.mu.Lock()
	if m, ok := s.memos[b]; ok {
		s.mu.Unlock()
		return m
	}
	m, err := lru.New(b.TypeMatchCacheSize())
	if err != nil {
		m, _ = lru.New(cache.DefaultTypeMatchCacheSize)
	}
	s.memos[b] = m
	s.mu.Unlock()

	b.Register(cache.MetadataScope, cache.InvalidatorFunc(m.Purge))
	b.OnClose(func() {
		s.mu.Lock()
		delete(s.memos, b)
		s.mu.Unlock()
	})
	return m
}

// Select builds the adapter of v using the first variant that matches the
// type of v. A *TypeMismatchError is returned if no variant matches.
func (s *Selector[T]) Select(v native.Value) (T, error) {
	var zero T
	d := v.Type()
	i, ok := s.Lookup(v.Cache(), d)
	if !ok {
		return zero, &TypeMismatchError{Value: valueName(v), Type: typeName(d), TypeName: s.reg.typeName}
	}
	return s.reg.Variant(i).New(v)
}

// SelectedVariant returns the name of the variant that Select would use
// for v.
func (s *Selector[T]) SelectedVariant(v native.Value) (string, error) {
	d := v.Type()
	i, ok := s.Lookup(v.Cache(), d)
	if !ok {
		return "", &TypeMismatchError{Value: valueName(v), Type: typeName(d), TypeName: s.reg.typeName}
	}
	return s.reg.Variant(i).Name, nil
}

func valueName(v native.Value) string {
	if nv, ok := v.(*native.Variable); ok {
		if nv.Name != "" {
			return nv.Name
		}
		return fmt.Sprintf("value at %#x", nv.Addr)
	}
	return v.String()
}

func typeName(d native.Description) string {
	if d == nil {
		return "<nil>"
	}
	return d.Name()
}
