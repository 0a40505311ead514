package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/go-delve/nativeview/pkg/logflags"
)

// Scope identifies a set of cached values that are invalidated together.
type Scope uint8

const (
	// StateScope contains values derived from the memory of the target.
	StateScope Scope = iota
	// MetadataScope contains values derived from the type information of
	// the target, such as the layout selected for a type description.
	MetadataScope

	numScopes
)

func (s Scope) String() string {
	switch s {
	case StateScope:
		return "state"
	case MetadataScope:
		return "metadata"
	default:
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
}

// Invalidator is implemented by anything that can be registered with a
// Bucket.
type Invalidator interface {
	Invalidate()
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func()

func (f InvalidatorFunc) Invalidate() { f() }

type entry struct {
	inv Invalidator
	// invalidate is set for weakly referenced entries, it returns false
	// once the referenced object has been collected.
	invalidate func() bool
}

// Stats reports how many times each scope of a bucket was cleared.
type Stats struct {
	StateSyncs     uint64
	MetadataClears uint64
	Registered     [numScopes]int
}

// Bucket is the cache registry of one attached process.
type Bucket struct {
	name string

	mu      sync.Mutex
	nextID  uint64
	entries [numScopes]map[uint64]*entry
	closed  bool

	closeHooks []func()

	caching         atomic.Bool
	userCastCaching atomic.Bool
	matchCacheSize  int

	stateSyncs     atomic.Uint64
	metadataClears atomic.Uint64
}

// BucketOption configures a Bucket created by NewBucket.
type BucketOption func(*Bucket)

// WithCaching sets the initial value of CachingEnabled.
func WithCaching(enabled bool) BucketOption {
	return func(b *Bucket) { b.caching.Store(enabled) }
}

// WithUserCastCaching sets the initial value of UserCastCachingEnabled.
func WithUserCastCaching(enabled bool) BucketOption {
	return func(b *Bucket) { b.userCastCaching.Store(enabled) }
}

// WithTypeMatchCacheSize sets the value returned by TypeMatchCacheSize.
func WithTypeMatchCacheSize(n int) BucketOption {
	return func(b *Bucket) { b.matchCacheSize = n }
}

// DefaultTypeMatchCacheSize is the TypeMatchCacheSize of buckets created
// without WithTypeMatchCacheSize.
const DefaultTypeMatchCacheSize = 256

// NewBucket returns an empty registry, name is only used for logging.
func NewBucket(name string, opts ...BucketOption) *Bucket {
	b := &Bucket{name: name, matchCacheSize: DefaultTypeMatchCacheSize}
	for i := range b.entries {
		b.entries[i] = make(map[uint64]*entry)
	}
	b.caching.Store(true)
	b.userCastCaching.Store(true)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the name the bucket was created with.
func (b *Bucket) Name() string {
	return b.name
}

// CachingEnabled reports whether members of this bucket keep their value
// between reads.
func (b *Bucket) CachingEnabled() bool {
	return b.caching.Load()
}

// SetCachingEnabled changes CachingEnabled. While caching is disabled every
// read of a member calls its producer.
func (b *Bucket) SetCachingEnabled(enabled bool) {
	b.caching.Store(enabled)
}

// UserCastCachingEnabled reports whether variables casted to user types
// are remembered until the next metadata reload.
func (b *Bucket) UserCastCachingEnabled() bool {
	return b.userCastCaching.Load()
}

// SetUserCastCachingEnabled changes UserCastCachingEnabled.
func (b *Bucket) SetUserCastCachingEnabled(enabled bool) {
	b.userCastCaching.Store(enabled)
}

// TypeMatchCacheSize is the number of type descriptions for which type
// selectors remember the matching layout in this bucket.
func (b *Bucket) TypeMatchCacheSize() int {
	return b.matchCacheSize
}

// OnClose registers f to be called when the bucket is closed. If the bucket
// is already closed f is called immediately.
func (b *Bucket) OnClose(f func()) {
	b.mu.Lock()
	if !b.closed {
		b.closeHooks = append(b.closeHooks, f)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	f()
}

// Register adds inv to scope. The bucket keeps a reference to inv until the
// returned function is called or the bucket is closed. Registering in a
// closed bucket does nothing.
func (b *Bucket) Register(scope Scope, inv Invalidator) (unregister func()) {
	unregister, _ = b.add(scope, &entry{inv: inv})
	return unregister
}

// add reports false if b is closed and e was not added.
func (b *Bucket) add(scope Scope, e *entry) (func(), bool) {
	if scope >= numScopes {
		panic(fmt.Sprintf("cache: invalid scope %d", scope))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}, false
	}
	id := b.nextID
	b.nextID++
	b.entries[scope][id] = e
	return func() {
		b.mu.Lock()
		delete(b.entries[scope], id)
		b.mu.Unlock()
	}, true
}

// registerWeak adds m to scope without keeping it alive: once m is
// collected its entry is dropped by the next clear of scope. It returns
// false if b is closed, nothing would ever invalidate m.
func registerWeak[T any](b *Bucket, scope Scope, m *T, invalidate func(*T)) bool {
	wp := weak.Make(m)
	_, ok := b.add(scope, &entry{invalidate: func() bool {
		p := wp.Value()
		if p == nil {
			return false
		}
		invalidate(p)
		return true
	}})
	return ok
}

// SyncState invalidates every value in StateScope. It must be called after
// any action that may have changed the memory of the target, before the
// next read.
func (b *Bucket) SyncState() {
	b.stateSyncs.Add(1)
	n := b.clear(StateScope)
	if logflags.Cache() {
		logflags.CacheLogger().WithField("bucket", b.name).Debugf("state sync invalidated %d entries", n)
	}
}

// ClearMetadata invalidates every value in StateScope and MetadataScope.
func (b *Bucket) ClearMetadata() {
	b.metadataClears.Add(1)
	n := b.clear(StateScope)
	n += b.clear(MetadataScope)
	if logflags.Cache() {
		logflags.CacheLogger().WithField("bucket", b.name).Debugf("metadata reload invalidated %d entries", n)
	}
}

func (b *Bucket) clear(scope Scope) int {
	type idEntry struct {
		id uint64
		e  *entry
	}
	b.mu.Lock()
	entries := make([]idEntry, 0, len(b.entries[scope]))
	for id, e := range b.entries[scope] {
		entries = append(entries, idEntry{id, e})
	}
	b.mu.Unlock()

	// Invalidators run without holding mu so that they can register new
	// values.
	var dead []uint64
	for _, ie := range entries {
		if ie.e.invalidate != nil {
			if !ie.e.invalidate() {
				dead = append(dead, ie.id)
			}
			continue
		}
		ie.e.inv.Invalidate()
	}

	if len(dead) > 0 {
		b.mu.Lock()
		for _, id := range dead {
			delete(b.entries[scope], id)
		}
		b.mu.Unlock()
	}
	return len(entries) - len(dead)
}

// Close invalidates every registered value and drops all entries. Members
// and maps created afterwards are not tracked and never keep a value.
func (b *Bucket) Close() {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	b.ClearMetadata()
	b.mu.Lock()
	for i := range b.entries {
		b.entries[i] = make(map[uint64]*entry)
	}
	b.closed = true
	hooks := b.closeHooks
	b.closeHooks = nil
	b.mu.Unlock()
	for _, f := range hooks {
		f()
	}
}

// Len returns the number of entries registered in scope. Entries of
// collected members are counted until the scope is next cleared.
func (b *Bucket) Len(scope Scope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries[scope])
}

// Stats returns the invalidation counters of the bucket.
func (b *Bucket) Stats() Stats {
	s := Stats{
		StateSyncs:     b.stateSyncs.Load(),
		MetadataClears: b.metadataClears.Load(),
	}
	b.mu.Lock()
	for i := range b.entries {
		s.Registered[i] = len(b.entries[i])
	}
	b.mu.Unlock()
	return s
}
