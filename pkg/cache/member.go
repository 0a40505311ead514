package cache

import "sync/atomic"

// Member is a lazily computed value. The first read calls the producer and
// stores its result, later reads return the stored result until the member
// is invalidated.
//
// A failed producer call is never cached. A producer call that overlaps
// with Invalidate may return its result to its caller but will not make it
// visible to later reads.
type Member[T any] struct {
	producer func() (T, error)
	bucket   *Bucket

	// untracked is set when the bucket was already closed.
	untracked bool

	epoch atomic.Uint64
	cur   atomic.Pointer[slot[T]]
}

type slot[T any] struct {
	val   T
	epoch uint64
}

// New returns a member registered in the StateScope of b. If b is nil the
// member is not registered anywhere and is only invalidated explicitly.
func New[T any](b *Bucket, producer func() (T, error)) *Member[T] {
	return NewInScope(b, StateScope, producer)
}

// NewInScope is like New but registers the member in scope. A member of a
// closed bucket calls its producer on every read.
func NewInScope[T any](b *Bucket, scope Scope, producer func() (T, error)) *Member[T] {
	m := &Member[T]{producer: producer, bucket: b}
	if b != nil {
		m.untracked = !registerWeak(b, scope, m, (*Member[T]).Invalidate)
	}
	return m
}

func (m *Member[T]) caching() bool {
	return m.bucket == nil || (!m.untracked && m.bucket.CachingEnabled())
}

// Const returns a member that always holds v.
func Const[T any](v T) *Member[T] {
	m := &Member[T]{producer: func() (T, error) { return v, nil }}
	m.cur.Store(&slot[T]{val: v})
	return m
}

// Value returns the cached value, calling the producer if there is none.
func (m *Member[T]) Value() (T, error) {
	if !m.caching() {
		return m.producer()
	}
	e := m.epoch.Load()
	if s := m.cur.Load(); s != nil && s.epoch == e {
		return s.val, nil
	}
	v, err := m.producer()
	if err != nil {
		var zero T
		return zero, err
	}
	m.cur.Store(&slot[T]{val: v, epoch: e})
	return v, nil
}

// Peek returns the cached value without calling the producer.
func (m *Member[T]) Peek() (T, bool) {
	if s := m.cur.Load(); s != nil && s.epoch == m.epoch.Load() {
		return s.val, true
	}
	var zero T
	return zero, false
}

// Cached reports whether a read would return without calling the producer.
func (m *Member[T]) Cached() bool {
	_, ok := m.Peek()
	return ok && m.caching()
}

// Invalidate discards the cached value, the producer is called again by
// the next read.
func (m *Member[T]) Invalidate() {
	m.epoch.Add(1)
	m.cur.Store(nil)
}
