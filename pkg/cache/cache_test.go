package cache_test

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/nativeview/pkg/cache"
)

type counter struct {
	calls int
	val   int
}

func (c *counter) produce() (int, error) {
	c.calls++
	return c.val, nil
}

func TestMemberComputesOnce(t *testing.T) {
	b := cache.NewBucket("test")
	c := &counter{val: 5}
	m := cache.New(b, c.produce)

	require.False(t, m.Cached())
	for i := 0; i < 3; i++ {
		v, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	}
	assert.Equal(t, 1, c.calls)
	assert.True(t, m.Cached())
}

func TestMemberInvalidate(t *testing.T) {
	b := cache.NewBucket("test")
	c := &counter{val: 1}
	m := cache.New(b, c.produce)

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	c.val = 2
	m.Invalidate()
	assert.False(t, m.Cached())

	v, err = m.Value()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, c.calls)
}

func TestMemberErrorNotCached(t *testing.T) {
	b := cache.NewBucket("test")
	fail := true
	calls := 0
	m := cache.New(b, func() (string, error) {
		calls++
		if fail {
			return "", errors.New("could not read memory")
		}
		return "ok", nil
	})

	_, err := m.Value()
	require.Error(t, err)
	assert.False(t, m.Cached())

	fail = false
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestMemberCachingDisabled(t *testing.T) {
	b := cache.NewBucket("test", cache.WithCaching(false))
	c := &counter{val: 3}
	m := cache.New(b, c.produce)

	for i := 0; i < 3; i++ {
		_, err := m.Value()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.calls)
	assert.False(t, m.Cached())

	b.SetCachingEnabled(true)
	_, _ = m.Value()
	_, _ = m.Value()
	assert.Equal(t, 4, c.calls)
}

func TestMemberInvalidateDuringCompute(t *testing.T) {
	var m *cache.Member[int]
	calls := 0
	m = cache.New(nil, func() (int, error) {
		calls++
		if calls == 1 {
			// The value computed by this call was read before the
			// invalidation and must not be returned by later reads.
			m.Invalidate()
			return 1, nil
		}
		return 2, nil
	})

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, m.Cached())

	v, err = m.Value()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMemberConcurrentCachedReads(t *testing.T) {
	var calls atomic.Int32
	m := cache.New(cache.NewBucket("test"), func() (int, error) {
		calls.Add(1)
		return 42, nil
	})
	_, err := m.Value()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := m.Value()
				if err != nil || v != 42 {
					t.Errorf("Value() = %d, %v", v, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestConstMember(t *testing.T) {
	m := cache.Const("abc")
	v, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestBucketScopeSeparation(t *testing.T) {
	b := cache.NewBucket("test")
	state := &counter{}
	metadata := &counter{}
	sm := cache.New(b, state.produce)
	mm := cache.NewInScope(b, cache.MetadataScope, metadata.produce)

	read := func() {
		_, err := sm.Value()
		require.NoError(t, err)
		_, err = mm.Value()
		require.NoError(t, err)
	}

	read()
	b.SyncState()
	read()
	assert.Equal(t, 2, state.calls)
	assert.Equal(t, 1, metadata.calls, "state sync cleared the metadata scope")

	b.ClearMetadata()
	read()
	assert.Equal(t, 3, state.calls)
	assert.Equal(t, 2, metadata.calls)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.StateSyncs)
	assert.Equal(t, uint64(1), stats.MetadataClears)
}

func TestBucketRegister(t *testing.T) {
	b := cache.NewBucket("test")
	n := 0
	unregister := b.Register(cache.MetadataScope, cache.InvalidatorFunc(func() { n++ }))

	b.SyncState()
	assert.Equal(t, 0, n)
	b.ClearMetadata()
	assert.Equal(t, 1, n)

	unregister()
	b.ClearMetadata()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.Len(cache.MetadataScope))
}

func TestBucketRegisterFromInvalidator(t *testing.T) {
	b := cache.NewBucket("test")
	b.Register(cache.StateScope, cache.InvalidatorFunc(func() {
		b.Register(cache.MetadataScope, cache.InvalidatorFunc(func() {}))
	}))
	b.SyncState()
	assert.Equal(t, 1, b.Len(cache.MetadataScope))
}

//go:noinline
func makeDiscardedMember(b *cache.Bucket) {
	m := cache.New(b, func() (int, error) { return 1, nil })
	_, _ = m.Value()
}

func TestBucketDropsCollectedMembers(t *testing.T) {
	b := cache.NewBucket("test")
	makeDiscardedMember(b)
	require.Equal(t, 1, b.Len(cache.StateScope))

	runtime.GC()
	b.SyncState()
	assert.Equal(t, 0, b.Len(cache.StateScope))
}

func TestBucketClose(t *testing.T) {
	b := cache.NewBucket("test")
	c := &counter{}
	m := cache.New(b, c.produce)
	_, _ = m.Value()

	b.Close()
	assert.False(t, m.Cached())
	assert.Equal(t, 0, b.Len(cache.StateScope))

	cache.New(b, c.produce)
	assert.Equal(t, 0, b.Len(cache.StateScope))
	runtime.KeepAlive(m)
}

func TestBucketClosedNotCached(t *testing.T) {
	b := cache.NewBucket("test")
	b.Close()

	c := &counter{}
	m := cache.New(b, c.produce)
	_, _ = m.Value()
	_, _ = m.Value()
	assert.Equal(t, 2, c.calls)
	assert.False(t, m.Cached())

	calls := 0
	mp := cache.NewMap(b, cache.MetadataScope, nil, func(k int) (int, error) {
		calls++
		return k, nil
	})
	_, _ = mp.Get(1)
	_, _ = mp.Get(1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, mp.Len())
}

func TestMap(t *testing.T) {
	b := cache.NewBucket("test")
	calls := map[string]int{}
	c := cache.NewMap(b, cache.MetadataScope, nil, func(k string) (int, error) {
		calls[k]++
		if k == "bad" {
			return 0, errors.New("bad key")
		}
		return len(k), nil
	})

	v, err := c.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	_, _ = c.Get("abc")
	assert.Equal(t, 1, calls["abc"])

	_, err = c.Get("bad")
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())

	b.SyncState()
	assert.Equal(t, 1, c.Len())

	b.ClearMetadata()
	assert.Equal(t, 0, c.Len())
	_, _ = c.Get("abc")
	assert.Equal(t, 2, calls["abc"])
}

func TestMapGate(t *testing.T) {
	b := cache.NewBucket("test")
	enabled := true
	calls := 0
	c := cache.NewMap(b, cache.MetadataScope, func() bool { return enabled }, func(k int) (int, error) {
		calls++
		return k * 2, nil
	})

	b.SetCachingEnabled(false)
	_, _ = c.Get(1)
	_, _ = c.Get(1)
	assert.Equal(t, 1, calls, "member caching switch turned off the map")

	enabled = false
	_, _ = c.Get(2)
	_, _ = c.Get(2)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, c.Len())
}

func TestBucketOnClose(t *testing.T) {
	b := cache.NewBucket("test", cache.WithTypeMatchCacheSize(4))
	assert.Equal(t, 4, b.TypeMatchCacheSize())
	n := 0
	b.OnClose(func() { n++ })
	b.Close()
	b.Close()
	assert.Equal(t, 1, n)
	b.OnClose(func() { n++ })
	assert.Equal(t, 2, n)
}
