package usertype_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/usertype"
)

type nullMem struct{}

func (nullMem) ReadMemory(buf []byte, addr uint64) (int, error) {
	return 0, fmt.Errorf("no memory at %#x", addr)
}

var u64 = native.NewBasic("unsigned long", native.Uint, 8)

// countingDescription counts how many times its fields are inspected.
type countingDescription struct {
	*native.Type
	calls *int
}

func (d countingDescription) Fields() map[string]native.Description {
	*d.calls++
	return d.Type.Fields()
}

type layout string

func newRegistry() *usertype.Registry[layout] {
	reg := usertype.NewRegistry[layout]("pair")
	reg.RegisterFunc("ab",
		func(d native.Description) bool { return native.HasFieldPath(d, "a") && native.HasFieldPath(d, "b") },
		func(v native.Value) (layout, error) { return "ab", nil })
	reg.RegisterFunc("a",
		func(d native.Description) bool { return native.HasFieldPath(d, "a") },
		func(v native.Value) (layout, error) { return "a", nil })
	return reg
}

func TestSelectFirstMatchWins(t *testing.T) {
	sel := usertype.NewSelector(newRegistry())

	both := native.NewStruct("both", 16,
		native.Field{Name: "a", Offset: 0, Type: u64},
		native.Field{Name: "b", Offset: 8, Type: u64})
	onlyA := native.NewStruct("onlyA", 8, native.Field{Name: "a", Offset: 0, Type: u64})

	for i := 0; i < 3; i++ {
		idx, ok := sel.Match(both)
		require.True(t, ok)
		assert.Equal(t, 0, idx, "both variants match, the first registered must win")
	}

	got, err := sel.Select(native.NewVariable("x", 0x10, both, nullMem{}, 8, nil))
	require.NoError(t, err)
	assert.Equal(t, layout("ab"), got)

	got, err = sel.Select(native.NewVariable("y", 0x10, onlyA, nullMem{}, 8, nil))
	require.NoError(t, err)
	assert.Equal(t, layout("a"), got)
}

func TestSelectTypeMismatch(t *testing.T) {
	sel := usertype.NewSelector(newRegistry())
	other := native.NewStruct("other", 8, native.Field{Name: "c", Offset: 0, Type: u64})

	_, err := sel.Select(native.NewVariable("z", 0x10, other, nullMem{}, 8, nil))
	var tm *usertype.TypeMismatchError
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "pair", tm.TypeName)
	assert.Equal(t, "z", tm.Value)
	assert.Equal(t, usertype.TypeMismatch, usertype.Classify(err))
	assert.Contains(t, err.Error(), "is not a pair")
}

func TestSelectMemo(t *testing.T) {
	sel := usertype.NewSelector(newRegistry())
	b := cache.NewBucket("test")
	calls := 0
	d := countingDescription{
		Type:  native.NewStruct("onlyA", 8, native.Field{Name: "a", Offset: 0, Type: u64}),
		calls: &calls,
	}

	_, ok := sel.Lookup(b, d)
	require.True(t, ok)
	first := calls
	require.NotZero(t, first)
	assert.True(t, sel.Memoized(b, d))

	for i := 0; i < 5; i++ {
		idx, ok := sel.Lookup(b, d)
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	}
	assert.Equal(t, first, calls, "memoized lookups inspected the description again")

	b.SyncState()
	assert.True(t, sel.Memoized(b, d), "state sync cleared the type match memo")
	_, _ = sel.Lookup(b, d)
	assert.Equal(t, first, calls)

	b.ClearMetadata()
	assert.False(t, sel.Memoized(b, d))
	_, _ = sel.Lookup(b, d)
	assert.Equal(t, 2*first, calls)
}

// taggedDescription is comparable by type but not by value when tag
// holds a slice.
type taggedDescription struct {
	*native.Type
	tag interface{}
}

func TestSelectUnhashableDescription(t *testing.T) {
	sel := usertype.NewSelector(newRegistry())
	b := cache.NewBucket("test")
	d := taggedDescription{
		Type: native.NewStruct("onlyA", 8, native.Field{Name: "a", Offset: 0, Type: u64}),
		tag:  []int{1},
	}

	for i := 0; i < 2; i++ {
		idx, ok := sel.Lookup(b, d)
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	}
	assert.False(t, sel.Memoized(b, d))

	idx, ok := sel.Lookup(nil, d)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	d.tag = "hashable"
	_, ok = sel.Lookup(b, d)
	require.True(t, ok)
	assert.True(t, sel.Memoized(b, d))
}

func TestSelectMemoPerBucket(t *testing.T) {
	sel := usertype.NewSelector(newRegistry())
	b1 := cache.NewBucket("p1")
	b2 := cache.NewBucket("p2")
	d := native.NewStruct("onlyA", 8, native.Field{Name: "a", Offset: 0, Type: u64})

	_, _ = sel.Lookup(b1, d)
	assert.True(t, sel.Memoized(b1, d))
	assert.False(t, sel.Memoized(b2, d))

	b1.ClearMetadata()
	_, _ = sel.Lookup(b2, d)
	assert.False(t, sel.Memoized(b1, d))
	assert.True(t, sel.Memoized(b2, d))
}

func TestSelectMemoRegistryChange(t *testing.T) {
	reg := usertype.NewRegistry[layout]("pair")
	sel := usertype.NewSelector(reg)
	d := native.NewStruct("onlyC", 8, native.Field{Name: "c", Offset: 0, Type: u64})

	_, ok := sel.Lookup(nil, d)
	require.False(t, ok)

	reg.RegisterFunc("c",
		func(d native.Description) bool { return native.HasFieldPath(d, "c") },
		func(v native.Value) (layout, error) { return "c", nil })
	idx, ok := sel.Lookup(nil, d)
	require.True(t, ok, "a memoized mismatch survived a registration")
	assert.Equal(t, 0, idx)
}

func TestClassify(t *testing.T) {
	fa := &usertype.FieldAccessError{TypeName: "pair", Property: "a", Err: errors.New("boom")}
	assert.Equal(t, usertype.FieldAccessFailure, usertype.Classify(fmt.Errorf("wrapped: %w", fa)))
	assert.Equal(t, usertype.NoError, usertype.Classify(nil))
	assert.Equal(t, usertype.OtherError, usertype.Classify(errors.New("other")))
	assert.Equal(t, "could not read a of pair: boom", fa.Error())
}

func TestTable(t *testing.T) {
	var tab usertype.Table
	_, err := tab.Cast("missing", nil)
	require.Error(t, err)

	tab.Register("b", func(native.Value) (usertype.Adapter, error) { return nil, nil })
	tab.Register("a", func(native.Value) (usertype.Adapter, error) { return nil, nil })
	assert.Equal(t, []string{"a", "b"}, tab.Names())
	_, ok := tab.Lookup("a")
	assert.True(t, ok)
}
