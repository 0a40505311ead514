package symbols_test

import (
	"debug/dwarf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/nativeview/pkg/dwarf/dwarfbuilder"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/snapshot"
	"github.com/go-delve/nativeview/pkg/symbols"
)

const stringSnapshot = `
ptr-size: 8
regions:
  - addr: 0x1000
    data: "68656c6c6f00000000000000000000000500000000000000 0f00000000000000"
types:
  - name: "std::string"
    kind: struct
    size: 32
    fields:
      - {name: _Bx, offset: 0, type: "std::string::_Bxty"}
      - {name: _Mysize, offset: 16, type: "unsigned __int64"}
      - {name: _Myres, offset: 24, type: "unsigned __int64"}
  - name: "std::string::_Bxty"
    kind: union
    size: 16
    fields:
      - {name: _Buf, offset: 0, type: "char[16]"}
      - {name: _Ptr, offset: 0, type: "char*"}
  - {name: "char[16]", kind: array, elem: char, count: 16}
  - {name: "char*", kind: pointer, elem: char}
  - name: node
    kind: struct
    size: 16
    fields:
      - {name: next, offset: 0, type: "node*"}
      - {name: value, offset: 8, type: "long long"}
  - {name: "node*", kind: pointer, elem: node}
globals:
  - {name: s, addr: 0x1000, type: "std::string"}
`

func loadSnapshot(t *testing.T, in string) (*snapshot.Snapshot, *symbols.Table) {
	t.Helper()
	snap, err := snapshot.Parse([]byte(in))
	require.NoError(t, err)
	tab, err := symbols.NewTable(symbols.FromSnapshot(snap))
	require.NoError(t, err)
	return snap, tab
}

func TestSnapshotTypes(t *testing.T) {
	_, tab := loadSnapshot(t, stringSnapshot)

	str, err := tab.Type("std::string")
	require.NoError(t, err)
	assert.Equal(t, native.Struct, str.Kind)
	assert.True(t, native.HasFieldPath(str, "_Bx", "_Buf"))
	assert.True(t, native.HasFieldPath(str, "_Bx", "_Ptr"))

	buf, err := tab.Type("char[16]")
	require.NoError(t, err)
	assert.Equal(t, int64(16), buf.ByteSize)
	ptr, err := tab.Type("char*")
	require.NoError(t, err)
	assert.Equal(t, int64(8), ptr.ByteSize)

	node, err := tab.Type("node")
	require.NoError(t, err)
	assert.Same(t, node, node.Members[0].Type.Elem)

	g, err := tab.Global("s")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), g.Addr)
	assert.Same(t, str, g.Type)

	_, err = tab.Global("missing")
	var uge *symbols.UnknownGlobalError
	assert.True(t, errors.As(err, &uge))
}

func TestDerivedTypes(t *testing.T) {
	_, tab := loadSnapshot(t, stringSnapshot)

	wp, err := tab.Type("wchar_t *")
	require.NoError(t, err)
	assert.Equal(t, native.Pointer, wp.Kind)
	assert.Equal(t, int64(2), wp.Elem.ByteSize)
	again, err := tab.Type("wchar_t *")
	require.NoError(t, err)
	assert.Same(t, wp, again)

	arr, err := tab.Type("int[4]")
	require.NoError(t, err)
	assert.Equal(t, int64(16), arr.ByteSize)

	vp, err := tab.Type("void*")
	require.NoError(t, err)
	assert.Nil(t, vp.Elem)

	_, err = tab.Type("nosuchtype*")
	var ute *symbols.UnknownTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "nosuchtype", ute.Name)
}

func TestSnapshotTypeErrors(t *testing.T) {
	for _, in := range []string{
		"types:\n  - {name: a, kind: struct, size: 4, fields: [{name: x, offset: 0, type: missing}]}\n",
		"types:\n  - {name: a, kind: struct, size: 4, fields: [{name: x, offset: 2, type: int}]}\n",
		"types:\n  - {name: a, kind: bogus, size: 4}\n",
		"types:\n  - {name: a, kind: int, size: 4}\n  - {name: a, kind: int, size: 4}\n",
		"globals:\n  - {name: g, addr: 0x10, type: missing}\n",
	} {
		snap, err := snapshot.Parse([]byte(in))
		require.NoError(t, err)
		_, err = symbols.NewTable(symbols.FromSnapshot(snap))
		assert.Error(t, err, in)
	}
}

// reloadLoader returns different symbols on each load.
type reloadLoader struct {
	n int
}

func (l *reloadLoader) Name() string { return "reload" }

func (l *reloadLoader) Load() (*symbols.Symbols, error) {
	l.n++
	if l.n == 3 {
		return nil, errors.New("broken")
	}
	size := int64(4 * l.n)
	typ := native.NewStruct("T", size, native.Field{Name: "f", Offset: 0, Type: native.NewBasic("int", native.Int, size)})
	return &symbols.Symbols{PtrSize: 8, Types: map[string]*native.Type{"T": typ}}, nil
}

func TestReload(t *testing.T) {
	tab, err := symbols.NewTable(&reloadLoader{})
	require.NoError(t, err)
	t1, err := tab.Type("T")
	require.NoError(t, err)
	p1, err := tab.Type("T*")
	require.NoError(t, err)

	require.NoError(t, tab.Reload())
	t2, err := tab.Type("T")
	require.NoError(t, err)
	assert.NotSame(t, t1, t2)
	assert.Equal(t, int64(8), t2.ByteSize)
	assert.Equal(t, int64(4), t1.ByteSize)
	p2, err := tab.Type("T*")
	require.NoError(t, err)
	assert.Same(t, t2, p2.Elem)
	assert.NotSame(t, p1, p2)
	assert.Equal(t, 2, tab.Loads())

	// a failed reload keeps the old symbols
	assert.Error(t, tab.Reload())
	t3, err := tab.Type("T")
	require.NoError(t, err)
	assert.Same(t, t2, t3)
}

// buildStringDWARF describes a libstdc++ std::string and a global of that
// type at 0x4000.
func buildStringDWARF(t *testing.T) *dwarf.Data {
	b := dwarfbuilder.New(8)
	char := b.AddBaseType("char", dwarfbuilder.DW_ATE_signed_char, 1)
	ulong := b.AddBaseType("unsigned long", dwarfbuilder.DW_ATE_unsigned, 8)
	charp := b.AddPointerType("", char)
	localBuf := b.AddArrayType(char, 16)

	b.AddNamespace("std")
	b.AddNamespace("__cxx11")
	str := b.AddClassType("basic_string<char, std::char_traits<char>, std::allocator<char> >", 32)
	hider := b.AddStructType("_Alloc_hider", 8)
	b.AddMember("_M_p", charp, 0)
	b.TagClose()
	union := b.AddUnionType("", 16)
	b.AddMember("_M_local_buf", localBuf, 0)
	b.AddMember("_M_allocated_capacity", ulong, 0)
	b.TagClose()
	b.AddMember("_M_dataplus", hider, 0)
	b.AddMember("_M_string_length", ulong, 8)
	b.AddMember("", union, 16)
	b.TagClose()
	b.TagClose() // __cxx11
	strTypedef := b.AddTypedef("string", str)
	b.TagClose() // std

	b.AddVariable("greeting", strTypedef, b.AddressBlock(0x4000))

	d, err := b.Data()
	require.NoError(t, err)
	return d
}

func TestDWARF(t *testing.T) {
	tab, err := symbols.NewTable(symbols.FromDWARF("test", buildStringDWARF(t)))
	require.NoError(t, err)
	assert.Equal(t, 8, tab.PtrSize())

	str, err := tab.Type("std::__cxx11::basic_string<char, std::char_traits<char>, std::allocator<char> >")
	require.NoError(t, err)
	assert.Equal(t, native.Struct, str.Kind)
	assert.Equal(t, int64(32), str.ByteSize)
	assert.True(t, native.HasFieldPath(str, "_M_dataplus", "_M_p"))
	assert.True(t, native.HasFieldPath(str, "_M_local_buf"))
	assert.True(t, native.HasFieldPath(str, "_M_allocated_capacity"))

	typedef, err := tab.Type("std::string")
	require.NoError(t, err)
	assert.Same(t, str, typedef)

	g, err := tab.Global("greeting")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4000), g.Addr)
	assert.Same(t, str, g.Type)

	length := str.Members[1]
	assert.Equal(t, "_M_string_length", length.Name)
	assert.Equal(t, int64(8), length.Offset)
	anon := str.Members[2]
	assert.Equal(t, "", anon.Name)
	assert.Equal(t, native.Union, anon.Type.Kind)
	p := str.Members[0].Type.Members[0].Type
	assert.Equal(t, native.Pointer, p.Kind)
	assert.Equal(t, "char*", p.TypeName)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog"), []byte{0}, 0o644))

	p, err := symbols.Find("prog", []string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "prog"), p)

	_, err = symbols.Find("nope", []string{dir})
	assert.Error(t, err)

	_, err = symbols.NewTable(symbols.FromExecutable(filepath.Join(dir, "prog"), 0))
	assert.Error(t, err)
}
