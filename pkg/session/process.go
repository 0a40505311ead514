package session

import (
	"fmt"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/symbols"
	"github.com/go-delve/nativeview/pkg/usertype"
)

// Process is a process attached to a session.
type Process struct {
	id     string
	mem    native.MemoryReader
	syms   *symbols.Table
	bucket *cache.Bucket
	casts  *cache.Map[castKey, usertype.Adapter]
	types  *usertype.Table
}

// castKey identifies a value casted to a user type. The native type is
// part of the key, a reload of the symbols produces new types.
type castKey struct {
	name     string
	addr     uint64
	typ      *native.Type
	userType string
}

func newProcess(id string, mem native.MemoryReader, syms *symbols.Table, b *cache.Bucket) *Process {
	p := &Process{id: id, mem: mem, syms: syms, bucket: b, types: usertype.Default}
	p.casts = cache.NewMap(b, cache.MetadataScope, b.UserCastCachingEnabled, p.cast)
	return p
}

// ID returns the identifier the process was attached with.
func (p *Process) ID() string { return p.id }

// Memory returns the memory of the process.
func (p *Process) Memory() native.MemoryReader { return p.mem }

// Symbols returns the symbol table of the process.
func (p *Process) Symbols() *symbols.Table { return p.syms }

// Cache returns the cache bucket of the process.
func (p *Process) Cache() *cache.Bucket { return p.bucket }

// Variable returns the global variable called name.
func (p *Process) Variable(name string) (*native.Variable, error) {
	g, err := p.syms.Global(name)
	if err != nil {
		return nil, err
	}
	return native.NewVariable(g.Name, g.Addr, g.Type, p.mem, p.syms.PtrSize(), p.bucket), nil
}

// NewVariable returns the value of type typeName at addr.
func (p *Process) NewVariable(addr uint64, typeName string) (*native.Variable, error) {
	typ, err := p.syms.Type(typeName)
	if err != nil {
		return nil, err
	}
	return native.NewVariable("", addr, typ, p.mem, p.syms.PtrSize(), p.bucket), nil
}

// Cast casts the global variable called name to userType.
func (p *Process) Cast(name, userType string) (usertype.Adapter, error) {
	v, err := p.Variable(name)
	if err != nil {
		return nil, err
	}
	return p.CastValue(v, userType)
}

// CastValue casts v to userType. While user cast caching is enabled the
// adapter is reused until the metadata of the process is reloaded.
func (p *Process) CastValue(v *native.Variable, userType string) (usertype.Adapter, error) {
	return p.casts.Get(castKey{name: v.Name, addr: v.Addr, typ: v.RealType, userType: userType})
}

func (p *Process) cast(k castKey) (usertype.Adapter, error) {
	v := native.NewVariable(k.name, k.addr, k.typ, p.mem, p.syms.PtrSize(), p.bucket)
	return p.types.Cast(k.userType, v)
}

// CachedCasts returns the number of cached user type casts.
func (p *Process) CachedCasts() int {
	return p.casts.Len()
}

// WriteMemory writes data at addr. The change is visible to cached values
// after the next state synchronization.
func (p *Process) WriteMemory(addr uint64, data []byte) (int, error) {
	w, ok := p.mem.(native.MemoryReadWriter)
	if !ok {
		return 0, fmt.Errorf("memory of %s is read only", p.id)
	}
	return w.WriteMemory(addr, data)
}

// SyncState invalidates the values cached for the previous state of the
// process.
func (p *Process) SyncState() {
	p.bucket.SyncState()
}

// ReloadMetadata reloads the symbols of the process, then clears the
// caches that depend on them.
func (p *Process) ReloadMetadata() error {
	if err := p.syms.Reload(); err != nil {
		return err
	}
	p.bucket.ClearMetadata()
	return nil
}
