// Package snapshot reads and writes memory images of a process.
//
// A snapshot is a YAML file listing regions of memory, as hex strings,
// and optionally the types and global variables needed to interpret them
// when no binary with debug symbols is available:
//
//	ptr-size: 8
//	regions:
//	  - addr: 0x1000
//	    data: "68656c6c6f"
//	types:
//	  - {name: char, kind: char, size: 1}
//	  - {name: "char*", kind: pointer, size: 8, elem: char}
//	globals:
//	  - {name: p, addr: 0x2000, type: "char*"}
package snapshot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// File is the on disk representation of a snapshot.
type File struct {
	PtrSize int         `yaml:"ptr-size"`
	Regions []RegionDef `yaml:"regions"`
	Types   []TypeDef   `yaml:"types,omitempty"`
	Globals []GlobalDef `yaml:"globals,omitempty"`
}

// RegionDef is a contiguous block of memory.
type RegionDef struct {
	Addr uint64 `yaml:"addr"`
	// Data is the hex encoded content of the region, spaces and newlines
	// are ignored.
	Data string `yaml:"data"`
}

// TypeDef describes a type. Kind is one of the names accepted by
// native.ParseKind.
type TypeDef struct {
	Name   string     `yaml:"name"`
	Kind   string     `yaml:"kind"`
	Size   int64      `yaml:"size"`
	Elem   string     `yaml:"elem,omitempty"`
	Count  int64      `yaml:"count,omitempty"`
	Fields []FieldDef `yaml:"fields,omitempty"`
}

// FieldDef is a member of a struct or union TypeDef. An empty Name
// describes an anonymous member.
type FieldDef struct {
	Name   string `yaml:"name"`
	Offset int64  `yaml:"offset"`
	Type   string `yaml:"type"`
}

// GlobalDef is a global variable.
type GlobalDef struct {
	Name string `yaml:"name"`
	Addr uint64 `yaml:"addr"`
	Type string `yaml:"type"`
}

type region struct {
	addr uint64
	data []byte
}

func (r *region) end() uint64 { return r.addr + uint64(len(r.data)) }

// ErrNotMapped is returned when reading or writing memory outside of every
// region of the snapshot.
var ErrNotMapped = errors.New("address not mapped")

// Snapshot is a memory image. It implements native.MemoryReadWriter.
type Snapshot struct {
	Path    string
	PtrSize int
	Types   []TypeDef
	Globals []GlobalDef

	mu      sync.RWMutex
	regions []*region
}

// DefaultPtrSize is used for snapshots that do not specify a pointer size.
const DefaultPtrSize = 8

// Load reads the snapshot at path.
func Load(path string) (*Snapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Parse parses a snapshot from its YAML representation.
func Parse(buf []byte) (*Snapshot, error) {
	var f File
	if err := yaml.UnmarshalStrict(buf, &f); err != nil {
		return nil, err
	}
	return New(&f)
}

// New creates a snapshot from f.
func New(f *File) (*Snapshot, error) {
	s := &Snapshot{PtrSize: f.PtrSize, Types: f.Types, Globals: f.Globals}
	switch s.PtrSize {
	case 0:
		s.PtrSize = DefaultPtrSize
	case 4, 8:
	default:
		return nil, fmt.Errorf("invalid pointer size %d", f.PtrSize)
	}
	for i, r := range f.Regions {
		data, err := hex.DecodeString(stripSpace(r.Data))
		if err != nil {
			return nil, fmt.Errorf("region %d at %#x: %w", i, r.Addr, err)
		}
		if err := s.AddRegion(r.Addr, data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// AddRegion maps data at addr. Regions can not overlap.
func (s *Snapshot) AddRegion(addr uint64, data []byte) error {
	if addr+uint64(len(data)) < addr {
		return fmt.Errorf("region at %#x overflows the address space", addr)
	}
	r := &region{addr: addr, data: data}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].addr >= addr })
	if i > 0 && s.regions[i-1].end() > addr {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, s.regions[i-1].addr)
	}
	if i < len(s.regions) && r.end() > s.regions[i].addr {
		return fmt.Errorf("region at %#x overlaps region at %#x", addr, s.regions[i].addr)
	}
	s.regions = append(s.regions, nil)
	copy(s.regions[i+1:], s.regions[i:])
	s.regions[i] = r
	return nil
}

// find returns the region containing addr.
func (s *Snapshot) find(addr uint64) *region {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].end() > addr })
	if i < len(s.regions) && s.regions[i].addr <= addr {
		return s.regions[i]
	}
	return nil
}

// ReadMemory reads len(buf) bytes at addr. Reads can span adjacent
// regions.
func (s *Snapshot) ReadMemory(buf []byte, addr uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for n < len(buf) {
		r := s.find(addr + uint64(n))
		if r == nil {
			return n, fmt.Errorf("%#x: %w", addr+uint64(n), ErrNotMapped)
		}
		n += copy(buf[n:], r.data[addr+uint64(n)-r.addr:])
	}
	return n, nil
}

// WriteMemory writes data at addr. Writes can span adjacent regions but
// never map new memory.
func (s *Snapshot) WriteMemory(addr uint64, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := uint64(0); n < uint64(len(data)); {
		r := s.find(addr + n)
		if r == nil {
			return 0, fmt.Errorf("%#x: %w", addr+n, ErrNotMapped)
		}
		n = r.end() - addr
	}
	n := 0
	for n < len(data) {
		r := s.find(addr + uint64(n))
		n += copy(r.data[addr+uint64(n)-r.addr:], data[n:])
	}
	return n, nil
}

// File returns the on disk representation of the current content of s.
func (s *Snapshot) File() *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := &File{PtrSize: s.PtrSize, Types: s.Types, Globals: s.Globals}
	for _, r := range s.regions {
		f.Regions = append(f.Regions, RegionDef{Addr: r.addr, Data: hex.EncodeToString(r.data)})
	}
	return f
}

// Save writes the current content of s to path.
func (s *Snapshot) Save(path string) error {
	buf, err := yaml.Marshal(s.File())
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
