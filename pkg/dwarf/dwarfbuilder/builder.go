// Package dwarfbuilder builds DWARF sections describing C and C++ types
// and global variables. It is used to test the symbol loader without
// compiling native binaries.
package dwarfbuilder

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"fmt"
)

// DW_LANG_C_plus_plus is the language code of C++ compile units.
const DW_LANG_C_plus_plus = 0x04

// Builder writes the debug_info and debug_abbrev sections of a single
// compile unit.
type Builder struct {
	info        bytes.Buffer
	abbrevs     []abbrev
	abbrevCodes map[string]byte
	open        []*openDIE
	ptrSize     int
}

// New creates a new DWARF builder for a target with pointers of ptrSize
// bytes.
func New(ptrSize int) *Builder {
	b := &Builder{ptrSize: ptrSize, abbrevCodes: make(map[string]byte)}

	b.info.Write([]byte{
		0, 0, 0, 0, // unit length, set by Build
		4, 0, // version
		0, 0, 0, 0, // abbrev offset
		byte(ptrSize),
	})

	b.TagOpen(dwarf.TagCompileUnit, "test.cpp")
	b.Attr(dwarf.AttrLanguage, uint8(DW_LANG_C_plus_plus))

	return b
}

// Build closes b and returns the abbrev and info sections.
func (b *Builder) Build() (abbrevs, info []byte, err error) {
	b.TagClose()

	if len(b.open) > 0 {
		return nil, nil, fmt.Errorf("%d DIEs left open", len(b.open))
	}
	info = b.info.Bytes()
	binary.LittleEndian.PutUint32(info, uint32(len(info)-4))
	return b.abbrevTable(), info, nil
}

// Data builds b and parses the result with debug/dwarf.
func (b *Builder) Data() (*dwarf.Data, error) {
	abbrevs, info, err := b.Build()
	if err != nil {
		return nil, err
	}
	return dwarf.New(abbrevs, nil, nil, info, nil, nil, nil, nil)
}
