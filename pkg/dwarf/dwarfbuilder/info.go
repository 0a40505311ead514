package dwarfbuilder

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"fmt"

	"github.com/go-delve/nativeview/pkg/dwarf/leb128"
	"github.com/go-delve/nativeview/pkg/dwarf/op"
)

// Form is the encoding of an attribute value in debug_info.
type Form uint16

const (
	DW_FORM_data2    Form = 0x05
	DW_FORM_data4    Form = 0x06
	DW_FORM_string   Form = 0x08
	DW_FORM_block4   Form = 0x04
	DW_FORM_data1    Form = 0x0b
	DW_FORM_flag     Form = 0x0c
	DW_FORM_ref_addr Form = 0x10
)

// Encoding is the DW_AT_encoding of a base type.
type Encoding uint16

const (
	DW_ATE_address       Encoding = 0x01
	DW_ATE_boolean       Encoding = 0x02
	DW_ATE_float         Encoding = 0x04
	DW_ATE_signed        Encoding = 0x05
	DW_ATE_signed_char   Encoding = 0x06
	DW_ATE_unsigned      Encoding = 0x07
	DW_ATE_unsigned_char Encoding = 0x08
	DW_ATE_UTF           Encoding = 0x10
)

type attrForm struct {
	attr dwarf.Attr
	form Form
}

// abbrev is the shape shared by DIEs with the same abbreviation code.
type abbrev struct {
	tag      dwarf.Tag
	attrs    []attrForm
	children bool
}

func (a *abbrev) key() string {
	return fmt.Sprint(a.tag, a.children, a.attrs)
}

// openDIE is a DIE whose abbreviation code is written by TagClose.
type openDIE struct {
	abbrev
	off dwarf.Offset
}

func (b *Builder) top(caller string) *openDIE {
	if len(b.open) == 0 {
		panic(caller + " with no open tags")
	}
	return b.open[len(b.open)-1]
}

// TagOpen starts a DIE and returns its offset. Its attributes must be added
// before its children, TagClose ends it.
func (b *Builder) TagOpen(tag dwarf.Tag, name string) dwarf.Offset {
	if len(b.open) > 0 {
		b.top("TagOpen").children = true
	}
	die := &openDIE{abbrev: abbrev{tag: tag}, off: dwarf.Offset(b.info.Len())}
	b.info.WriteByte(0)
	b.open = append(b.open, die)
	if name != "" {
		b.Attr(dwarf.AttrName, name)
	}
	return die.off
}

// TagClose ends the last DIE opened.
func (b *Builder) TagClose() {
	die := b.top("TagClose")
	b.info.Bytes()[die.off] = b.abbrevCode(&die.abbrev)
	if die.children {
		b.info.WriteByte(0)
	}
	b.open = b.open[:len(b.open)-1]
}

// Attr adds an attribute to the open DIE, its form depends on the type of
// val.
func (b *Builder) Attr(attr dwarf.Attr, val interface{}) {
	die := b.top("Attr")
	if die.children {
		panic("Attr after the children of the DIE")
	}

	var form Form
	switch x := val.(type) {
	case string:
		form = DW_FORM_string
		b.info.WriteString(x)
		b.info.WriteByte(0)
	case bool:
		form = DW_FORM_flag
		var flag byte
		if x {
			flag = 1
		}
		b.info.WriteByte(flag)
	case uint8:
		form = DW_FORM_data1
		b.info.WriteByte(x)
	case uint16:
		form = DW_FORM_data2
		b.info.Write(binary.LittleEndian.AppendUint16(nil, x))
	case uint32:
		form = DW_FORM_data4
		b.info.Write(binary.LittleEndian.AppendUint32(nil, x))
	case dwarf.Offset:
		form = DW_FORM_ref_addr
		b.info.Write(binary.LittleEndian.AppendUint32(nil, uint32(x)))
	case []byte:
		form = DW_FORM_block4
		b.info.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(x))))
		b.info.Write(x)
	default:
		panic(fmt.Sprintf("unsupported attribute value %T", val))
	}
	die.attrs = append(die.attrs, attrForm{attr, form})
}

// abbrevCode returns the code of the abbreviation matching a, adding one
// when it is new.
func (b *Builder) abbrevCode(a *abbrev) byte {
	k := a.key()
	if code, ok := b.abbrevCodes[k]; ok {
		return code
	}
	b.abbrevs = append(b.abbrevs, *a)
	code := byte(len(b.abbrevs))
	b.abbrevCodes[k] = code
	return code
}

func (b *Builder) abbrevTable() []byte {
	var buf bytes.Buffer
	for i, a := range b.abbrevs {
		leb128.EncodeUnsigned(&buf, uint64(i+1))
		leb128.EncodeUnsigned(&buf, uint64(a.tag))
		if a.children {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		for _, af := range a.attrs {
			leb128.EncodeUnsigned(&buf, uint64(af.attr))
			leb128.EncodeUnsigned(&buf, uint64(af.form))
		}
		buf.Write([]byte{0, 0})
	}
	return buf.Bytes()
}

// memberLocation is the DW_AT_data_member_location of a member at offset.
func memberLocation(offset uint) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(op.DW_OP_plus_uconst))
	leb128.EncodeUnsigned(&buf, uint64(offset))
	return buf.Bytes()
}

// AddressBlock returns a DW_OP_addr expression for addr.
func (b *Builder) AddressBlock(addr uint64) []byte {
	buf := []byte{byte(op.DW_OP_addr)}
	if b.ptrSize == 4 {
		return binary.LittleEndian.AppendUint32(buf, uint32(addr))
	}
	return binary.LittleEndian.AppendUint64(buf, addr)
}

// AddNamespace opens a namespace, call TagClose after adding its members.
func (b *Builder) AddNamespace(name string) dwarf.Offset {
	r := b.TagOpen(dwarf.TagNamespace, name)
	b.top("AddNamespace").children = true
	return r
}

// AddVariable adds a global variable of type typ stored at the location
// described by the expression loc.
func (b *Builder) AddVariable(varname string, typ dwarf.Offset, loc []byte) dwarf.Offset {
	r := b.TagOpen(dwarf.TagVariable, varname)
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrLocation, loc)
	b.TagClose()
	return r
}

// AddBaseType adds a base type of byteSz bytes.
func (b *Builder) AddBaseType(typename string, encoding Encoding, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagBaseType, typename)
	b.Attr(dwarf.AttrEncoding, uint16(encoding))
	b.Attr(dwarf.AttrByteSize, byteSz)
	b.TagClose()
	return r
}

// AddStructType opens a structure type, call TagClose after adding its
// members.
func (b *Builder) AddStructType(typename string, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagStructType, typename)
	b.Attr(dwarf.AttrByteSize, byteSz)
	return r
}

// AddClassType is like AddStructType but writes a DW_TAG_class_type.
func (b *Builder) AddClassType(typename string, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagClassType, typename)
	b.Attr(dwarf.AttrByteSize, byteSz)
	return r
}

// AddUnionType is like AddStructType but writes a DW_TAG_union_type.
func (b *Builder) AddUnionType(typename string, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagUnionType, typename)
	b.Attr(dwarf.AttrByteSize, byteSz)
	return r
}

// AddMember adds a member of type typ at offset to the open aggregate.
func (b *Builder) AddMember(fieldname string, typ dwarf.Offset, offset uint) dwarf.Offset {
	r := b.TagOpen(dwarf.TagMember, fieldname)
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrDataMemberLoc, memberLocation(offset))
	b.TagClose()
	return r
}

// AddPointerType adds a pointer to typ, anonymous when typename is empty.
func (b *Builder) AddPointerType(typename string, typ dwarf.Offset) dwarf.Offset {
	r := b.TagOpen(dwarf.TagPointerType, typename)
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrByteSize, uint8(b.ptrSize))
	b.TagClose()
	return r
}

// AddArrayType adds an array of count elements of type elem.
func (b *Builder) AddArrayType(elem dwarf.Offset, count uint32) dwarf.Offset {
	r := b.TagOpen(dwarf.TagArrayType, "")
	b.Attr(dwarf.AttrType, elem)
	b.TagOpen(dwarf.TagSubrangeType, "")
	b.Attr(dwarf.AttrCount, count)
	b.TagClose()
	b.TagClose()
	return r
}

// AddTypedef adds a typedef of typ called name.
func (b *Builder) AddTypedef(name string, typ dwarf.Offset) dwarf.Offset {
	r := b.TagOpen(dwarf.TagTypedef, name)
	b.Attr(dwarf.AttrType, typ)
	b.TagClose()
	return r
}
