// Package op evaluates the DWARF location expressions of global variables.
//
// Only expressions that can be evaluated without a running process are
// supported: expressions that refer to registers, the frame base or thread
// local storage fail with ErrNotStatic.
package op

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-delve/nativeview/pkg/dwarf/leb128"
)

// Opcode represent a DWARF stack program instruction.
type Opcode byte

const (
	DW_OP_addr                 Opcode = 0x03
	DW_OP_const1u              Opcode = 0x08
	DW_OP_const1s              Opcode = 0x09
	DW_OP_const2u              Opcode = 0x0a
	DW_OP_const2s              Opcode = 0x0b
	DW_OP_const4u              Opcode = 0x0c
	DW_OP_const4s              Opcode = 0x0d
	DW_OP_const8u              Opcode = 0x0e
	DW_OP_const8s              Opcode = 0x0f
	DW_OP_constu               Opcode = 0x10
	DW_OP_consts               Opcode = 0x11
	DW_OP_minus                Opcode = 0x1c
	DW_OP_plus                 Opcode = 0x22
	DW_OP_plus_uconst          Opcode = 0x23
	DW_OP_lit0                 Opcode = 0x30
	DW_OP_lit31                Opcode = 0x4f
	DW_OP_reg0                 Opcode = 0x50
	DW_OP_reg31                Opcode = 0x6f
	DW_OP_breg0                Opcode = 0x70
	DW_OP_breg31               Opcode = 0x8f
	DW_OP_regx                 Opcode = 0x90
	DW_OP_fbreg                Opcode = 0x91
	DW_OP_bregx                Opcode = 0x92
	DW_OP_piece                Opcode = 0x93
	DW_OP_form_tls_address     Opcode = 0x9b
	DW_OP_call_frame_cfa       Opcode = 0x9c
	DW_OP_stack_value          Opcode = 0x9f
	DW_OP_GNU_push_tls_address Opcode = 0xe0
)

var opcodeName = map[Opcode]string{
	DW_OP_addr:                 "DW_OP_addr",
	DW_OP_const1u:              "DW_OP_const1u",
	DW_OP_const1s:              "DW_OP_const1s",
	DW_OP_const2u:              "DW_OP_const2u",
	DW_OP_const2s:              "DW_OP_const2s",
	DW_OP_const4u:              "DW_OP_const4u",
	DW_OP_const4s:              "DW_OP_const4s",
	DW_OP_const8u:              "DW_OP_const8u",
	DW_OP_const8s:              "DW_OP_const8s",
	DW_OP_constu:               "DW_OP_constu",
	DW_OP_consts:               "DW_OP_consts",
	DW_OP_minus:                "DW_OP_minus",
	DW_OP_plus:                 "DW_OP_plus",
	DW_OP_plus_uconst:          "DW_OP_plus_uconst",
	DW_OP_regx:                 "DW_OP_regx",
	DW_OP_fbreg:                "DW_OP_fbreg",
	DW_OP_bregx:                "DW_OP_bregx",
	DW_OP_piece:                "DW_OP_piece",
	DW_OP_form_tls_address:     "DW_OP_form_tls_address",
	DW_OP_call_frame_cfa:       "DW_OP_call_frame_cfa",
	DW_OP_stack_value:          "DW_OP_stack_value",
	DW_OP_GNU_push_tls_address: "DW_OP_GNU_push_tls_address",
}

func (op Opcode) String() string {
	switch {
	case op >= DW_OP_lit0 && op <= DW_OP_lit31:
		return fmt.Sprintf("DW_OP_lit%d", op-DW_OP_lit0)
	case op >= DW_OP_reg0 && op <= DW_OP_reg31:
		return fmt.Sprintf("DW_OP_reg%d", op-DW_OP_reg0)
	case op >= DW_OP_breg0 && op <= DW_OP_breg31:
		return fmt.Sprintf("DW_OP_breg%d", op-DW_OP_breg0)
	}
	if name, ok := opcodeName[op]; ok {
		return name
	}
	return fmt.Sprintf("%#x", byte(op))
}

// ErrNotStatic is returned for expressions that need the state of a
// running thread.
var ErrNotStatic = errors.New("location expression is not static")

type stackfn func(Opcode, *context) error

type context struct {
	buf        *bytes.Buffer
	stack      []int64
	ptrSize    int
	staticBase uint64
}

var oplut map[Opcode]stackfn

func init() {
	oplut = map[Opcode]stackfn{
		DW_OP_addr:        addr,
		DW_OP_const1u:     constn,
		DW_OP_const1s:     constn,
		DW_OP_const2u:     constn,
		DW_OP_const2s:     constn,
		DW_OP_const4u:     constn,
		DW_OP_const4s:     constn,
		DW_OP_const8u:     constn,
		DW_OP_const8s:     constn,
		DW_OP_constu:      constu,
		DW_OP_consts:      consts,
		DW_OP_minus:       binop,
		DW_OP_plus:        binop,
		DW_OP_plus_uconst: plusuconst,
	}
	for op := DW_OP_lit0; op <= DW_OP_lit31; op++ {
		oplut[op] = lit
	}
}

// StaticAddress evaluates instructions and returns the address it
// computes. Addresses encoded with DW_OP_addr are relocated by staticBase.
func StaticAddress(instructions []byte, ptrSize int, staticBase uint64) (uint64, error) {
	ctxt := &context{
		buf:        bytes.NewBuffer(instructions),
		stack:      make([]int64, 0, 3),
		ptrSize:    ptrSize,
		staticBase: staticBase,
	}

	for {
		opcodeByte, err := ctxt.buf.ReadByte()
		if err != nil {
			break
		}
		opcode := Opcode(opcodeByte)
		fn, ok := oplut[opcode]
		if !ok {
			if _, known := opcodeName[opcode]; known || opcode >= DW_OP_reg0 && opcode <= DW_OP_breg31 {
				return 0, fmt.Errorf("%v: %w", opcode, ErrNotStatic)
			}
			return 0, fmt.Errorf("invalid instruction %v", opcode)
		}
		if err := fn(opcode, ctxt); err != nil {
			return 0, err
		}
	}

	if len(ctxt.stack) == 0 {
		return 0, errors.New("empty OP stack")
	}
	return uint64(ctxt.stack[len(ctxt.stack)-1]), nil
}

func addr(opcode Opcode, ctxt *context) error {
	buf := ctxt.buf.Next(ctxt.ptrSize)
	var a uint64
	switch {
	case len(buf) != ctxt.ptrSize:
		return fmt.Errorf("%v: truncated address", opcode)
	case ctxt.ptrSize == 4:
		a = uint64(binary.LittleEndian.Uint32(buf))
	case ctxt.ptrSize == 8:
		a = binary.LittleEndian.Uint64(buf)
	default:
		return fmt.Errorf("unsupported pointer size %d", ctxt.ptrSize)
	}
	ctxt.stack = append(ctxt.stack, int64(a+ctxt.staticBase))
	return nil
}

func constn(opcode Opcode, ctxt *context) error {
	var n int64
	var err error
	switch opcode {
	case DW_OP_const1u:
		var x uint8
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	case DW_OP_const1s:
		var x int8
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	case DW_OP_const2u:
		var x uint16
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	case DW_OP_const2s:
		var x int16
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	case DW_OP_const4u:
		var x uint32
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	case DW_OP_const4s:
		var x int32
		err = binary.Read(ctxt.buf, binary.LittleEndian, &x)
		n = int64(x)
	default:
		err = binary.Read(ctxt.buf, binary.LittleEndian, &n)
	}
	if err != nil {
		return fmt.Errorf("%v: %w", opcode, err)
	}
	ctxt.stack = append(ctxt.stack, n)
	return nil
}

func constu(opcode Opcode, ctxt *context) error {
	num, _, err := leb128.DecodeUnsigned(ctxt.buf)
	if err != nil {
		return fmt.Errorf("%v: %w", opcode, err)
	}
	ctxt.stack = append(ctxt.stack, int64(num))
	return nil
}

func consts(opcode Opcode, ctxt *context) error {
	num, _, err := leb128.DecodeSigned(ctxt.buf)
	if err != nil {
		return fmt.Errorf("%v: %w", opcode, err)
	}
	ctxt.stack = append(ctxt.stack, num)
	return nil
}

func lit(opcode Opcode, ctxt *context) error {
	ctxt.stack = append(ctxt.stack, int64(opcode-DW_OP_lit0))
	return nil
}

func binop(opcode Opcode, ctxt *context) error {
	slen := len(ctxt.stack)
	if slen < 2 {
		return fmt.Errorf("%v: stack underflow", opcode)
	}
	a, b := ctxt.stack[slen-2], ctxt.stack[slen-1]
	ctxt.stack = ctxt.stack[:slen-2]
	switch opcode {
	case DW_OP_minus:
		ctxt.stack = append(ctxt.stack, a-b)
	default:
		ctxt.stack = append(ctxt.stack, a+b)
	}
	return nil
}

func plusuconst(opcode Opcode, ctxt *context) error {
	slen := len(ctxt.stack)
	if slen < 1 {
		return fmt.Errorf("%v: stack underflow", opcode)
	}
	num, _, err := leb128.DecodeUnsigned(ctxt.buf)
	if err != nil {
		return fmt.Errorf("%v: %w", opcode, err)
	}
	ctxt.stack[slen-1] += int64(num)
	return nil
}
