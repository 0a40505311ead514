package op

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAddress(t *testing.T) {
	instructions := []byte{byte(DW_OP_consts), 0x1c, byte(DW_OP_consts), 0x1c, byte(DW_OP_plus)}
	actual, err := StaticAddress(instructions, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(56), actual)
}

func TestStaticAddressAddr(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(DW_OP_addr))
	binary.Write(&buf, binary.LittleEndian, uint64(0x4000))
	buf.WriteByte(byte(DW_OP_plus_uconst))
	buf.WriteByte(0x10)

	a, err := StaticAddress(buf.Bytes(), 8, 0x100000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x104010), a)

	_, err = StaticAddress([]byte{byte(DW_OP_addr), 0, 0}, 8, 0)
	assert.Error(t, err)
}

func TestStaticAddressNotStatic(t *testing.T) {
	for _, instructions := range [][]byte{
		{byte(DW_OP_fbreg), 0x10},
		{byte(DW_OP_reg0) + 3},
		{byte(DW_OP_const8u), 0, 0, 0, 0, 0, 0, 0, 0, byte(DW_OP_GNU_push_tls_address)},
	} {
		_, err := StaticAddress(instructions, 8, 0)
		assert.True(t, errors.Is(err, ErrNotStatic), "%x: %v", instructions, err)
	}
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "DW_OP_lit7", (DW_OP_lit0 + 7).String())
	assert.Equal(t, "DW_OP_addr", DW_OP_addr.String())
}
