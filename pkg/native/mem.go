package native

import (
	"encoding/binary"
	"fmt"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter is a MemoryReader that can also modify the memory of
// the target.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// MemoryError is returned when reading the memory of the target fails.
type MemoryError struct {
	Addr uint64
	Size int
	Err  error
}

func (err *MemoryError) Error() string {
	return fmt.Sprintf("could not read %d bytes at %#x: %v", err.Size, err.Addr, err.Err)
}

func (err *MemoryError) Unwrap() error {
	return err.Err
}

func readMemory(mem MemoryReader, addr uint64, size int64) ([]byte, error) {
	buf := make([]byte, int(size))
	n, err := mem.ReadMemory(buf, addr)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short read (%d bytes)", n)
	}
	if err != nil {
		return nil, &MemoryError{Addr: addr, Size: len(buf), Err: err}
	}
	return buf, nil
}

func readIntRaw(mem MemoryReader, addr uint64, size int64) (int64, error) {
	var n int64

	val, err := readMemory(mem, addr, size)
	if err != nil {
		return 0, err
	}

	switch size {
	case 1:
		n = int64(int8(val[0]))
	case 2:
		n = int64(int16(binary.LittleEndian.Uint16(val)))
	case 4:
		n = int64(int32(binary.LittleEndian.Uint32(val)))
	case 8:
		n = int64(binary.LittleEndian.Uint64(val))
	default:
		return 0, fmt.Errorf("unsupported integer size %d", size)
	}

	return n, nil
}

func readUintRaw(mem MemoryReader, addr uint64, size int64) (uint64, error) {
	var n uint64

	val, err := readMemory(mem, addr, size)
	if err != nil {
		return 0, err
	}

	switch size {
	case 1:
		n = uint64(val[0])
	case 2:
		n = uint64(binary.LittleEndian.Uint16(val))
	case 4:
		n = uint64(binary.LittleEndian.Uint32(val))
	case 8:
		n = binary.LittleEndian.Uint64(val)
	default:
		return 0, fmt.Errorf("unsupported integer size %d", size)
	}

	return n, nil
}
