// Package memory implements the fault tolerant memory access primitives
// used by the unwinder and the breakpoint helper.
package memory

import (
	"encoding/binary"
	"fmt"
)

// Reader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type Reader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// ReadWriter is a Reader that can also modify memory.
type ReadWriter interface {
	Reader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// FaultError is returned when an access touches memory that is not mapped,
// or not mapped with the required permissions.
type FaultError struct {
	Addr  uint64
	Size  int
	Write bool
	// Fault is the address reported by the failing access, when known.
	Fault uint64
}

func (e *FaultError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	if e.Fault != 0 {
		return fmt.Sprintf("could not %s %d bytes at %#x: fault at %#x", op, e.Size, e.Addr, e.Fault)
	}
	return fmt.Sprintf("could not %s %d bytes at %#x", op, e.Size, e.Addr)
}

// ReadUint reads a little endian unsigned integer of the given size (1, 2,
// 4 or 8 bytes) from mem.
func ReadUint(mem Reader, addr uint64, size int) (uint64, error) {
	var buf [8]byte
	if size <= 0 || size > len(buf) {
		return 0, fmt.Errorf("invalid integer size %d", size)
	}
	n, err := mem.ReadMemory(buf[:size], addr)
	if err != nil {
		return 0, err
	}
	if n != size {
		return 0, &FaultError{Addr: addr, Size: size}
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf[:2])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf[:4])), nil
	case 8:
		return binary.LittleEndian.Uint64(buf[:8]), nil
	}
	return 0, fmt.Errorf("invalid integer size %d", size)
}

type memCache struct {
	cacheAddr uint64
	cache     []byte
	mem       Reader
}

func (m *memCache) contains(addr uint64, size int) bool {
	end := addr + uint64(size)
	if end < addr {
		return false
	}
	return addr >= m.cacheAddr && end <= m.cacheAddr+uint64(len(m.cache))
}

func (m *memCache) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if m.contains(addr, len(data)) {
		copy(data, m.cache[addr-m.cacheAddr:])
		return len(data), nil
	}

	return m.mem.ReadMemory(data, addr)
}

// Cached returns a Reader that serves reads inside [addr, addr+size) from a
// single read of mem. If that read fails mem is returned unchanged.
func Cached(mem Reader, addr uint64, size int) Reader {
	if size <= 0 {
		return mem
	}
	if cacheMem, isCache := mem.(*memCache); isCache {
		if cacheMem.contains(addr, size) {
			return mem
		}
		mem = cacheMem.mem
	}
	cache := make([]byte, size)
	n, err := mem.ReadMemory(cache, addr)
	if err != nil || n != size {
		return mem
	}
	return &memCache{addr, cache, mem}
}
