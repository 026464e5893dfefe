package memory

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestSnapshotReadWrite(t *testing.T) {
	var s Snapshot
	s.Map(0x2000, make([]byte, 16))
	s.Map(0x1000, []byte{1, 2, 3, 4})

	buf := make([]byte, 2)
	n, err := s.ReadMemory(buf, 0x1001)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{2, 3}, buf)

	_, err = s.ReadMemory(buf, 0x1003)
	var fe *FaultError
	require.True(t, errors.As(err, &fe), "read crossing the end of a region should fault, got %v", err)
	require.Equal(t, uint64(0x1003), fe.Addr)

	_, err = s.ReadMemory(buf, 0x1800)
	require.Error(t, err)

	_, err = s.WriteMemory(0x2008, []byte{0xef, 0xbe, 0xad, 0xde})
	require.NoError(t, err)
	v, err := ReadUint(&s, 0x2008, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), v)
}

func TestReadUintSizes(t *testing.T) {
	var s Snapshot
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, 0x1122334455667788)
	s.Map(0x100, data)

	for _, tc := range []struct {
		size int
		want uint64
	}{
		{1, 0x88},
		{2, 0x7788},
		{4, 0x55667788},
		{8, 0x1122334455667788},
	} {
		v, err := ReadUint(&s, 0x100, tc.size)
		require.NoError(t, err)
		require.Equal(t, tc.want, v, "size %d", tc.size)
	}
	_, err := ReadUint(&s, 0x100, 3)
	require.Error(t, err)
}

type countingReader struct {
	Reader
	reads int
}

func (c *countingReader) ReadMemory(buf []byte, addr uint64) (int, error) {
	c.reads++
	return c.Reader.ReadMemory(buf, addr)
}

func TestCached(t *testing.T) {
	var s Snapshot
	s.Map(0x4000, make([]byte, 64))
	cr := &countingReader{Reader: &s}

	mem := Cached(cr, 0x4000, 64)
	require.Equal(t, 1, cr.reads)
	for addr := uint64(0x4000); addr < 0x4040; addr += 8 {
		_, err := ReadUint(mem, addr, 8)
		require.NoError(t, err)
	}
	require.Equal(t, 1, cr.reads, "reads inside the cached window should not reach the underlying memory")

	_, err := ReadUint(mem, 0x5000, 8)
	require.Error(t, err)
	require.Equal(t, 2, cr.reads)

	require.Equal(t, mem, Cached(mem, 0x4008, 8), "a contained window should reuse the cache")
	require.Equal(t, Reader(cr), Cached(cr, 0x9000, 8), "an unreadable window should return the original reader")
}

func TestSelfReadsOwnMemory(t *testing.T) {
	src := []byte("crashwalk")
	buf := make([]byte, len(src))
	n, err := Self{}.ReadMemory(buf, uint64(uintptr(unsafe.Pointer(&src[0]))))
	require.NoError(t, err)
	require.Equal(t, len(src), n)
	require.Equal(t, src, buf)
}

func TestSelfNilPageFaults(t *testing.T) {
	buf := make([]byte, 8)
	_, err := Self{}.ReadMemory(buf, 0x10)
	var fe *FaultError
	require.True(t, errors.As(err, &fe), "expected a fault error, got %v", err)
	require.False(t, fe.Write)

	_, err = Self{}.WriteMemory(0x10, buf)
	require.True(t, errors.As(err, &fe), "expected a fault error, got %v", err)
	require.True(t, fe.Write)
}
