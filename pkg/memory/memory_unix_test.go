//go:build linux || darwin || freebsd

package memory

import (
	"errors"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	sys "golang.org/x/sys/unix"
)

func TestSelfGuardedReadOfProtectedPage(t *testing.T) {
	page, err := sys.Mmap(-1, 0, os.Getpagesize(), sys.PROT_NONE, sys.MAP_ANON|sys.MAP_PRIVATE)
	require.NoError(t, err)
	defer sys.Munmap(page)
	addr := uint64(uintptr(unsafe.Pointer(&page[0])))

	buf := make([]byte, 8)
	_, err = Self{}.ReadMemory(buf, addr+16)
	var fe *FaultError
	require.True(t, errors.As(err, &fe), "expected a fault error, got %v", err)
	require.Equal(t, addr+16, fe.Addr)

	// The fault guard must not leak: the goroutine keeps running normally
	// and a second guarded access behaves the same way.
	_, err = Self{}.ReadMemory(buf, addr)
	require.Error(t, err)
}

func TestSelfWriteToWritablePage(t *testing.T) {
	page, err := sys.Mmap(-1, 0, os.Getpagesize(), sys.PROT_READ|sys.PROT_WRITE, sys.MAP_ANON|sys.MAP_PRIVATE)
	require.NoError(t, err)
	defer sys.Munmap(page)
	addr := uint64(uintptr(unsafe.Pointer(&page[0])))

	n, err := Self{}.WriteMemory(addr+3, []byte{0xcc})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0xcc), page[3])

	require.NoError(t, sys.Mprotect(page, sys.PROT_READ))
	_, err = Self{}.WriteMemory(addr+3, []byte{0x90})
	require.Error(t, err)
	require.Equal(t, byte(0xcc), page[3])
}
