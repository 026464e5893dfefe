package breakpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/regs"
)

func newMem() *memory.Snapshot {
	mem := &memory.Snapshot{}
	mem.Map(0x1000, []byte{0x55, 0x48, 0x89, 0xe5, 0xc3})
	return mem
}

func TestSetClear(t *testing.T) {
	mem := newMem()
	arch := regs.AMD64Arch()

	require.False(t, IsSet(mem, arch, 0x1001))
	orig, err := Set(mem, arch, 0x1001)
	require.NoError(t, err)
	require.Equal(t, byte(0x48), orig)
	require.True(t, IsSet(mem, arch, 0x1001))

	_, err = Set(mem, arch, 0x1001)
	var bpe BreakpointExistsError
	require.True(t, errors.As(err, &bpe), "second set must fail, got %v", err)
	require.Equal(t, uint64(0x1001), bpe.Addr)

	require.NoError(t, Clear(mem, arch, 0x1001, orig))
	require.False(t, IsSet(mem, arch, 0x1001))
	b := make([]byte, 5)
	_, err = mem.ReadMemory(b, 0x1000)
	require.NoError(t, err)
	require.Equal(t, []byte{0x55, 0x48, 0x89, 0xe5, 0xc3}, b)
}

func TestClearModified(t *testing.T) {
	mem := newMem()
	arch := regs.AMD64Arch()
	orig, err := Set(mem, arch, 0x1002)
	require.NoError(t, err)

	_, err = mem.WriteMemory(0x1002, []byte{0x90})
	require.NoError(t, err)
	err = Clear(mem, arch, 0x1002, orig)
	require.Equal(t, NoBreakpointError{Addr: 0x1002}, err)
	b := make([]byte, 1)
	_, _ = mem.ReadMemory(b, 0x1002)
	require.Equal(t, byte(0x90), b[0], "memory must not be modified")
}

func TestUnreadable(t *testing.T) {
	mem := newMem()
	arch := regs.AMD64Arch()
	require.False(t, IsSet(mem, arch, 0x5000))
	_, err := Set(mem, arch, 0x5000)
	var fe *memory.FaultError
	require.True(t, errors.As(err, &fe))
	require.Error(t, Clear(mem, arch, 0x5000, 0))
}

func TestTable(t *testing.T) {
	mem := newMem()
	tbl := NewTable(mem, regs.AMD64Arch())

	bp1, err := tbl.Set(0x1003)
	require.NoError(t, err)
	require.Equal(t, 1, bp1.ID)
	require.Equal(t, byte(0xe5), bp1.OriginalData)
	bp2, err := tbl.Set(0x1000)
	require.NoError(t, err)
	require.Equal(t, 2, bp2.ID)

	bp, err := tbl.Set(0x1003)
	require.Equal(t, BreakpointExistsError{Addr: 0x1003}, err)
	require.Same(t, bp1, bp)

	require.Equal(t, []uint64{0x1000, 0x1003}, tbl.Addrs())

	_, err = tbl.Clear(0x1004)
	require.Equal(t, NoBreakpointError{Addr: 0x1004}, err)

	bp, err = tbl.Clear(0x1003)
	require.NoError(t, err)
	require.Same(t, bp1, bp)
	require.False(t, IsSet(mem, regs.AMD64Arch(), 0x1003))

	require.NoError(t, tbl.ClearAll())
	require.Empty(t, tbl.M)
	require.False(t, IsSet(mem, regs.AMD64Arch(), 0x1000))
}
