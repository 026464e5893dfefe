package coredump

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/ptrace"
	"github.com/go-delve/crashwalk/pkg/regs"
)

type note struct {
	typ  elf.NType
	name string
	data []byte
}

func readNotes(t *testing.T, p *elf.Prog) []note {
	data, err := io.ReadAll(p.Open())
	require.NoError(t, err)
	align := func(n uint32) uint32 { return (n + 3) &^ 3 }
	var notes []note
	for len(data) > 0 {
		namesz := binary.LittleEndian.Uint32(data[0:])
		descsz := binary.LittleEndian.Uint32(data[4:])
		typ := binary.LittleEndian.Uint32(data[8:])
		data = data[12:]
		name := string(data[:namesz-1])
		data = data[align(namesz):]
		notes = append(notes, note{elf.NType(typ), name, data[:descsz]})
		data = data[align(descsz):]
	}
	return notes
}

func amd64Thread(id int, pc uint64) ptrace.Thread {
	return ptrace.Thread{ID: id, Registers: regs.NewAMD64Registers(&regs.AMD64PtraceRegs{Rip: pc, Rsp: 0x7000})}
}

func TestWrite(t *testing.T) {
	code := bytes.Repeat([]byte{0x90}, 0x1000)
	mem := &memory.Snapshot{}
	mem.Map(0x400000, code)
	mem.Map(0x600000, []byte{1, 2, 3, 4})

	target := &Target{
		Pid:     4242,
		Threads: []ptrace.Thread{amd64Thread(4242, 0x400010), amd64Thread(4243, 0x400020)},
		Memory:  mem,
		Ranges: []modules.Range{
			{Base: 0x400000, Size: 0x1000, Perm: "r-xp", Kind: modules.Code, Name: "/opt/prog"},
			{Base: 0x500000, Size: 0x1000, Perm: "---p"},
			{Base: 0x600000, Size: 0x1000, Perm: "rw-p", Kind: modules.Data},
		},
		Args:   []string{"/opt/prog", "-v"},
		Auxv:   []byte{6, 0, 0, 0, 0, 0, 0, 0, 0, 0x10, 0, 0, 0, 0, 0, 0},
		Signal: 3,
	}

	path := filepath.Join(t.TempDir(), "core")
	require.NoError(t, WriteFile(path, target))

	ef, err := elf.Open(path)
	require.NoError(t, err)
	defer ef.Close()
	require.Equal(t, elf.ET_CORE, ef.Type)
	require.Len(t, ef.Progs, 4)

	notes := readNotes(t, ef.Progs[0])
	require.Len(t, notes, 5)
	for i, id := range []int32{4242, 4243} {
		n := notes[i]
		require.Equal(t, elf.NT_PRSTATUS, n.typ)
		require.Equal(t, "CORE", n.name)
		require.Len(t, n.data, 336)
		require.Equal(t, id, int32(binary.LittleEndian.Uint32(n.data[32:])))
		// pr_reg starts at 112, rip is its 17th register
		require.Equal(t, uint64(0x400010+0x10*i), binary.LittleEndian.Uint64(n.data[112+16*8:]))
	}
	require.Equal(t, int16(3), int16(binary.LittleEndian.Uint16(notes[0].data[12:])))
	require.Zero(t, binary.LittleEndian.Uint16(notes[1].data[12:]))

	require.Equal(t, elf.NT_PRPSINFO, notes[2].typ)
	require.Len(t, notes[2].data, 136)
	require.Equal(t, "prog\x00", string(notes[2].data[40:45]))
	require.Equal(t, "/opt/prog -v\x00", string(notes[2].data[56:69]))

	require.Equal(t, elf.NType(ntAuxv), notes[3].typ)
	require.Equal(t, target.Auxv, notes[3].data)

	require.Equal(t, elf.NType(NoteTypeCrashwalk), notes[4].typ)
	require.Equal(t, "CRASHWALK", notes[4].name)
	require.Equal(t, "Target Pid: 4242\n", string(notes[4].data))

	text := ef.Progs[1]
	require.Equal(t, elf.PF_R|elf.PF_X, text.Flags)
	require.Equal(t, uint64(0x400000), text.Vaddr)
	data, err := io.ReadAll(text.Open())
	require.NoError(t, err)
	require.Equal(t, code, data)

	guard := ef.Progs[2]
	require.Equal(t, elf.ProgFlag(0), guard.Flags)
	require.Equal(t, uint64(0x1000), guard.Memsz)
	require.Zero(t, guard.Filesz)

	// the chunk is only partially mapped and is written as zeroes
	heap := ef.Progs[3]
	require.Equal(t, elf.PF_R|elf.PF_W, heap.Flags)
	require.Equal(t, uint64(0x1000), heap.Filesz)
	data, err = io.ReadAll(heap.Open())
	require.NoError(t, err)
	require.Equal(t, make([]byte, 0x1000), data)
}

func TestWriteErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	require.Error(t, WriteFile(path, &Target{Pid: 1, Memory: &memory.Snapshot{}}))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "partial core file left behind")

	i386 := regs.I386Arch().NewRegisters()
	err = WriteFile(path, &Target{Pid: 1, Threads: []ptrace.Thread{{ID: 1, Registers: i386}}, Memory: &memory.Snapshot{}})
	require.Error(t, err)
}
