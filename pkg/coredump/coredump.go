// Package coredump writes ELF core files of stopped processes, readable by
// gdb and by Delve's core command.
package coredump

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-delve/crashwalk/pkg/elfwriter"
	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/ptrace"
	"github.com/go-delve/crashwalk/pkg/regs"
)

const (
	pageSize  = 0x1000
	chunkSize = 1 << 20

	ntAuxv = 6

	// NoteTypeCrashwalk is the type of the note describing how the core
	// file was produced.
	NoteTypeCrashwalk = 0x43524b57 // CRKW
	noteNameCore      = "CORE"
	noteNameCrashwalk = "CRASHWALK"
)

// Target is a stopped process.
type Target struct {
	Pid int
	// Threads are the stopped threads, the one the core file is
	// attributed to first.
	Threads []ptrace.Thread
	Memory  memory.Reader
	Ranges  []modules.Range
	Args    []string
	// Auxv is the auxiliary vector of the process, debuggers need it to
	// find the load address of position independent executables.
	Auxv []byte
	// Signal is recorded as the signal that caused the dump.
	Signal int
}

// prstatus is struct elf_prstatus of linux/amd64.
type prstatus struct {
	Signo, Code, Errno int32
	Cursig             int16
	_                  [2]byte
	Sigpend, Sighold   uint64
	Pid, Ppid          int32
	Pgrp, Sid          int32
	Times              [8]int64
	Reg                regs.AMD64PtraceRegs
	Fpvalid            int32
	_                  [4]byte
}

// prpsinfo is struct elf_prpsinfo of linux/amd64.
type prpsinfo struct {
	State, Sname, Zomb, Nice uint8
	_                        [4]byte
	Flag                     uint64
	UID, GID                 uint32
	Pid, Ppid, Pgrp, Sid     int32
	Fname                    [16]byte
	Psargs                   [80]byte
}

// Collect describes the process stopped by p. The threads of p are
// dumped in order.
func Collect(p *ptrace.Process, sig int) (*Target, error) {
	ranges, err := modules.EnumerateRanges(p.Pid)
	if err != nil {
		return nil, err
	}
	t := &Target{
		Pid:     p.Pid,
		Threads: p.Threads,
		Memory:  p.Memory,
		Ranges:  ranges,
		Signal:  sig,
	}
	t.Args, _ = ptrace.Cmdline(p.Pid)
	t.Auxv, _ = os.ReadFile(fmt.Sprintf("/proc/%d/auxv", p.Pid))
	return t, nil
}

// Write writes the core file of t to w.
func Write(w io.WriteSeeker, t *Target) error {
	notes, err := t.notes()
	if err != nil {
		return err
	}

	ew, err := elfwriter.New(w, &elf.FileHeader{
		Class:   elf.ELFCLASS64,
		Data:    elf.ELFDATA2LSB,
		Version: elf.EV_CURRENT,
		OSABI:   elf.ELFOSABI_NONE,
		Type:    elf.ET_CORE,
		Machine: elf.EM_X86_64,
	})
	if err != nil {
		return err
	}
	ew.WriteNotes(notes)

	log := logflags.MemoryLogger()
	buf := make([]byte, chunkSize)
	for _, r := range t.Ranges {
		h := &elf.ProgHeader{
			Type:  elf.PT_LOAD,
			Flags: progFlags(r.Perm),
			Vaddr: r.Base,
			Memsz: r.Size,
			Align: pageSize,
		}
		ew.BeginSegment(h)
		if readable(r) {
			faults := 0
			for off := uint64(0); off < r.Size; off += chunkSize {
				chunk := buf[:min(chunkSize, r.Size-off)]
				if _, err := t.Memory.ReadMemory(chunk, r.Base+off); err != nil {
					faults++
					clear(chunk)
				}
				ew.Write(chunk)
			}
			if faults > 0 {
				log.Debugf("%d unreadable chunks in %#x-%#x %s, written as zeroes", faults, r.Base, r.Base+r.Size, r.Name)
			}
		}
		ew.EndSegment(h)
		if ew.Err != nil {
			return ew.Err
		}
	}
	return ew.WriteProgramHeaders()
}

// WriteFile writes the core file of t to path.
func WriteFile(path string, t *Target) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, t); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func readable(r modules.Range) bool {
	if r.Perm == "" || r.Perm[0] != 'r' {
		return false
	}
	// reading [vvar] faults on most kernels
	return r.Name != "[vvar]" && r.Name != "[vvar_vclock]"
}

func progFlags(perm string) elf.ProgFlag {
	var f elf.ProgFlag
	if len(perm) < 3 {
		return f
	}
	if perm[0] == 'r' {
		f |= elf.PF_R
	}
	if perm[1] == 'w' {
		f |= elf.PF_W
	}
	if perm[2] == 'x' {
		f |= elf.PF_X
	}
	return f
}

func (t *Target) notes() ([]elfwriter.Note, error) {
	if len(t.Threads) == 0 {
		return nil, errors.New("no threads to dump")
	}
	var notes []elfwriter.Note
	for i, th := range t.Threads {
		ar, ok := th.Registers.(*regs.AMD64Registers)
		if !ok {
			return nil, fmt.Errorf("can not write %s registers of thread %d to a core file", th.Registers.Arch().Name, th.ID)
		}
		st := prstatus{
			Signo: int32(t.Signal),
			Pid:   int32(th.ID),
			Pgrp:  int32(t.Pid),
			Reg:   *ar.Regs,
		}
		if i == 0 {
			st.Cursig = int16(t.Signal)
		}
		data, err := encode(&st)
		if err != nil {
			return nil, err
		}
		notes = append(notes, elfwriter.Note{Type: elf.NT_PRSTATUS, Name: noteNameCore, Data: data})
	}

	info := prpsinfo{Pid: int32(t.Pid), Pgrp: int32(t.Pid)}
	if len(t.Args) > 0 {
		copy(info.Fname[:len(info.Fname)-1], filepath.Base(t.Args[0]))
		copy(info.Psargs[:len(info.Psargs)-1], strings.Join(t.Args, " "))
	}
	data, err := encode(&info)
	if err != nil {
		return nil, err
	}
	notes = append(notes, elfwriter.Note{Type: elf.NT_PRPSINFO, Name: noteNameCore, Data: data})

	if len(t.Auxv) > 0 {
		notes = append(notes, elfwriter.Note{Type: ntAuxv, Name: noteNameCore, Data: t.Auxv})
	}

	notes = append(notes, elfwriter.Note{
		Type: NoteTypeCrashwalk,
		Name: noteNameCrashwalk,
		Data: []byte("Target Pid: " + strconv.Itoa(t.Pid) + "\n"),
	})
	return notes, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
