// Package unwindtest builds synthetic processes, made of two code modules
// and a stack, for tests that unwind or render stacks.
package unwindtest

import (
	"encoding/binary"
	"fmt"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/regs"
)

const (
	StackBase = 0x7000
	CodeBase  = 0x400000
	OtherBase = 0x500000
	// Size is the size of the stack and of each code module.
	Size = 0x1000

	ProgPath  = "/opt/crashwalk-test/prog"
	OtherPath = "/opt/crashwalk-test/libother.so"
)

// Process is a fake process. All of its memory is zero until written.
type Process struct {
	Arch    *regs.Arch
	Mem     *memory.Snapshot
	Modules modules.List

	stack, prog, other []byte
}

// New returns a fake process for arch.
func New(arch *regs.Arch) *Process {
	p := &Process{
		Arch:  arch,
		Mem:   &memory.Snapshot{},
		stack: make([]byte, Size),
		prog:  make([]byte, Size),
		other: make([]byte, Size),
	}
	p.Mem.Map(StackBase, p.stack)
	p.Mem.Map(CodeBase, p.prog)
	p.Mem.Map(OtherBase, p.other)
	p.Modules = modules.Build([]modules.Range{
		{Base: StackBase, Size: Size, Kind: modules.Data, Name: "[stack]"},
		{Base: CodeBase, Size: Size, Kind: modules.Code, Name: ProgPath},
		{Base: OtherBase, Size: Size, Kind: modules.Code, Name: OtherPath},
	})
	return p
}

// Stack returns the stack segment.
func (p *Process) Stack() modules.Segment {
	return modules.Segment{Base: StackBase, Size: Size, Kind: modules.Data}
}

func (p *Process) write(addr uint64, data []byte) {
	if _, err := p.Mem.WriteMemory(addr, data); err != nil {
		panic(fmt.Sprintf("unwindtest: %v", err))
	}
}

// PutPointer writes a pointer sized value at addr.
func (p *Process) PutPointer(addr, v uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	p.write(addr, buf[:p.Arch.PtrSize])
}

// Frame writes a frame record at bp: the saved frame pointer followed by
// the return address.
func (p *Process) Frame(bp, savedBP, ret uint64) {
	p.PutPointer(bp, savedBP)
	p.PutPointer(bp+uint64(p.Arch.PtrSize), ret)
}

// DirectCall writes a CALL rel32 to target at addr and returns the
// address of the following instruction.
func (p *Process) DirectCall(addr, target uint64) uint64 {
	ret := addr + 5
	buf := []byte{0xe8, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(int64(target)-int64(ret))))
	p.write(addr, buf)
	return ret
}

// RegisterCall writes a CALL through a register at addr and returns the
// address of the following instruction.
func (p *Process) RegisterCall(addr uint64) uint64 {
	p.write(addr, []byte{0xff, 0xd0})
	return addr + 2
}

// MemoryCall writes a CALL through the pointer stored at slot, which is
// set to target, and returns the address of the following instruction.
// On amd64 the slot is addressed relative to the instruction pointer.
func (p *Process) MemoryCall(addr, slot, target uint64) uint64 {
	ret := addr + 6
	buf := []byte{0xff, 0x15, 0, 0, 0, 0}
	if p.Arch.PtrSize == 8 {
		binary.LittleEndian.PutUint32(buf[2:], uint32(int32(int64(slot)-int64(ret))))
	} else {
		binary.LittleEndian.PutUint32(buf[2:], uint32(slot))
	}
	p.write(addr, buf)
	p.PutPointer(slot, target)
	return ret
}

// Registers returns registers for the frame at pc.
func (p *Process) Registers(pc, sp, bp uint64) regs.Registers {
	r := p.Arch.NewRegisters()
	r.SetPC(pc)
	r.SetSP(sp)
	r.SetBP(bp)
	return r
}
