// Package breakpoint patches software breakpoints into code.
package breakpoint

import (
	"fmt"
	"sort"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/regs"
)

// BreakpointExistsError is returned when trying to set a breakpoint at an
// address that already holds the trap instruction.
type BreakpointExistsError struct {
	Addr uint64
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("breakpoint exists at %#x", bpe.Addr)
}

// NoBreakpointError is returned when trying to clear a breakpoint at an
// address that does not hold the trap instruction.
type NoBreakpointError struct {
	Addr uint64
}

func (nbp NoBreakpointError) Error() string {
	return fmt.Sprintf("no breakpoint at %#x", nbp.Addr)
}

func readByte(mem memory.Reader, addr uint64) (byte, error) {
	var buf [1]byte
	if _, err := mem.ReadMemory(buf[:], addr); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Set writes the trap instruction of arch at addr and returns the byte it
// replaced.
func Set(mem memory.ReadWriter, arch *regs.Arch, addr uint64) (byte, error) {
	orig, err := readByte(mem, addr)
	if err != nil {
		return 0, err
	}
	if orig == arch.BreakpointByte() {
		return 0, BreakpointExistsError{Addr: addr}
	}
	if _, err := mem.WriteMemory(addr, []byte{arch.BreakpointByte()}); err != nil {
		return 0, err
	}
	return orig, nil
}

// Clear restores orig at addr. The byte at addr must still be the trap
// instruction.
func Clear(mem memory.ReadWriter, arch *regs.Arch, addr uint64, orig byte) error {
	cur, err := readByte(mem, addr)
	if err != nil {
		return err
	}
	if cur != arch.BreakpointByte() {
		return NoBreakpointError{Addr: addr}
	}
	_, err = mem.WriteMemory(addr, []byte{orig})
	return err
}

// IsSet returns true if addr holds the trap instruction. Unreadable
// addresses hold no breakpoint.
func IsSet(mem memory.Reader, arch *regs.Arch, addr uint64) bool {
	cur, err := readByte(mem, addr)
	return err == nil && cur == arch.BreakpointByte()
}

// Breakpoint is a breakpoint set through a Table.
type Breakpoint struct {
	ID           int
	Addr         uint64
	OriginalData byte
}

// Table keeps track of the breakpoints set in one address space.
type Table struct {
	M map[uint64]*Breakpoint

	mem  memory.ReadWriter
	arch *regs.Arch

	idCounter int
}

// NewTable returns an empty breakpoint table for mem.
func NewTable(mem memory.ReadWriter, arch *regs.Arch) *Table {
	return &Table{M: make(map[uint64]*Breakpoint), mem: mem, arch: arch}
}

// Set sets a breakpoint at addr.
func (t *Table) Set(addr uint64) (*Breakpoint, error) {
	if bp, ok := t.M[addr]; ok {
		return bp, BreakpointExistsError{Addr: addr}
	}
	orig, err := Set(t.mem, t.arch, addr)
	if err != nil {
		return nil, err
	}
	t.idCounter++
	bp := &Breakpoint{ID: t.idCounter, Addr: addr, OriginalData: orig}
	t.M[addr] = bp
	return bp, nil
}

// Clear removes the breakpoint at addr. The breakpoint is forgotten even
// if restoring the original byte fails.
func (t *Table) Clear(addr uint64) (*Breakpoint, error) {
	bp, ok := t.M[addr]
	if !ok {
		return nil, NoBreakpointError{Addr: addr}
	}
	delete(t.M, addr)
	return bp, Clear(t.mem, t.arch, addr, bp.OriginalData)
}

// ClearAll removes every breakpoint and returns the first error
// encountered.
func (t *Table) ClearAll() error {
	var firstErr error
	for _, addr := range t.Addrs() {
		if _, err := t.Clear(addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Addrs returns the addresses of all breakpoints in increasing order.
func (t *Table) Addrs() []uint64 {
	addrs := make([]uint64, 0, len(t.M))
	for addr := range t.M {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
