// Package unwind walks native call stacks using the frame pointer chain
// and, where the chain is broken, a bounded heuristic scan of the stack.
//
// Unwinding is a best-effort diagnostic aid: stopping one frame early is
// acceptable, producing frames that do not exist is not.
package unwind

import (
	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/regs"
)

// DefaultMaxScan is the default number of stack bytes examined by the
// heuristic scan.
const DefaultMaxScan = 0x2000

// ModuleSource is the module list used by a Context, either Owned by it or
// Borrowed from the caller.
type ModuleSource interface {
	list() modules.List
	release()
}

// Owned is a module list that belongs to the Context and is cleared by
// Close.
type Owned struct {
	List modules.List
}

func (o *Owned) list() modules.List { return o.List }
func (o *Owned) release()           { o.List.Clear() }

// Borrowed is a module list that belongs to the caller and is left alone
// by Close.
type Borrowed struct {
	List *modules.List
}

func (b Borrowed) list() modules.List {
	if b.List == nil {
		return nil
	}
	return *b.List
}

func (b Borrowed) release() {}

// Context holds everything needed to unwind the stack of one thread: the
// memory of the process, the module list and the bounds of the stack.
type Context struct {
	mem    memory.Reader
	arch   *regs.Arch
	source ModuleSource
	mods   modules.List
	stack  modules.Segment

	// MaxScan is the maximum number of bytes examined by the heuristic scan.
	MaxScan int

	log logflags.Logger
}

// NewContext returns an unwinding context. The stack segment bounds every
// stack read; an empty segment disables unwinding altogether.
func NewContext(mem memory.Reader, arch *regs.Arch, source ModuleSource, stack modules.Segment) *Context {
	if source == nil {
		source = &Owned{}
	}
	return &Context{
		mem:     mem,
		arch:    arch,
		source:  source,
		mods:    source.list(),
		stack:   stack,
		MaxScan: DefaultMaxScan,
		log:     logflags.UnwindLogger(),
	}
}

// Modules returns the module list used by the context.
func (c *Context) Modules() modules.List {
	return c.mods
}

// Stack returns the stack segment of the context.
func (c *Context) Stack() modules.Segment {
	return c.stack
}

// Arch returns the architecture of the context.
func (c *Context) Arch() *regs.Arch {
	return c.arch
}

// Memory returns the memory the context reads from.
func (c *Context) Memory() memory.Reader {
	return c.mem
}

// Close ends the unwinding session. An owned module list is cleared.
func (c *Context) Close() {
	c.source.release()
	c.mods = nil
}

func (c *Context) inStack(addr, size uint64) bool {
	if addr < c.stack.Base {
		return false
	}
	off := addr - c.stack.Base
	return off < c.stack.Size && size <= c.stack.Size-off
}

// ReadPointer reads the pointer sized value at addr, only if addr is
// inside the stack segment.
func (c *Context) ReadPointer(addr uint64) (uint64, bool) {
	return c.readPointer(c.mem, addr)
}

func (c *Context) readPointer(mem memory.Reader, addr uint64) (uint64, bool) {
	ptr := uint64(c.arch.PtrSize)
	if !c.inStack(addr, ptr) {
		return 0, false
	}
	v, err := memory.ReadUint(mem, addr, c.arch.PtrSize)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StackSegmentFor returns the segment of l containing sp, which is used as
// the stack bounds of the thread whose stack pointer is sp.
func StackSegmentFor(l modules.List, sp uint64) (modules.Segment, bool) {
	_, seg := l.FindSegment(sp)
	if seg == nil {
		return modules.Segment{}, false
	}
	return *seg, true
}
