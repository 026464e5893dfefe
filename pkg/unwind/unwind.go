package unwind

import (
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/regs"
)

// State is the position of an unwinding walk.
type State uint8

const (
	// AtFrame means the registers describe a frame that has not been
	// stepped from yet.
	AtFrame State = iota
	// Unwound means the last step moved to the caller frame.
	Unwound
	// Exhausted means no caller frame could be found.
	Exhausted
)

func (s State) String() string {
	switch s {
	case AtFrame:
		return "at frame"
	case Unwound:
		return "unwound"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// FrameExists reports whether r describes a frame with an intact frame
// pointer link: BP points into the stack at or above SP and the word after
// the saved BP is a plausible return address.
func (c *Context) FrameExists(r regs.Registers) bool {
	ptr := uint64(c.arch.PtrSize)
	bp, sp := r.BP(), r.SP()
	if bp < sp || !c.inStack(bp, 2*ptr) {
		return false
	}
	ret, ok := c.ReadPointer(bp + ptr)
	if !ok {
		return false
	}
	return c.CallSite(ret, r.PC())
}

// Step moves r to the caller of the frame it describes. It returns Unwound
// if a caller was found, Exhausted otherwise, in which case r is left
// untouched. The stack pointer strictly increases on every successful step.
func (c *Context) Step(r regs.Registers) State {
	if len(c.mods) == 0 || c.stack.Size == 0 {
		return Exhausted
	}
	ptr := uint64(c.arch.PtrSize)

	if c.FrameExists(r) {
		bp := r.BP()
		ret, _ := c.ReadPointer(bp + ptr)
		savedBP, _ := c.ReadPointer(bp)
		if c.log != nil {
			c.log.Debugf("frame pointer step pc=%#x bp=%#x -> pc=%#x bp=%#x", r.PC(), bp, ret, savedBP)
		}
		r.SetPC(ret)
		r.SetBP(savedBP)
		r.SetSP(bp + 2*ptr)
		return Unwound
	}

	return c.scan(r)
}

// scan looks for a return address in the stack slots starting at SP.
func (c *Context) scan(r regs.Registers) State {
	ptr := uint64(c.arch.PtrSize)
	sp := r.SP()
	if !c.inStack(sp, ptr) {
		return Exhausted
	}
	if rem := sp % ptr; rem != 0 {
		sp += ptr - rem
	}
	limit := uint64(c.MaxScan)
	if end := c.stack.End(); end-sp < limit {
		limit = end - sp
	}
	mem := memory.Cached(c.mem, sp, int(limit))

	pc := r.PC()
	for s := sp; s+ptr <= sp+limit; s += ptr {
		v, ok := c.readPointer(mem, s)
		if !ok {
			break
		}
		if !c.CallSite(v, pc) {
			continue
		}
		// the slot below the match is only part of the live frame when it
		// is at or above SP
		bp := r.BP()
		if s >= ptr && s-ptr >= r.SP() {
			bp, _ = c.readPointer(mem, s-ptr)
		}
		if c.log != nil {
			c.log.Debugf("heuristic step pc=%#x sp=%#x -> pc=%#x found at %#x", pc, r.SP(), v, s)
		}
		r.SetPC(v)
		r.SetBP(bp)
		r.SetSP(s + ptr)
		return Unwound
	}
	if c.log != nil {
		c.log.Debugf("stack exhausted at pc=%#x sp=%#x", pc, r.SP())
	}
	return Exhausted
}

// Cursor is a walk over the frames of one thread.
type Cursor struct {
	ctx   *Context
	regs  regs.Registers
	state State
}

// NewCursor returns a cursor positioned at the frame described by r. The
// registers are copied, r is not modified by the walk.
func (c *Context) NewCursor(r regs.Registers) *Cursor {
	return &Cursor{ctx: c, regs: r.Copy(), state: AtFrame}
}

// Registers returns the registers of the current frame.
func (cur *Cursor) Registers() regs.Registers {
	return cur.regs
}

// State returns the state of the walk.
func (cur *Cursor) State() State {
	return cur.state
}

// Next moves the cursor to the caller frame and reports whether it exists.
func (cur *Cursor) Next() bool {
	if cur.state == Exhausted {
		return false
	}
	cur.state = cur.ctx.Step(cur.regs)
	return cur.state == Unwound
}
