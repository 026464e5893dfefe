package unwind

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
)

// callLengths are the lengths of the CALL encodings that can precede a
// return address, most common first: E8 rel32, FF 15 disp32 / FF 90+r
// disp32, FF D0+r, FF 50+r disp8, FF 14 SIB disp32, FF 54 SIB disp8 and
// REX prefixed forms.
var callLengths = []int{5, 6, 2, 3, 7, 4, 8}

const maxCallLength = 8

// callSite is a CALL instruction found immediately before a return address.
type callSite struct {
	len int
	// target is the destination of the call, valid only if known is set.
	target uint64
	known  bool
}

// findCallSite looks for a CALL instruction that ends exactly at ret.
func (c *Context) findCallSite(ret uint64) (callSite, bool) {
	_, seg := c.mods.FindSegment(ret - 1)
	if seg == nil || seg.Kind != modules.Code {
		return callSite{}, false
	}
	start := ret - maxCallLength
	if ret < maxCallLength || start < seg.Base {
		start = seg.Base
	}
	buf := make([]byte, ret-start)
	if _, err := c.mem.ReadMemory(buf, start); err != nil {
		return callSite{}, false
	}

	for _, n := range callLengths {
		if n > len(buf) {
			continue
		}
		inst, err := x86asm.Decode(buf[len(buf)-n:], c.arch.DecodeMode)
		if err != nil || inst.Len != n {
			continue
		}
		if inst.Op != x86asm.CALL {
			continue
		}
		cs := callSite{len: n}
		cs.target, cs.known = c.callTarget(&inst, ret)
		return cs, true
	}
	return callSite{}, false
}

// callTarget computes the destination of a CALL when it can be determined
// without the register state of the caller.
func (c *Context) callTarget(inst *x86asm.Inst, ret uint64) (uint64, bool) {
	switch arg := inst.Args[0].(type) {
	case x86asm.Rel:
		return c.arch.Mask(uint64(int64(ret) + int64(arg))), true
	case x86asm.Mem:
		if arg.Segment != 0 || arg.Index != 0 {
			return 0, false
		}
		var addr uint64
		switch arg.Base {
		case x86asm.RIP:
			addr = uint64(int64(ret) + arg.Disp)
		case 0:
			addr = c.arch.Mask(uint64(arg.Disp))
		default:
			return 0, false
		}
		target, err := memory.ReadUint(c.mem, addr, c.arch.PtrSize)
		if err != nil {
			return 0, false
		}
		return target, true
	}
	return 0, false
}

// CallSite applies the call-site heuristic to a candidate return
// address of the frame executing at pc. A call whose target is known must
// land in the module of pc; a call through a register or through memory
// that can not be resolved is accepted on the instruction match alone.
func (c *Context) CallSite(ret, pc uint64) bool {
	if !c.mods.IsCode(ret) {
		return false
	}
	cs, ok := c.findCallSite(ret)
	if !ok {
		return false
	}
	if !cs.known {
		return true
	}
	target := c.mods.Find(cs.target)
	return target != nil && target == c.mods.Find(pc)
}
