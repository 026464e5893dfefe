package regs

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// FromPtraceRegs copies the register set returned by PTRACE_GETREGS.
func FromPtraceRegs(pregs *sys.PtraceRegs) Registers {
	r := I386PtraceRegs(*pregs)
	return NewI386Registers(&r)
}

// ToPtraceRegs writes r back into the PTRACE_SETREGS format.
func ToPtraceRegs(r Registers, pregs *sys.PtraceRegs) error {
	ir, ok := r.(*I386Registers)
	if !ok {
		return fmt.Errorf("can not convert %s registers to the native context", r.Arch().Name)
	}
	*pregs = sys.PtraceRegs(*ir.Regs)
	return nil
}
