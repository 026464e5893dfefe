package regs

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// FromPtraceRegs copies the register set returned by PTRACE_GETREGS.
func FromPtraceRegs(pregs *sys.PtraceRegs) Registers {
	r := AMD64PtraceRegs(*pregs)
	return NewAMD64Registers(&r)
}

// ToPtraceRegs writes r back into the PTRACE_SETREGS format. FS_BASE and
// GS_BASE are left untouched.
func ToPtraceRegs(r Registers, pregs *sys.PtraceRegs) error {
	ar, ok := r.(*AMD64Registers)
	if !ok {
		return fmt.Errorf("can not convert %s registers to the native context", r.Arch().Name)
	}
	fsBase, gsBase := pregs.Fs_base, pregs.Gs_base
	*pregs = sys.PtraceRegs(*ar.Regs)
	pregs.Fs_base, pregs.Gs_base = fsBase, gsBase
	return nil
}
