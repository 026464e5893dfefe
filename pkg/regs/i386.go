package regs

// I386Registers implements the Registers interface for I386 CPUs.
type I386Registers struct {
	Regs *I386PtraceRegs
}

func NewI386Registers(regs *I386PtraceRegs) *I386Registers {
	return &I386Registers{Regs: regs}
}

// I386PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for I386 CPUs.
type I386PtraceRegs struct {
	Ebx      int32
	Ecx      int32
	Edx      int32
	Esi      int32
	Edi      int32
	Ebp      int32
	Eax      int32
	Xds      int32
	Xes      int32
	Xfs      int32
	Xgs      int32
	Orig_eax int32
	Eip      int32
	Xcs      int32
	Eflags   int32
	Esp      int32
	Xss      int32
}

// Slice returns the registers as a list of (name, value) pairs.
func (r *I386Registers) Slice() []Register {
	var regs = []struct {
		k string
		v int32
	}{
		{"Eip", r.Regs.Eip},
		{"Esp", r.Regs.Esp},
		{"Ebp", r.Regs.Ebp},
		{"Eax", r.Regs.Eax},
		{"Ebx", r.Regs.Ebx},
		{"Ecx", r.Regs.Ecx},
		{"Edx", r.Regs.Edx},
		{"Esi", r.Regs.Esi},
		{"Edi", r.Regs.Edi},
		{"Orig_eax", r.Regs.Orig_eax},
		{"Xcs", r.Regs.Xcs},
		{"Xds", r.Regs.Xds},
		{"Xes", r.Regs.Xes},
		{"Xfs", r.Regs.Xfs},
		{"Xgs", r.Regs.Xgs},
		{"Xss", r.Regs.Xss},
	}
	out := make([]Register, 0, len(regs)+1)
	for _, reg := range regs {
		out = AppendDwordReg(out, reg.k, uint32(reg.v))
	}
	return AppendEflagReg(out, "Eflags", uint64(uint32(r.Regs.Eflags)), 32)
}

// PC returns the value of EIP register.
func (r *I386Registers) PC() uint64 {
	return uint64(uint32(r.Regs.Eip))
}

// SP returns the value of ESP register.
func (r *I386Registers) SP() uint64 {
	return uint64(uint32(r.Regs.Esp))
}

// BP returns the value of EBP register.
func (r *I386Registers) BP() uint64 {
	return uint64(uint32(r.Regs.Ebp))
}

func (r *I386Registers) SetPC(pc uint64) {
	r.Regs.Eip = int32(uint32(pc))
}

func (r *I386Registers) SetSP(sp uint64) {
	r.Regs.Esp = int32(uint32(sp))
}

func (r *I386Registers) SetBP(bp uint64) {
	r.Regs.Ebp = int32(uint32(bp))
}

func (r *I386Registers) Arch() *Arch {
	return i386Arch
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *I386Registers) Copy() Registers {
	var rr I386Registers
	rr.Regs = &I386PtraceRegs{}
	*(rr.Regs) = *(r.Regs)
	return &rr
}
