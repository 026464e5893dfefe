package regs

// AMD64Registers implements the Registers interface for AMD64 CPUs.
type AMD64Registers struct {
	Regs *AMD64PtraceRegs
}

func NewAMD64Registers(regs *AMD64PtraceRegs) *AMD64Registers {
	return &AMD64Registers{Regs: regs}
}

// AMD64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for AMD64 CPUs.
type AMD64PtraceRegs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// Slice returns the registers as a list of (name, value) pairs.
func (r *AMD64Registers) Slice() []Register {
	var regs = []struct {
		k string
		v uint64
	}{
		{"Rip", r.Regs.Rip},
		{"Rsp", r.Regs.Rsp},
		{"Rbp", r.Regs.Rbp},
		{"Rax", r.Regs.Rax},
		{"Rbx", r.Regs.Rbx},
		{"Rcx", r.Regs.Rcx},
		{"Rdx", r.Regs.Rdx},
		{"Rdi", r.Regs.Rdi},
		{"Rsi", r.Regs.Rsi},
		{"R8", r.Regs.R8},
		{"R9", r.Regs.R9},
		{"R10", r.Regs.R10},
		{"R11", r.Regs.R11},
		{"R12", r.Regs.R12},
		{"R13", r.Regs.R13},
		{"R14", r.Regs.R14},
		{"R15", r.Regs.R15},
		{"Orig_rax", r.Regs.Orig_rax},
		{"Cs", r.Regs.Cs},
		{"Ss", r.Regs.Ss},
		{"Fs_base", r.Regs.Fs_base},
		{"Gs_base", r.Regs.Gs_base},
	}
	out := make([]Register, 0, len(regs)+1)
	for _, reg := range regs {
		out = AppendQwordReg(out, reg.k, reg.v)
	}
	return AppendEflagReg(out, "Rflags", r.Regs.Eflags, 64)
}

// PC returns the value of RIP register.
func (r *AMD64Registers) PC() uint64 {
	return r.Regs.Rip
}

// SP returns the value of RSP register.
func (r *AMD64Registers) SP() uint64 {
	return r.Regs.Rsp
}

// BP returns the value of RBP register.
func (r *AMD64Registers) BP() uint64 {
	return r.Regs.Rbp
}

func (r *AMD64Registers) SetPC(pc uint64) {
	r.Regs.Rip = pc
}

func (r *AMD64Registers) SetSP(sp uint64) {
	r.Regs.Rsp = sp
}

func (r *AMD64Registers) SetBP(bp uint64) {
	r.Regs.Rbp = bp
}

func (r *AMD64Registers) Arch() *Arch {
	return amd64Arch
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *AMD64Registers) Copy() Registers {
	var rr AMD64Registers
	rr.Regs = &AMD64PtraceRegs{}
	*(rr.Regs) = *(r.Regs)
	return &rr
}
