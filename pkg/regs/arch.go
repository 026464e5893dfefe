package regs

// Arch describes the properties of a CPU architecture that the unwinder
// and the breakpoint helper depend on.
type Arch struct {
	Name    string
	PtrSize int
	// DecodeMode is the mode argument for x86asm.Decode (32 or 64).
	DecodeMode int

	breakpointInstruction []byte
}

var x86BreakInstruction = []byte{0xCC}

var amd64Arch = &Arch{
	Name:                  "amd64",
	PtrSize:               8,
	DecodeMode:            64,
	breakpointInstruction: x86BreakInstruction,
}

var i386Arch = &Arch{
	Name:                  "386",
	PtrSize:               4,
	DecodeMode:            32,
	breakpointInstruction: x86BreakInstruction,
}

// AMD64Arch returns the AMD64 architecture.
func AMD64Arch() *Arch {
	return amd64Arch
}

// I386Arch returns the I386 architecture.
func I386Arch() *Arch {
	return i386Arch
}

// BreakpointInstruction returns the Breakpoint
// instruction for this architecture.
func (a *Arch) BreakpointInstruction() []byte {
	return a.breakpointInstruction
}

// BreakpointByte returns the single byte trap instruction.
func (a *Arch) BreakpointByte() byte {
	return a.breakpointInstruction[0]
}

// NewRegisters returns zeroed registers for the architecture.
func (a *Arch) NewRegisters() Registers {
	if a.PtrSize == 4 {
		return NewI386Registers(&I386PtraceRegs{})
	}
	return NewAMD64Registers(&AMD64PtraceRegs{})
}

// Mask truncates v to the pointer size of the architecture.
func (a *Arch) Mask(v uint64) uint64 {
	if a.PtrSize == 4 {
		return uint64(uint32(v))
	}
	return v
}
