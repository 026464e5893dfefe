package regs

// NativeArch returns the architecture crashwalk was compiled for.
func NativeArch() *Arch {
	return i386Arch
}
