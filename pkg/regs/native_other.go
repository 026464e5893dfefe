//go:build !amd64 && !386

package regs

// NativeArch returns the architecture crashwalk was compiled for. Only x86
// family register layouts are supported, other architectures get nil.
func NativeArch() *Arch {
	return nil
}
