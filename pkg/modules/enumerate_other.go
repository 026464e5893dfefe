//go:build !linux

package modules

// Enumerate returns a point in time list of the modules mapped in the
// address space of process pid.
func Enumerate(pid int) (List, error) {
	return nil, ErrUnsupported
}

// EnumerateRanges returns the mappings of process pid.
func EnumerateRanges(pid int) ([]Range, error) {
	return nil, ErrUnsupported
}
