//go:build !linux

package debugdetect

// TracerPid returns the pid of the process tracing pid.
func TracerPid(pid int) (int, error) {
	return 0, ErrUnsupported
}
