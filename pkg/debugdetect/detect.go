package debugdetect

import (
	"errors"
	"os"
)

// ErrUnsupported is returned on platforms where tracers can not be
// detected.
var ErrUnsupported = errors.New("debugger detection not supported on this platform")

// IsDebuggerAttached returns true if the current process is being traced.
func IsDebuggerAttached() (bool, error) {
	pid, err := TracerPid(os.Getpid())
	return pid != 0, err
}
