// Package ptrace stops a live process and captures the registers of its
// threads.
package ptrace

import (
	"errors"
	"fmt"

	"github.com/go-delve/crashwalk/pkg/regs"
)

// ErrUnsupported is returned by Attach on platforms where it is not
// implemented.
var ErrUnsupported = errors.New("attaching to processes is not supported on this platform")

// Thread is a stopped thread.
type Thread struct {
	ID        int
	Registers regs.Registers
}

// AlreadyTracedError is returned by Attach when another debugger is
// attached to the process.
type AlreadyTracedError struct {
	Pid    int
	Tracer int
}

func (err *AlreadyTracedError) Error() string {
	return fmt.Sprintf("process %d is already traced by %d", err.Pid, err.Tracer)
}
