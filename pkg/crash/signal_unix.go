//go:build unix

package crash

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/go-delve/crashwalk/pkg/modules"
)

// StackGuardSize is the distance below the stack within which a fault is
// classified as a stack overflow.
const StackGuardSize = 64 << 10

// ClassifySignal returns the Kind of a signal. addr is the fault address
// and stack the stack segment of the faulting thread, used to tell stack
// overflows from other faults.
func ClassifySignal(sig syscall.Signal, addr uint64, stack modules.Segment) Kind {
	switch sig {
	case unix.SIGSEGV, unix.SIGBUS, unix.SIGILL:
		if stack.Size != 0 && addr < stack.Base && stack.Base-addr <= StackGuardSize {
			return StackOverflow
		}
		return GPF
	case unix.SIGFPE:
		return Arithmetic
	case unix.SIGTRAP:
		return Breakpoint
	case unix.SIGABRT:
		return Abort
	case unix.SIGQUIT:
		return Quit
	case unix.SIGINT:
		return CtrlC
	}
	return Unknown
}

func asyncSignal(k Kind) os.Signal {
	switch k {
	case CtrlC:
		return unix.SIGINT
	case Quit:
		return unix.SIGQUIT
	case Abort:
		return unix.SIGABRT
	case Breakpoint:
		return unix.SIGTRAP
	}
	return nil
}

func kindOfSignal(sig os.Signal) Kind {
	if s, ok := sig.(syscall.Signal); ok {
		return ClassifySignal(s, 0, modules.Segment{})
	}
	return Unknown
}
