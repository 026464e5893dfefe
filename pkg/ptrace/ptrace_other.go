//go:build !linux || !(amd64 || 386)

package ptrace

import "github.com/go-delve/crashwalk/pkg/memory"

// Process is a process stopped by Attach.
type Process struct {
	Pid     int
	Threads []Thread
	Memory  *memory.Process
}

func Attach(pid int) (*Process, error) {
	return nil, ErrUnsupported
}

func (p *Process) Detach() error {
	return nil
}

func (p *Process) MainThread() Thread {
	return p.Threads[0]
}

func (p *Process) Others() []Thread {
	return p.Threads[1:]
}

func Environ(pid int) ([]string, error) {
	return nil, ErrUnsupported
}

func Cmdline(pid int) ([]string, error) {
	return nil, ErrUnsupported
}

func Cwd(pid int) (string, error) {
	return "", ErrUnsupported
}
