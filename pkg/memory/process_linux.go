package memory

import (
	"fmt"
	"os"
	"sync"

	sys "golang.org/x/sys/unix"
)

// Process accesses the memory of another process. Reads use
// process_vm_readv and fall back to /proc/<pid>/mem, writes always go
// through /proc/<pid>/mem so that read-only text of a ptrace-stopped
// process can be patched.
type Process struct {
	Pid int

	mu      sync.Mutex
	memFile *os.File
}

// NewProcess returns a Process for pid.
func NewProcess(pid int) *Process {
	return &Process{Pid: pid}
}

func (p *Process) file() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.memFile != nil {
		return p.memFile, nil
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.Pid), os.O_RDWR, 0)
	if err != nil {
		f, err = os.Open(fmt.Sprintf("/proc/%d/mem", p.Pid))
		if err != nil {
			return nil, err
		}
	}
	p.memFile = f
	return f, nil
}

func (p *Process) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []sys.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []sys.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := sys.ProcessVMReadv(p.Pid, local, remote, 0)
	if err == nil && n == len(buf) {
		return n, nil
	}
	f, ferr := p.file()
	if ferr != nil {
		return 0, &FaultError{Addr: addr, Size: len(buf)}
	}
	n, err = f.ReadAt(buf, int64(addr))
	if err != nil || n != len(buf) {
		return n, &FaultError{Addr: addr, Size: len(buf)}
	}
	return n, nil
}

func (p *Process) WriteMemory(addr uint64, data []byte) (int, error) {
	f, err := p.file()
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(data, int64(addr))
	if err != nil {
		return n, &FaultError{Addr: addr, Size: len(data), Write: true}
	}
	return n, nil
}

// Close releases the /proc/<pid>/mem handle, if one was opened.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.memFile == nil {
		return nil
	}
	err := p.memFile.Close()
	p.memFile = nil
	return err
}
