//go:build linux && (amd64 || 386)

package ptrace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/go-delve/crashwalk/pkg/debugdetect"
	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/regs"
)

// Process is a process stopped by Attach. It stays stopped until Detach.
type Process struct {
	Pid int
	// Threads are the stopped threads, the main thread first.
	Threads []Thread
	Memory  *memory.Process

	ptraceChan     chan func()
	ptraceDoneChan chan struct{}
}

// Attach stops every thread of pid and reads their registers.
func Attach(pid int) (*Process, error) {
	if tracer, err := debugdetect.TracerPid(pid); err == nil && tracer != 0 {
		return nil, &AlreadyTracedError{Pid: pid, Tracer: tracer}
	}
	p := &Process{
		Pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
	}
	go p.handlePtraceFuncs()

	tids, err := threadIDs(pid)
	if err != nil {
		p.close()
		return nil, err
	}
	for _, tid := range tids {
		th, err := p.addThread(tid)
		if err == syscall.ESRCH {
			// exited while we were attaching
			continue
		}
		if err != nil {
			p.Detach()
			return nil, err
		}
		p.Threads = append(p.Threads, th)
	}
	if len(p.Threads) == 0 {
		p.close()
		return nil, fmt.Errorf("could not attach to any thread of %d", pid)
	}
	p.Memory = memory.NewProcess(pid)
	return p, nil
}

// threadIDs lists the threads of pid, the main thread first.
func threadIDs(pid int) ([]int, error) {
	paths, err := filepath.Glob(fmt.Sprintf("/proc/%d/task/*", pid))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no such process %d", pid)
	}
	tids := make([]int, 0, len(paths))
	for _, path := range paths {
		tid, err := strconv.Atoi(filepath.Base(path))
		if err != nil {
			return nil, err
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	for i, tid := range tids {
		if tid == pid {
			copy(tids[1:i+1], tids[:i])
			tids[0] = pid
			break
		}
	}
	return tids, nil
}

func (p *Process) addThread(tid int) (Thread, error) {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceAttach(tid) })
	if err != nil {
		if err == sys.ESRCH {
			return Thread{}, syscall.ESRCH
		}
		return Thread{}, fmt.Errorf("could not attach to thread %d: %w", tid, err)
	}
	var status sys.WaitStatus
	p.execPtraceFunc(func() { _, err = sys.Wait4(tid, &status, sys.WALL, nil) })
	if err != nil {
		return Thread{}, fmt.Errorf("waiting for thread %d: %w", tid, err)
	}
	if status.Exited() {
		return Thread{}, syscall.ESRCH
	}

	var pregs sys.PtraceRegs
	p.execPtraceFunc(func() { err = sys.PtraceGetRegs(tid, &pregs) })
	if err != nil {
		p.execPtraceFunc(func() { sys.PtraceDetach(tid) })
		return Thread{}, fmt.Errorf("could not read registers of thread %d: %w", tid, err)
	}
	logflags.CrashLogger().Debugf("attached to thread %d", tid)
	return Thread{ID: tid, Registers: regs.FromPtraceRegs(&pregs)}, nil
}

// Detach resumes every thread and releases the process.
func (p *Process) Detach() error {
	var firstErr error
	for _, th := range p.Threads {
		var err error
		p.execPtraceFunc(func() { err = sys.PtraceDetach(th.ID) })
		if err != nil && err != sys.ESRCH && firstErr == nil {
			firstErr = fmt.Errorf("could not detach from thread %d: %w", th.ID, err)
		}
	}
	p.Threads = nil
	if p.Memory != nil {
		p.Memory.Close()
	}
	p.close()
	return firstErr
}

// MainThread returns the main thread of the process.
func (p *Process) MainThread() Thread {
	return p.Threads[0]
}

// Others returns every thread but the main one.
func (p *Process) Others() []Thread {
	return p.Threads[1:]
}

// Environ returns the environment of the process.
func Environ(pid int) ([]string, error) {
	return readNulSeparated(fmt.Sprintf("/proc/%d/environ", pid))
}

// Cmdline returns the command line of the process.
func Cmdline(pid int) ([]string, error) {
	return readNulSeparated(fmt.Sprintf("/proc/%d/cmdline", pid))
}

// Cwd returns the working directory of the process.
func Cwd(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
}

func readNulSeparated(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r []string
	start := 0
	for i, b := range data {
		if b == 0 {
			r = append(r, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		r = append(r, string(data[start:]))
	}
	return r, nil
}

func (p *Process) handlePtraceFuncs() {
	// ptrace(2) expects every request after PTRACE_ATTACH to come from the
	// thread that attached.
	runtime.LockOSThread()

	for fn := range p.ptraceChan {
		fn()
		p.ptraceDoneChan <- struct{}{}
	}
}

func (p *Process) execPtraceFunc(fn func()) {
	p.ptraceChan <- fn
	<-p.ptraceDoneChan
}

func (p *Process) close() {
	if p.ptraceChan != nil {
		close(p.ptraceChan)
		p.ptraceChan = nil
	}
}
