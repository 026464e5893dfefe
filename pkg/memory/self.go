package memory

import (
	"runtime"
	"runtime/debug"
	"unsafe"

	"github.com/go-delve/crashwalk/pkg/logflags"
)

// Self accesses the memory of the current process. Every access runs under
// a fault guard: a fault caused by the access is turned into a *FaultError
// instead of crashing the process.
type Self struct{}

type addrError interface {
	Addr() uintptr
}

// guarded runs f with panic-on-fault enabled for the calling goroutine. The
// previous setting is restored on every exit path, including the recovery
// of a fault raised by f.
func guarded(addr uint64, size int, write bool, f func()) (err error) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rerr, ok := r.(runtime.Error)
		if !ok {
			panic(r)
		}
		fe := &FaultError{Addr: addr, Size: size, Write: write}
		if ae, ok := rerr.(addrError); ok {
			fe.Fault = uint64(ae.Addr())
		}
		if logflags.Memory() {
			logflags.MemoryLogger().Debugf("guarded access faulted: %v", rerr)
		}
		err = fe
	}()
	f()
	return nil
}

func hostSlice(addr uint64, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

// ReadMemory copies len(buf) bytes starting at addr into buf.
func (Self) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if uint64(uintptr(addr)) != addr {
		return 0, &FaultError{Addr: addr, Size: len(buf)}
	}
	err = guarded(addr, len(buf), false, func() {
		n = copy(buf, hostSlice(addr, len(buf)))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WriteMemory copies data to addr. Writing to pages that are not writable
// (for example program text) fails with a *FaultError.
func (Self) WriteMemory(addr uint64, data []byte) (written int, err error) {
	if len(data) == 0 {
		return 0, nil
	}
	if uint64(uintptr(addr)) != addr {
		return 0, &FaultError{Addr: addr, Size: len(data), Write: true}
	}
	err = guarded(addr, len(data), true, func() {
		written = copy(hostSlice(addr, len(data)), data)
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
