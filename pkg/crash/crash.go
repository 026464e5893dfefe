// Package crash dispatches classified faults to registered callbacks and
// writes a crash report for those that are not handled.
//
// A platform trap shim (see Trapper) classifies a fault and calls
// ProcessSignal. If the fault is not fatal and a callback registered for
// its Kind handles it, execution continues. Otherwise a report made of
// the sections selected by the current Flags is written to the configured
// output, the crash actions are run and a Disposition tells the shim how
// to proceed.
package crash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/regs"
	"github.com/go-delve/crashwalk/pkg/stackdump"
	"github.com/go-delve/crashwalk/pkg/symbolize"
)

var (
	// ErrNotInitialized is returned by operations that need an initialized
	// subsystem.
	ErrNotInitialized = errors.New("crash subsystem not initialized")
	// ErrAlreadyInitialized is returned by Init when called more than once.
	ErrAlreadyInitialized = errors.New("crash subsystem already initialized")
)

// Disposition tells the trap shim what to do after ProcessSignal.
type Disposition int

const (
	Terminate      Disposition = -1
	Continue       Disposition = 0
	InvokeDebugger Disposition = 1
)

func (d Disposition) String() string {
	switch d {
	case Terminate:
		return "terminate"
	case Continue:
		return "continue"
	case InvokeDebugger:
		return "invoke debugger"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// Thread is the state of a thread other than the faulting one.
type Thread struct {
	ID        int
	Registers regs.Registers
}

// Event is a classified fault.
type Event struct {
	Kind Kind
	// Signal is the signal that caused the event, if any.
	Signal os.Signal
	// Registers of the faulting thread. Nil if the trap shim could not
	// capture them.
	Registers regs.Registers
	Address   uint64
	Fatal     bool
	// Threads are the other threads of the process, reported when
	// DumpAllThreads is set.
	Threads []Thread
	// Memory of the process, defaults to the memory of this process.
	Memory memory.Reader
	// Pid of the process, 0 for this process.
	Pid int
	// Modules of the process. When nil they are enumerated at most once
	// per event.
	Modules modules.List
}

// Callback is called for non fatal events of the kind it is registered
// for and returns true if the event was handled.
type Callback func(ctx context.Context, ev *Event) bool

// Registration associates a Callback to a Kind.
type Registration struct {
	Kind     Kind
	Callback Callback
}

// Action is run after the crash report has been written.
type Action func(ctx context.Context, ev *Event)

// FlagListener is called every time the flags change.
type FlagListener func(added, removed Flags)

// Config configures a Subsystem. Zero values select the defaults.
type Config struct {
	// Output receives crash reports, defaults to os.Stderr.
	Output io.Writer
	// Trapper installs the platform traps. Nil means ProcessSignal is only
	// called directly.
	Trapper Trapper
	// Symbolizer resolves native frames, defaults to addr2line.
	Symbolizer symbolize.Symbolizer
	// DebuggerCommand is run by Finish when CallDebugger is set. The
	// string {pid} is replaced by the process id.
	DebuggerCommand string
	MaxScan         int
	MaxFrames       int

	// Process information, defaulting to the values of this process.
	Args    []string
	Environ func() []string
	Getwd   func() (string, error)
	// EnumerateModules defaults to modules.Enumerate.
	EnumerateModules func(pid int) (modules.List, error)
	// Exit defaults to os.Exit.
	Exit func(code int)
}

// DefaultDebuggerCommand is the debugger started when CallDebugger is set
// and no command is configured.
const DefaultDebuggerCommand = "gdb -p {pid}"

type state uint8

const (
	uninitialized state = iota
	initialized
	shutdown
)

// Subsystem is the crash handling subsystem of a process.
type Subsystem struct {
	cfg Config
	log logflags.Logger

	mu        sync.Mutex
	state     state
	flags     Flags
	callbacks map[Kind]Callback
	actions   []Action
	listeners []FlagListener
	vm        stackdump.VMUnwinder

	lock crashLock
}

// New returns an uninitialized subsystem.
func New(cfg Config) *Subsystem {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Symbolizer == nil {
		if c, err := symbolize.NewCache(symbolize.NewAddr2Line(nil, 0), 0); err == nil {
			cfg.Symbolizer = c
		}
	}
	if cfg.DebuggerCommand == "" {
		cfg.DebuggerCommand = DefaultDebuggerCommand
	}
	if cfg.Args == nil {
		cfg.Args = os.Args
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.Getwd == nil {
		cfg.Getwd = os.Getwd
	}
	if cfg.EnumerateModules == nil {
		cfg.EnumerateModules = modules.Enumerate
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	return &Subsystem{
		cfg:       cfg,
		log:       logflags.CrashLogger(),
		callbacks: make(map[Kind]Callback),
	}
}

// Init registers the callbacks, installs the platform flag listeners
// ahead of those already added, sets the default flags and asks the
// Trapper to trap the registered kinds and GPF. vm describes managed
// frames in stack traces and may be nil.
func (s *Subsystem) Init(registrations []Registration, vm stackdump.VMUnwinder) error {
	s.mu.Lock()
	if s.state != uninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	callbacks := make(map[Kind]Callback)
	kinds := []Kind{GPF}
	for _, reg := range registrations {
		if !reg.Kind.valid() {
			s.mu.Unlock()
			return fmt.Errorf("can not register a callback for %s", reg.Kind)
		}
		if reg.Callback == nil {
			continue
		}
		if _, dup := callbacks[reg.Kind]; !dup && reg.Kind != GPF {
			kinds = append(kinds, reg.Kind)
		}
		callbacks[reg.Kind] = reg.Callback
	}
	s.callbacks = callbacks
	s.vm = vm
	s.listeners = append(platformListeners(), s.listeners...)
	s.state = initialized
	s.mu.Unlock()

	s.SetFlags(DefaultFlags)

	if s.cfg.Trapper != nil {
		if err := s.cfg.Trapper.Install(kinds, s.handle); err != nil {
			s.Shutdown()
			return fmt.Errorf("could not install traps: %w", err)
		}
	}
	s.log.Debugf("crash handling initialized, trapping %v", kinds)
	return nil
}

// Shutdown uninstalls the traps and forgets callbacks and actions. A crash
// lock left held by a terminating report is released.
func (s *Subsystem) Shutdown() {
	s.mu.Lock()
	if s.state != initialized {
		s.mu.Unlock()
		return
	}
	s.state = shutdown
	s.callbacks = make(map[Kind]Callback)
	s.actions = nil
	s.vm = nil
	s.mu.Unlock()

	if s.cfg.Trapper != nil {
		if err := s.cfg.Trapper.Uninstall(); err != nil {
			s.log.Warnf("could not uninstall traps: %v", err)
		}
	}
	s.lock.forceRelease()
}

// SetFlags replaces the current flags with mask restricted to
// Capabilities and notifies the flag listeners of the change.
func (s *Subsystem) SetFlags(mask Flags) {
	mask &= Capabilities
	s.mu.Lock()
	old := s.flags
	s.flags = mask
	listeners := append([]FlagListener(nil), s.listeners...)
	s.mu.Unlock()

	added, removed := mask&^old, old&^mask
	if added == 0 && removed == 0 {
		return
	}
	for _, l := range listeners {
		l(added, removed)
	}
}

// Flags returns the current flags.
func (s *Subsystem) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// AddFlagListener registers a function called, synchronously, every time
// the flags change.
func (s *Subsystem) AddFlagListener(l FlagListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AddCrashAction registers an action run after every crash report.
func (s *Subsystem) AddCrashAction(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != initialized {
		return ErrNotInitialized
	}
	s.actions = append(s.actions, a)
	return nil
}

// ProcessSignal handles one classified fault and returns what the caller
// should do next. The context carries the crash lock ownership, callbacks
// and actions that fault again must pass on the context they received.
func (s *Subsystem) ProcessSignal(ctx context.Context, ev *Event) Disposition {
	s.mu.Lock()
	if s.state != initialized {
		s.mu.Unlock()
		s.log.Errorf("%s received while %v", ev.Kind, ErrNotInitialized)
		return Terminate
	}
	cb := s.callbacks[ev.Kind]
	s.mu.Unlock()

	if !ev.Fatal && ev.Kind != Unknown && cb != nil {
		if cb(ctx, ev) {
			s.log.Debugf("%s handled by callback", ev.Kind)
			return Continue
		}
	}

	ctx, release := s.lock.acquire(ctx)

	s.mu.Lock()
	flags := s.flags
	vm := s.vm
	actions := append([]Action(nil), s.actions...)
	s.mu.Unlock()

	report := s.report(ctx, ev, flags, vm)
	if _, err := s.cfg.Output.Write(report); err != nil {
		s.log.Errorf("could not write crash report: %v", err)
	}

	for _, a := range actions {
		a(ctx, ev)
	}

	if flags&CallDebugger != 0 {
		release()
		return InvokeDebugger
	}
	return Terminate
}

// handle is the Handler given to the Trapper.
func (s *Subsystem) handle(ctx context.Context, ev *Event) Disposition {
	d := s.ProcessSignal(ctx, ev)
	s.Finish(d, ev)
	return d
}
