package crash

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cosiner/argv"

	"github.com/go-delve/crashwalk/pkg/debugdetect"
)

// Finish applies the exit policy for a Disposition returned by
// ProcessSignal: InvokeDebugger runs the debugger command and waits for
// it, then, like Terminate, the fault is regenerated to get a core dump
// if GenerateCore is set or the process exits with status 1. Continue
// does nothing.
func (s *Subsystem) Finish(d Disposition, ev *Event) {
	if d == Continue {
		return
	}
	pid := ev.Pid
	if pid == 0 {
		pid = os.Getpid()
	}
	if d == InvokeDebugger {
		if tracer, err := debugdetect.TracerPid(pid); err == nil && tracer != 0 {
			s.log.Infof("process %d is already traced by %d, not starting a debugger", pid, tracer)
		} else if err := s.runDebugger(pid); err != nil {
			s.log.Errorf("could not run debugger: %v", err)
		}
	}
	if s.Flags()&GenerateCore != 0 && pid == os.Getpid() {
		if err := regenerate(); err != nil {
			s.log.Errorf("could not generate core dump: %v", err)
		}
	}
	s.cfg.Exit(1)
}

// DebuggerArgv splits a debugger command template into arguments,
// replacing {pid} with pid.
func DebuggerArgv(template string, pid int) ([]string, error) {
	cmdline := strings.ReplaceAll(template, "{pid}", strconv.Itoa(pid))
	v, err := argv.Argv(cmdline,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 || len(v[0]) == 0 {
		return nil, fmt.Errorf("illegal debugger command '%s'", template)
	}
	return v[0], nil
}

func (s *Subsystem) runDebugger(pid int) error {
	args, err := DebuggerArgv(s.cfg.DebuggerCommand, pid)
	if err != nil {
		return err
	}
	s.log.Infof("starting debugger: %s", strings.Join(args, " "))
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// the user quitting the debugger is not a failure
		return nil
	}
	return err
}
