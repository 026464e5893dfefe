//go:build unix

package crash

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/go-delve/crashwalk/pkg/modules"
)

func TestClassifySignal(t *testing.T) {
	stack := modules.Segment{Base: 0x7ff000000000, Size: 0x800000, Kind: modules.Data}
	for _, tc := range []struct {
		sig  unix.Signal
		addr uint64
		want Kind
	}{
		{unix.SIGSEGV, 0, GPF},
		{unix.SIGBUS, 0x1000, GPF},
		{unix.SIGILL, 0x401000, GPF},
		{unix.SIGSEGV, stack.Base - 8, StackOverflow},
		{unix.SIGSEGV, stack.Base - StackGuardSize, StackOverflow},
		{unix.SIGSEGV, stack.Base - StackGuardSize - 1, GPF},
		{unix.SIGSEGV, stack.Base + 8, GPF},
		{unix.SIGFPE, 0, Arithmetic},
		{unix.SIGTRAP, 0, Breakpoint},
		{unix.SIGABRT, 0, Abort},
		{unix.SIGQUIT, 0, Quit},
		{unix.SIGINT, 0, CtrlC},
		{unix.SIGUSR1, 0, Unknown},
	} {
		require.Equal(t, tc.want, ClassifySignal(tc.sig, tc.addr, stack), "%v at %#x", tc.sig, tc.addr)
	}
	require.Equal(t, GPF, ClassifySignal(unix.SIGSEGV, 0x10, modules.Segment{}))
}

func TestSignalTrapper(t *testing.T) {
	events := make(chan *Event, 1)
	tr := &SignalTrapper{}
	err := tr.Install([]Kind{GPF, Quit}, func(ctx context.Context, ev *Event) Disposition {
		events <- ev
		return Continue
	})
	require.NoError(t, err)
	defer tr.Uninstall()
	require.Equal(t, ErrAlreadyInitialized, tr.Install([]Kind{Quit}, nil))

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGQUIT))
	select {
	case ev := <-events:
		require.Equal(t, Quit, ev.Kind)
		require.Equal(t, unix.SIGQUIT, ev.Signal)
		require.False(t, ev.Fatal)
		require.NotNil(t, ev.Memory)
	case <-time.After(10 * time.Second):
		t.Fatal("signal not delivered")
	}

	require.NoError(t, tr.Uninstall())
	require.NoError(t, tr.Uninstall())
}

func TestSignalTrapperNothingToTrap(t *testing.T) {
	tr := &SignalTrapper{}
	require.NoError(t, tr.Install([]Kind{GPF, Arithmetic}, nil))
	require.NoError(t, tr.Uninstall())
}

func TestCoreLimitListener(t *testing.T) {
	var before unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &before))
	defer unix.Setrlimit(unix.RLIMIT_CORE, &before)

	l := CoreLimitListener()
	l(GenerateCore, 0)
	var lim unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &lim))
	require.Equal(t, lim.Max, lim.Cur)

	l(0, GenerateCore)
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &lim))
	require.Equal(t, before, lim)
}

func TestInitInstallsCoreLimitListener(t *testing.T) {
	var before unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &before))
	defer unix.Setrlimit(unix.RLIMIT_CORE, &before)

	zero := unix.Rlimit{Cur: 0, Max: before.Max}
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_CORE, &zero))

	s := newTestSubsystem(t, &syncBuffer{})
	require.NoError(t, s.Init(nil, nil))
	s.SetFlags(DefaultFlags | GenerateCore)
	var lim unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &lim))
	require.Equal(t, before.Max, lim.Cur)
	s.SetFlags(DefaultFlags)
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_CORE, &lim))
	require.Equal(t, zero, lim)
}
