//go:build linux && (amd64 || 386)

package ptrace

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	sys "golang.org/x/sys/unix"

	"github.com/go-delve/crashwalk/pkg/debugdetect"
	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
)

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not found")
	}
	cmd := exec.Command(path, "60")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return cmd
}

func TestAttach(t *testing.T) {
	cmd := startSleeper(t)
	pid := cmd.Process.Pid

	p, err := Attach(pid)
	if errors.Is(err, sys.EPERM) {
		t.Skip("ptrace not permitted")
	}
	require.NoError(t, err)

	main := p.MainThread()
	require.Equal(t, pid, main.ID)
	require.Empty(t, p.Others())
	require.NotZero(t, main.Registers.PC())
	require.NotZero(t, main.Registers.SP())

	mods, err := modules.Enumerate(pid)
	require.NoError(t, err)
	require.True(t, mods.IsCode(main.Registers.PC()), "pc %#x not in code", main.Registers.PC())

	_, err = memory.ReadUint(p.Memory, main.Registers.SP(), main.Registers.Arch().PtrSize)
	require.NoError(t, err)

	tracer, err := debugdetect.TracerPid(pid)
	require.NoError(t, err)
	require.NotZero(t, tracer)
	_, err = Attach(pid)
	var traced *AlreadyTracedError
	require.ErrorAs(t, err, &traced)
	require.Equal(t, pid, traced.Pid)

	require.NoError(t, p.Detach())
}

func TestAttachMissing(t *testing.T) {
	_, err := Attach(1 << 30)
	require.Error(t, err)
}

func TestThreadIDs(t *testing.T) {
	tids, err := threadIDs(os.Getpid())
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), tids[0])
	require.GreaterOrEqual(t, len(tids), 1)
}

func TestProcInfo(t *testing.T) {
	args, err := Cmdline(os.Getpid())
	require.NoError(t, err)
	require.Equal(t, os.Args, args)

	_, err = Environ(os.Getpid())
	require.NoError(t, err)

	wd, err := Cwd(os.Getpid())
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	cwd, err = filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	require.Equal(t, cwd, wd)

	_, err = Cmdline(1 << 30)
	require.Error(t, err)
}
