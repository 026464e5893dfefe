package cmds

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/crashwalk/pkg/config"
	"github.com/go-delve/crashwalk/pkg/crash"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := New(false)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := New(false)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"modules", "report", "flags", "config", "version", "log"} {
		assert.Contains(t, names, want)
	}
	for _, f := range []string{"log", "log-output", "log-dest", "config", "color"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(f), f)
	}
}

func TestFlagsCommand(t *testing.T) {
	out, err := run(t, "flags")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(crash.FlagNames())+1)
	for i, name := range crash.FlagNames() {
		assert.True(t, strings.HasPrefix(lines[i+1], name+" "), lines[i+1])
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "stack ") {
			assert.True(t, strings.HasSuffix(l, "true"), l)
		}
		if strings.HasPrefix(l, "env ") {
			assert.True(t, strings.HasSuffix(l, "false"), l)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Crashwalk\nVersion: ")
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("color: always\nreport-flags: stack\n"), 0o600))
	_, err := run(t, "--config", path, "flags")
	require.NoError(t, err)
	assert.Equal(t, "always", conf.Color)
	assert.Equal(t, "stack", conf.ReportFlags)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "flags")
	assert.Error(t, err)
}

func TestModulesCommand(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("module enumeration is only implemented on linux")
	}
	out, err := run(t, "--color", "never", "modules")
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)
	assert.Contains(t, out, exe+"\n\t0x")
	assert.NotContains(t, out, headerColor)
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("max-frames: 64\n"), 0o600))

	_, err := run(t, "--config", path, "config", "report-flags", "stack,modules")
	require.NoError(t, err)
	_, err = run(t, "--config", path, "config", "max-frames", "")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Equal(t, "report-flags: stack,modules\n", out)

	_, err = run(t, "--config", path, "config", "report-flags", "bogus")
	assert.Error(t, err)
	_, err = run(t, "--config", path, "config", "max-frames")
	assert.Error(t, err)
	_, err = run(t, "--config", path, "config", "no-such-option", "1")
	assert.Error(t, err)
}

func TestColorFlag(t *testing.T) {
	_, err := run(t, "--color", "sometimes", "flags")
	require.Error(t, err)

	_, err = run(t, "--color", "always", "flags")
	require.NoError(t, err)
	assert.Equal(t, "always", conf.Color)
}

func TestInvalidPid(t *testing.T) {
	for _, args := range [][]string{{"modules", "abc"}, {"report", "-1"}, {"report", "0"}} {
		_, err := run(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestReportFlagsPrecedence(t *testing.T) {
	t.Cleanup(func() { reportFlags = "" })

	reportFlags = "stack"
	conf = newTestConfig("modules")
	f, err := reportFlagsFromConfig()
	require.NoError(t, err)
	assert.Equal(t, crash.PrintStackTrace, f)

	reportFlags = ""
	f, err = reportFlagsFromConfig()
	require.NoError(t, err)
	assert.Equal(t, crash.PrintModules, f)

	conf = newTestConfig("")
	f, err = reportFlagsFromConfig()
	require.NoError(t, err)
	assert.Equal(t, crash.DefaultFlags, f)

	conf = newTestConfig("bogus")
	_, err = reportFlagsFromConfig()
	assert.Error(t, err)
}

func TestHighlighter(t *testing.T) {
	var out bytes.Buffer
	h := &highlighter{w: &out, isHeader: isReportHeader}
	in := "Signal: ctrl-c\nRegisters:\n\tRip = 0x0000000000401000\n\nStack trace:\n"
	n, err := h.Write([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	assert.Equal(t,
		headerColor+"Signal: ctrl-c"+resetColor+"\n"+
			headerColor+"Registers:"+resetColor+"\n"+
			"\tRip = 0x0000000000401000\n\n"+
			headerColor+"Stack trace:"+resetColor+"\n",
		out.String())

	out.Reset()
	h = &highlighter{w: &out, isHeader: isModulePath}
	_, err = h.Write([]byte("/usr/lib/libc.so.6\n\t0x0000000000001000 - 0x0000000000002000 code\n"))
	require.NoError(t, err)
	assert.Equal(t, headerColor+"/usr/lib/libc.so.6"+resetColor+"\n\t0x0000000000001000 - 0x0000000000002000 code\n", out.String())
}

func TestNewOutput(t *testing.T) {
	var buf bytes.Buffer
	w, colored := newOutput(&buf, "never")
	assert.False(t, colored)
	assert.Equal(t, &buf, w)

	_, colored = newOutput(&buf, "auto")
	assert.False(t, colored)

	w, colored = newOutput(&buf, "always")
	assert.True(t, colored)
	assert.Equal(t, &buf, w)
}

func newTestConfig(reportFlags string) *config.Config {
	return &config.Config{ReportFlags: reportFlags}
}
