package symbolize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-delve/crashwalk/pkg/logflags"
)

// Addr2Line runs the binutils addr2line program, or a command with the
// same interface, once per address.
type Addr2Line struct {
	// Command is the program followed by its leading arguments. The
	// arguments "-f -C -e <path> <addr>" are appended.
	Command []string
	// Timeout bounds every run. Zero means no timeout.
	Timeout time.Duration
}

// NewAddr2Line returns an addr2line symbolizer. An empty command means
// "addr2line" from PATH.
func NewAddr2Line(command []string, timeout time.Duration) *Addr2Line {
	if len(command) == 0 {
		command = []string{"addr2line"}
	}
	return &Addr2Line{Command: command, Timeout: timeout}
}

func (a *Addr2Line) Symbolize(ctx context.Context, path string, addr uint64) (Symbol, error) {
	if len(a.Command) == 0 {
		return Symbol{}, errors.New("no symbolizer command")
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	args := append(a.Command[1:len(a.Command):len(a.Command)], "-f", "-C", "-e", path, fmt.Sprintf("%#x", addr))
	cmd := exec.CommandContext(ctx, a.Command[0], args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logflags.SymbolizerLogger().Debugf("running %s %s", a.Command[0], strings.Join(args, " "))
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Symbol{}, fmt.Errorf("%s: %w", a.Command[0], ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Symbol{}, fmt.Errorf("%s: %w: %s", a.Command[0], err, msg)
		}
		return Symbol{}, fmt.Errorf("%s: %w", a.Command[0], err)
	}
	return parseAddr2Line(out)
}

// parseAddr2Line parses the two lines printed by addr2line -f for one
// address:
//
//	function
//	file:line
//
// Unknown parts are printed as "??", an unknown line as 0 or "?".
func parseAddr2Line(out []byte) (Symbol, error) {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) < 2 {
		return Symbol{}, fmt.Errorf("malformed symbolizer output %q", out)
	}
	var sym Symbol
	if fn := strings.TrimSpace(lines[0]); fn != Unknown {
		sym.Function = fn
	}

	loc := strings.TrimSpace(lines[1])
	if i := strings.Index(loc, " ("); i >= 0 {
		// "file:line (discriminator N)"
		loc = loc[:i]
	}
	colon := strings.LastIndex(loc, ":")
	if colon < 0 {
		return Symbol{}, fmt.Errorf("malformed symbolizer location %q", lines[1])
	}
	if file := loc[:colon]; file != Unknown {
		sym.File = file
	}
	if n, err := strconv.Atoi(loc[colon+1:]); err == nil {
		sym.Line = n
	}
	return sym, nil
}
