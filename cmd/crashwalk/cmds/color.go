package cmds

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

const (
	headerColor = "\x1b[1;34m"
	resetColor  = "\x1b[0m"
)

// colorMode is the value of the --color flag.
type colorMode string

var _ pflag.Value = (*colorMode)(nil)

func (c *colorMode) String() string { return string(*c) }

func (c *colorMode) Set(s string) error {
	switch s {
	case "auto", "always", "never":
		*c = colorMode(s)
		return nil
	}
	return fmt.Errorf("unknown color mode %q", s)
}

func (c *colorMode) Type() string { return "mode" }

// newOutput returns the writer to use for out and whether colors should be
// written to it. Colors are used in "auto" mode only when out is a
// terminal.
func newOutput(out io.Writer, mode string) (io.Writer, bool) {
	switch mode {
	case "never":
		return out, false
	case "always":
	default:
		f, ok := out.(*os.File)
		if !ok || !isatty.IsTerminal(f.Fd()) {
			return out, false
		}
	}
	if f, ok := out.(*os.File); ok {
		switch f {
		case os.Stdout:
			return colorable.NewColorableStdout(), true
		case os.Stderr:
			return colorable.NewColorableStderr(), true
		}
	}
	return out, true
}

// highlighter colors the header lines of the text written through it.
// Every Write is passed on as a single Write.
type highlighter struct {
	w        io.Writer
	isHeader func(line []byte) bool
}

func (h *highlighter) Write(p []byte) (int, error) {
	var b bytes.Buffer
	for _, line := range bytes.SplitAfter(p, []byte("\n")) {
		text := bytes.TrimSuffix(line, []byte("\n"))
		if len(text) == 0 || !h.isHeader(text) {
			b.Write(line)
			continue
		}
		b.WriteString(headerColor)
		b.Write(text)
		b.WriteString(resetColor)
		b.Write(line[len(text):])
	}
	if _, err := h.w.Write(b.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

var reportHeaders = []string{"Signal:", "Registers:", "Command line:", "Working directory:", "Environment:", "Modules:", "Stack trace:", "Thread "}

func isReportHeader(line []byte) bool {
	s := string(line)
	for _, h := range reportHeaders {
		if strings.HasPrefix(s, h) {
			return true
		}
	}
	return false
}

func isModulePath(line []byte) bool {
	return line[0] != '\t'
}
