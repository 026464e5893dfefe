// Package stackdump renders the stack of a thread, merging the frames of
// a managed runtime with the native frames found by the unwinder.
package stackdump

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/regs"
	"github.com/go-delve/crashwalk/pkg/symbolize"
	"github.com/go-delve/crashwalk/pkg/unwind"
)

const (
	// DefaultMaxFrames is the default maximum number of lines of a stack
	// trace.
	DefaultMaxFrames = 256

	maxStateSize     = 1 << 20
	maxStateRequests = 4
)

// Renderer prints stack traces.
type Renderer struct {
	Context *unwind.Context
	// Symbolizer resolves native frames, nil leaves them unresolved.
	Symbolizer symbolize.Symbolizer
	MaxFrames  int
}

// NewRenderer returns a renderer walking stacks with uctx.
func NewRenderer(uctx *unwind.Context, sym symbolize.Symbolizer) *Renderer {
	return &Renderer{Context: uctx, Symbolizer: sym, MaxFrames: DefaultMaxFrames}
}

// Render writes the stack trace starting at r to w, innermost frame
// first. The registers in r are not modified. vm may be nil.
func (rd *Renderer) Render(ctx context.Context, w io.Writer, r regs.Registers, vm VMUnwinder) error {
	var b strings.Builder
	rd.render(ctx, &b, r, vm)
	_, err := io.WriteString(w, b.String())
	return err
}

func (rd *Renderer) render(ctx context.Context, b *strings.Builder, r regs.Registers, vm VMUnwinder) {
	max := rd.MaxFrames
	if max <= 0 {
		max = DefaultMaxFrames
	}
	cur := rd.Context.NewCursor(r)
	var info FrameInfo
	exhausted := false

	for n := 0; n < max; {
		if vm != nil && rd.describe(vm, cur.Registers(), &info) == 0 {
			fmt.Fprintf(b, "%d: %s %s\n", n, info.name(), info.source())
			n++
			info.reset()
			continue
		}
		if exhausted {
			return
		}
		rd.nativeLine(ctx, b, n, cur.Registers().PC(), cur.State() == unwind.Unwound)
		n++
		if info.HasInfo() {
			fmt.Fprintf(b, "\t[%s %s]\n", info.name(), info.source())
		}
		info.reset()
		if !cur.Next() {
			exhausted = true
		}
	}
	fmt.Fprintf(b, "...more frames\n")
}

// describe calls vm until it either describes a frame or gives up,
// allocating its state as requested.
func (rd *Renderer) describe(vm VMUnwinder, r regs.Registers, info *FrameInfo) int {
	for i := 0; i < maxStateRequests; i++ {
		ret := vm.UnwindFrame(r.Copy(), info)
		if ret <= 0 {
			return ret
		}
		if ret > maxStateSize {
			logflags.CrashLogger().Warnf("managed unwinder asked for %d bytes of state", ret)
			return -1
		}
		info.State = make([]byte, ret)
	}
	return -1
}

func (rd *Renderer) nativeLine(ctx context.Context, b *strings.Builder, n int, pc uint64, caller bool) {
	width := 2 + 2*rd.Context.Arch().PtrSize
	fmt.Fprintf(b, "%d: %#0*x ", n, width, pc)

	// callers are at a return address, which belongs to the next function
	// when the call is the last instruction of the caller
	lookup := pc
	if caller && pc > 0 {
		lookup--
	}
	m, seg := rd.Context.Modules().FindSegment(lookup)
	sym := symbolize.Symbol{Function: symbolize.Unknown}
	if m != nil && m.Path != "" && rd.Symbolizer != nil {
		s, err := rd.Symbolizer.Symbolize(ctx, m.Path, symbolize.FileAddress(m, seg, lookup))
		if err == nil && s.Known() {
			sym = s
		}
	}
	b.WriteString(sym.Function)
	if sym.File != "" {
		fmt.Fprintf(b, " [%s:%d]", sym.File, sym.Line)
	}
	if m == nil {
		b.WriteString(" (<unknown>)\n")
		return
	}
	fmt.Fprintf(b, " (%s+%#x)\n", m.DisplayName(), pc-m.Base())
}
