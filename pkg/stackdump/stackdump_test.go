package stackdump_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-delve/crashwalk/pkg/regs"
	"github.com/go-delve/crashwalk/pkg/stackdump"
	"github.com/go-delve/crashwalk/pkg/symbolize"
	"github.com/go-delve/crashwalk/pkg/unwind"
	"github.com/go-delve/crashwalk/pkg/unwind/unwindtest"
)

const funcA uint64 = unwindtest.CodeBase + 0x100

type fakeSymbolizer map[uint64]symbolize.Symbol

func (f fakeSymbolizer) Symbolize(ctx context.Context, path string, addr uint64) (symbolize.Symbol, error) {
	if path != unwindtest.ProgPath {
		return symbolize.Symbol{}, fmt.Errorf("no symbols for %s", path)
	}
	sym, ok := f[addr]
	if !ok {
		return symbolize.Symbol{Function: symbolize.Unknown}, nil
	}
	return sym, nil
}

// chain builds a three frame stack and returns the registers of the
// innermost frame and the return addresses.
func chain(p *unwindtest.Process) (regs.Registers, []uint64) {
	ret1 := p.DirectCall(unwindtest.CodeBase+0x200, funcA)
	ret2 := p.DirectCall(unwindtest.CodeBase+0x300, funcA)
	p.Frame(0x7120, 0x7140, ret1)
	p.Frame(0x7140, 0, ret2)
	return p.Registers(funcA+0x50, 0x7100, 0x7120), []uint64{ret1, ret2}
}

func newRenderer(p *unwindtest.Process, sym symbolize.Symbolizer) *stackdump.Renderer {
	uctx := unwind.NewContext(p.Mem, p.Arch, unwind.Borrowed{List: &p.Modules}, p.Stack())
	return stackdump.NewRenderer(uctx, sym)
}

func TestRenderNative(t *testing.T) {
	p := unwindtest.New(regs.AMD64Arch())
	r, _ := chain(p)
	sym := fakeSymbolizer{
		0x150: {Function: "do_work", File: "work.c", Line: 31},
		0x204: {Function: "main"},
		// a call ending main returns past its end
		0x205:     {Function: "after_main"},
		0x150 - 1: {Function: "before_do_work"},
	}

	var out bytes.Buffer
	require.NoError(t, newRenderer(p, sym).Render(context.Background(), &out, r, nil))
	require.Equal(t, ""+
		"0: 0x0000000000400150 do_work [work.c:31] (/opt/crashwalk-test/prog+0x150)\n"+
		"1: 0x0000000000400205 main (/opt/crashwalk-test/prog+0x205)\n"+
		"2: 0x0000000000400305 ?? (/opt/crashwalk-test/prog+0x305)\n",
		out.String())
	require.Equal(t, funcA+0x50, r.PC())
}

func TestRenderUnknownModule(t *testing.T) {
	p := unwindtest.New(regs.AMD64Arch())
	var out bytes.Buffer
	err := newRenderer(p, nil).Render(context.Background(), &out, p.Registers(0x10, 0x7f00, 0), nil)
	require.NoError(t, err)
	require.Equal(t, "0: 0x0000000000000010 ?? (<unknown>)\n", out.String())
}

func TestRenderI386(t *testing.T) {
	p := unwindtest.New(regs.I386Arch())
	var out bytes.Buffer
	err := newRenderer(p, nil).Render(context.Background(), &out, p.Registers(funcA, 0x7f00, 0), nil)
	require.NoError(t, err)
	require.Equal(t, "0: 0x00400100 ?? (/opt/crashwalk-test/prog+0x100)\n", out.String())
}

func TestRenderMerged(t *testing.T) {
	p := unwindtest.New(regs.AMD64Arch())
	r, rets := chain(p)

	var stateRequests int
	vm := stackdump.VMUnwinderFunc(func(r regs.Registers, info *stackdump.FrameInfo) int {
		if info.State == nil {
			stateRequests++
			return 8
		}
		switch r.PC() {
		case funcA + 0x50:
			switch info.State[0] {
			case 0:
				info.ClassName, info.MethodName, info.Signature = "pkg/Inner", "run", "()V"
				info.FileName, info.Line = "Inner.java", 10
			case 1:
				info.MethodName = "call"
			default:
				return -1
			}
			info.State[0]++
			return 0
		case rets[0]:
			info.MethodName = "interpret"
			info.FileName = "interp.c"
		}
		return -1
	})

	// the innermost native frame follows managed frames but is still
	// symbolized at its own pc
	sym := fakeSymbolizer{
		0x150:     {Function: "do_work"},
		0x150 - 1: {Function: "before_do_work"},
		0x204:     {Function: "main"},
	}

	var out bytes.Buffer
	require.NoError(t, newRenderer(p, sym).Render(context.Background(), &out, r, vm))
	require.Equal(t, ""+
		"0: pkg/Inner.run()V (Inner.java:10)\n"+
		"1: call (Unknown Source)\n"+
		"2: 0x0000000000400150 do_work (/opt/crashwalk-test/prog+0x150)\n"+
		"3: 0x0000000000400205 main (/opt/crashwalk-test/prog+0x205)\n"+
		"\t[interpret (interp.c)]\n"+
		"4: 0x0000000000400305 ?? (/opt/crashwalk-test/prog+0x305)\n",
		out.String())
	require.Equal(t, 1, stateRequests, "state is allocated once per render")
}

func TestRenderMaxFrames(t *testing.T) {
	p := unwindtest.New(regs.AMD64Arch())
	r, _ := chain(p)
	rd := newRenderer(p, nil)
	rd.MaxFrames = 3

	vm := stackdump.VMUnwinderFunc(func(r regs.Registers, info *stackdump.FrameInfo) int {
		info.MethodName = "loop"
		return 0
	})
	var out bytes.Buffer
	require.NoError(t, rd.Render(context.Background(), &out, r, vm))
	require.Equal(t, "0: loop (Unknown Source)\n1: loop (Unknown Source)\n2: loop (Unknown Source)\n...more frames\n", out.String())
}

func TestRenderOversizedState(t *testing.T) {
	p := unwindtest.New(regs.AMD64Arch())
	r, _ := chain(p)
	calls := 0
	vm := stackdump.VMUnwinderFunc(func(r regs.Registers, info *stackdump.FrameInfo) int {
		calls++
		return 1 << 30
	})
	var out bytes.Buffer
	require.NoError(t, newRenderer(p, nil).Render(context.Background(), &out, r, vm))
	require.Equal(t, 3, strings.Count(out.String(), "\n"), "only native frames")
	require.Equal(t, 4, calls, "asked once per native frame and once after the last")
}

func TestManagedLineVariants(t *testing.T) {
	for _, tc := range []struct {
		info stackdump.FrameInfo
		want string
	}{
		{stackdump.FrameInfo{ClassName: "C", MethodName: "m", Signature: "(I)V", FileName: "C.java", Line: 3}, "C.m(I)V (C.java:3)"},
		{stackdump.FrameInfo{ClassName: "C", MethodName: "m", Signature: "(I)V"}, "C.m(I)V (Unknown Source)"},
		{stackdump.FrameInfo{ClassName: "C", MethodName: "m", FileName: "C.java", Line: 3}, "C.m (C.java:3)"},
		{stackdump.FrameInfo{ClassName: "C", MethodName: "m"}, "C.m (Unknown Source)"},
		{stackdump.FrameInfo{MethodName: "m", Signature: "(I)V", FileName: "C.java"}, "m(I)V (C.java)"},
		{stackdump.FrameInfo{MethodName: "m", Signature: "(I)V"}, "m(I)V (Unknown Source)"},
		{stackdump.FrameInfo{MethodName: "m", FileName: "C.java", Line: 9}, "m (C.java:9)"},
		{stackdump.FrameInfo{MethodName: "m"}, "m (Unknown Source)"},
	} {
		tc := tc
		p := unwindtest.New(regs.AMD64Arch())
		rd := newRenderer(p, nil)
		rd.MaxFrames = 1
		once := false
		vm := stackdump.VMUnwinderFunc(func(r regs.Registers, info *stackdump.FrameInfo) int {
			if info.State == nil {
				return 1
			}
			if once {
				return -1
			}
			once = true
			state := info.State
			*info = tc.info
			info.State = state
			return 0
		})
		var out bytes.Buffer
		require.NoError(t, rd.Render(context.Background(), &out, p.Registers(funcA, 0x7f00, 0), vm))
		require.Equal(t, "0: "+tc.want+"\n...more frames\n", out.String())
	}
}
