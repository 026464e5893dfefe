package crash

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-delve/crashwalk/pkg/memory"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/regs"
	"github.com/go-delve/crashwalk/pkg/stackdump"
	"github.com/go-delve/crashwalk/pkg/unwind"
)

// report builds the crash report for ev. Sections that fail are noted
// inline and the report goes on.
func (s *Subsystem) report(ctx context.Context, ev *Event, flags Flags, vm stackdump.VMUnwinder) []byte {
	var buf bytes.Buffer

	if flags&PrintRegisters != 0 {
		s.signalSection(&buf, ev)
	}
	if flags&PrintCommandLine != 0 {
		fmt.Fprintf(&buf, "Command line: %s\n", strings.Join(s.cfg.Args, " "))
		wd, err := s.cfg.Getwd()
		if err != nil {
			wd = fmt.Sprintf("<%v>", err)
		}
		fmt.Fprintf(&buf, "Working directory: %s\n", wd)
	}
	if flags&PrintEnvironment != 0 {
		buf.WriteString("Environment:\n")
		for _, kv := range s.cfg.Environ() {
			fmt.Fprintf(&buf, "\t%s\n", kv)
		}
	}

	var mods modules.List
	if flags&(PrintModules|PrintStackTrace) != 0 {
		var err error
		mods, err = s.modules(ev)
		if err != nil {
			s.log.Warnf("module enumeration failed: %v", err)
			if flags&PrintModules != 0 {
				fmt.Fprintf(&buf, "Modules: <%v>\n", err)
			}
		} else if flags&PrintModules != 0 {
			buf.WriteString("Modules:\n")
			if err := mods.Dump(&buf); err != nil {
				fmt.Fprintf(&buf, "<%v>\n", err)
			}
		}
	}

	if flags&PrintStackTrace != 0 {
		buf.WriteString("Stack trace:\n")
		s.stackSection(ctx, &buf, ev, mods, ev.Registers, vm)
		if flags&DumpAllThreads != 0 {
			for _, th := range ev.Threads {
				fmt.Fprintf(&buf, "Thread %d:\n", th.ID)
				s.stackSection(ctx, &buf, ev, mods, th.Registers, nil)
			}
		}
	}
	return buf.Bytes()
}

func (s *Subsystem) signalSection(buf *bytes.Buffer, ev *Event) {
	fmt.Fprintf(buf, "Signal: %s", ev.Kind)
	if ev.Signal != nil {
		fmt.Fprintf(buf, " (%v)", ev.Signal)
	}
	if ev.Kind == GPF || ev.Kind == StackOverflow || ev.Address != 0 {
		fmt.Fprintf(buf, " at %#x", ev.Address)
	}
	buf.WriteByte('\n')
	if ev.Registers == nil {
		buf.WriteString("Registers: <unavailable>\n")
		return
	}
	buf.WriteString("Registers:\n")
	if err := regs.Dump(buf, ev.Registers); err != nil {
		fmt.Fprintf(buf, "<%v>\n", err)
	}
}

// modules returns the module list of the process of ev, enumerating it
// once per event.
func (s *Subsystem) modules(ev *Event) (modules.List, error) {
	if ev.Modules != nil {
		return ev.Modules, nil
	}
	mods, err := s.cfg.EnumerateModules(ev.Pid)
	if err != nil {
		return nil, err
	}
	ev.Modules = mods
	return mods, nil
}

func (s *Subsystem) stackSection(ctx context.Context, buf *bytes.Buffer, ev *Event, mods modules.List, r regs.Registers, vm stackdump.VMUnwinder) {
	if r == nil {
		buf.WriteString("<registers unavailable>\n")
		return
	}
	mem := ev.Memory
	if mem == nil {
		mem = memory.Self{}
	}
	stack, ok := unwind.StackSegmentFor(mods, r.SP())
	if !ok {
		s.log.Debugf("no mapping contains the stack pointer %#x", r.SP())
	}

	uctx := unwind.NewContext(mem, r.Arch(), unwind.Borrowed{List: &mods}, stack)
	defer uctx.Close()
	if s.cfg.MaxScan > 0 {
		uctx.MaxScan = s.cfg.MaxScan
	}
	rd := stackdump.NewRenderer(uctx, s.cfg.Symbolizer)
	if s.cfg.MaxFrames > 0 {
		rd.MaxFrames = s.cfg.MaxFrames
	}
	if err := rd.Render(ctx, buf, r, vm); err != nil {
		fmt.Fprintf(buf, "<%v>\n", err)
	}
}
