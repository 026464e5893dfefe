package cmds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-delve/crashwalk/pkg/config"
	"github.com/go-delve/crashwalk/pkg/coredump"
	"github.com/go-delve/crashwalk/pkg/crash"
	"github.com/go-delve/crashwalk/pkg/logflags"
	"github.com/go-delve/crashwalk/pkg/modules"
	"github.com/go-delve/crashwalk/pkg/ptrace"
	"github.com/go-delve/crashwalk/pkg/symbolize"
	"github.com/go-delve/crashwalk/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides the default configuration file.
	configPath string
	// reportFlags overrides the report-flags configuration option.
	reportFlags string
	// color overrides the color configuration option.
	color colorMode
	// coreOutput is the path of the core file written by the core flag.
	coreOutput string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const crashwalkCommandLongDesc = `Crashwalk inspects native processes the way a crash handler does.

It lists the modules mapped by a process and produces crash reports (registers,
command line, environment, modules and stack trace of every thread) of live
processes, stopping them for the time it takes to unwind their stacks.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	rootCommand = &cobra.Command{
		Use:               "crashwalk",
		Short:             "Crashwalk produces crash reports of native processes.",
		Long:              crashwalkCommandLongDesc,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'crashwalk help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'crashwalk help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, defaults to $XDG_CONFIG_HOME/crashwalk/config.yml.")
	color = ""
	rootCommand.PersistentFlags().Var(&color, "color", `Colored section headers: "auto", "always" or "never".`)

	modulesCommand := &cobra.Command{
		Use:   "modules [pid]",
		Short: "Lists the modules mapped by a process.",
		Long: `Lists the modules mapped by a process, one line per file followed by the
address range and kind of each of its segments. Without a pid the modules of
crashwalk itself are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: modulesCmd,
	}
	rootCommand.AddCommand(modulesCommand)

	reportCommand := &cobra.Command{
		Use:   "report pid",
		Short: "Writes the crash report of a live process.",
		Long: `Stops every thread of a process, writes the crash report selected by
--flags (see 'crashwalk flags') and lets the process continue.

If the core flag is set an ELF core file of the stopped process is written to
--core-output, core.<pid> by default. If the debugger flag is set the
configured debugger command is started after the report, with {pid} replaced
by the process id.`,
		Args: cobra.ExactArgs(1),
		RunE: reportCmd,
	}
	reportCommand.Flags().StringVar(&reportFlags, "flags", "", "Comma separated list of report flags, overrides report-flags from the configuration.")
	reportCommand.Flags().StringVar(&coreOutput, "core-output", "", "Path of the core file written when the core flag is set.")
	rootCommand.AddCommand(reportCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "flags",
		Short: "Lists the crash report flags.",
		Args:  cobra.NoArgs,
		Run:   flagsCmd,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "config [option value]",
		Short: "Prints or changes the configuration.",
		Long: `Without arguments prints the current configuration. With an option name
and a value sets the option and saves the configuration file, an empty value
unsets the option.

Options: ` + strings.Join(config.Keys(), ", ") + `.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New("config requires either no arguments or an option and a value")
			}
			return nil
		},
		RunE: configCmd,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Crashwalk\n%s\n", version.CrashwalkVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	crash		Log crash dispatch and report generation (default)
	unwind		Log every unwinding step
	modules		Log module enumeration
	symbolizer	Log symbolizer invocations and failures
	memory		Log faults of guarded memory accesses

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func setup(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	var err error
	if configPath != "" {
		conf, err = config.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
	} else {
		conf, err = config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	if color != "" {
		conf.Color = string(color)
	}
	return nil
}

func parsePid(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid: %s", s)
	}
	return pid, nil
}

func modulesCmd(cmd *cobra.Command, args []string) error {
	pid := 0
	if len(args) == 1 {
		var err error
		if pid, err = parsePid(args[0]); err != nil {
			return err
		}
	}
	mods, err := modules.Enumerate(pid)
	if err != nil {
		return err
	}
	defer mods.Clear()
	out, colored := newOutput(cmd.OutOrStdout(), conf.Color)
	if colored {
		out = &highlighter{w: out, isHeader: isModulePath}
	}
	return mods.Dump(out)
}

func configCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(cmd.OutOrStdout(), conf)
		return nil
	}
	if args[0] == "report-flags" && args[1] != "" {
		if _, err := crash.ParseFlags(args[1]); err != nil {
			return err
		}
	}
	if err := conf.Set(args[0], args[1]); err != nil {
		return err
	}
	if configPath != "" {
		return config.SaveConfigFile(configPath, conf)
	}
	return config.SaveConfig(conf)
}

func flagsCmd(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-10s %s\n", "name", "supported", "default")
	for _, name := range crash.FlagNames() {
		f, _ := crash.ParseFlags(name)
		fmt.Fprintf(out, "%-10s %-10v %v\n", name, crash.Capabilities&f != 0, crash.DefaultFlags&f != 0)
	}
}

// newSubsystem builds the crash subsystem for pid from the configuration.
func newSubsystem(pid int, out *os.File) (*crash.Subsystem, error) {
	timeout, err := conf.SymbolizerTimeoutDuration()
	if err != nil {
		return nil, err
	}
	size := 0
	if conf.SymbolCacheSize != nil {
		size = *conf.SymbolCacheSize
	}
	sym, err := symbolize.NewCache(symbolize.NewAddr2Line(conf.SymbolizerCommand(), timeout), size)
	if err != nil {
		return nil, err
	}

	args, err := ptrace.Cmdline(pid)
	if err != nil {
		return nil, err
	}
	cfg := crash.Config{
		Symbolizer:      sym,
		DebuggerCommand: conf.DebuggerCommand,
		Args:            args,
		Environ: func() []string {
			env, err := ptrace.Environ(pid)
			if err != nil {
				return []string{fmt.Sprintf("<%v>", err)}
			}
			return env
		},
		Getwd: func() (string, error) { return ptrace.Cwd(pid) },
		// the report command never exits on behalf of the target
		Exit: func(int) {},
	}
	w, colored := newOutput(out, conf.Color)
	if colored {
		w = &highlighter{w: w, isHeader: isReportHeader}
	}
	cfg.Output = w
	if conf.MaxScan != nil {
		cfg.MaxScan = *conf.MaxScan
	}
	if conf.MaxFrames != nil {
		cfg.MaxFrames = *conf.MaxFrames
	}
	return crash.New(cfg), nil
}

func reportFlagsFromConfig() (crash.Flags, error) {
	s := reportFlags
	if s == "" {
		s = conf.ReportFlags
	}
	if s == "" {
		return crash.DefaultFlags, nil
	}
	return crash.ParseFlags(s)
}

func reportCmd(cmd *cobra.Command, args []string) error {
	pid, err := parsePid(args[0])
	if err != nil {
		return err
	}
	flags, err := reportFlagsFromConfig()
	if err != nil {
		return err
	}
	if flags&^crash.Capabilities != 0 {
		fmt.Fprintf(os.Stderr, "report flags %s not supported on this platform\n", flags&^crash.Capabilities)
	}

	s, err := newSubsystem(pid, os.Stdout)
	if err != nil {
		return err
	}
	if err := s.Init(nil, nil); err != nil {
		return err
	}
	defer s.Shutdown()
	s.SetFlags(flags)

	p, err := ptrace.Attach(pid)
	if err != nil {
		if errors.Is(err, ptrace.ErrUnsupported) {
			return err
		}
		return fmt.Errorf("could not attach to %d: %w", pid, err)
	}
	mt := p.MainThread()
	ev := &crash.Event{
		Kind:      crash.Quit,
		Registers: mt.Registers,
		Memory:    p.Memory,
		Pid:       pid,
	}
	for _, th := range p.Others() {
		ev.Threads = append(ev.Threads, crash.Thread{ID: th.ID, Registers: th.Registers})
	}
	d := s.ProcessSignal(context.Background(), ev)
	var coreErr error
	if s.Flags()&crash.GenerateCore != 0 {
		coreErr = writeCore(p)
	}
	if err := p.Detach(); err != nil {
		return err
	}
	if coreErr != nil {
		return coreErr
	}
	if d == crash.InvokeDebugger {
		s.Finish(d, ev)
	}
	return nil
}

func writeCore(p *ptrace.Process) error {
	path := coreOutput
	if path == "" {
		path = fmt.Sprintf("core.%d", p.Pid)
	}
	t, err := coredump.Collect(p, int(syscall.SIGQUIT))
	if err != nil {
		return fmt.Errorf("could not write core file: %w", err)
	}
	if err := coredump.WriteFile(path, t); err != nil {
		return fmt.Errorf("could not write core file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "core file written to %s\n", path)
	return nil
}
