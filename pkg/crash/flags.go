package crash

import (
	"fmt"
	"strings"

	"github.com/derekparker/trie"
)

// Flags selects the sections of a crash report and what happens after it.
type Flags uint32

const (
	PrintRegisters Flags = 1 << iota
	PrintCommandLine
	PrintEnvironment
	PrintModules
	PrintStackTrace
	CallDebugger
	GenerateCore
	DumpAllThreads

	allFlags = PrintRegisters | PrintCommandLine | PrintEnvironment | PrintModules |
		PrintStackTrace | CallDebugger | GenerateCore | DumpAllThreads

	// DefaultFlags are the flags set by Init.
	DefaultFlags = PrintRegisters | PrintCommandLine | PrintModules | PrintStackTrace
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{PrintRegisters, "registers"},
	{PrintCommandLine, "cmdline"},
	{PrintEnvironment, "env"},
	{PrintModules, "modules"},
	{PrintStackTrace, "stack"},
	{CallDebugger, "debugger"},
	{GenerateCore, "core"},
	{DumpAllThreads, "threads"},
}

var flagTrie = func() *trie.Trie {
	t := trie.New()
	for _, fn := range flagNames {
		t.Add(fn.name, fn.flag)
	}
	t.Add("none", Flags(0))
	t.Add("default", DefaultFlags)
	t.Add("all", allFlags)
	return t
}()

// FlagNames returns the names accepted by ParseFlags for single flags.
func FlagNames() []string {
	r := make([]string, len(flagNames))
	for i := range flagNames {
		r[i] = flagNames[i].name
	}
	return r
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
			f &^= fn.flag
		}
	}
	if f != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(f)))
	}
	return strings.Join(names, ",")
}

// ParseFlags parses a comma separated list of flag names. Any unambiguous
// prefix of a name is accepted. The names "none", "default" and "all"
// stand for the corresponding sets.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if node, ok := flagTrie.Find(name); ok {
			f |= node.Meta().(Flags)
			continue
		}
		matches := flagTrie.PrefixSearch(name)
		switch len(matches) {
		case 0:
			return 0, fmt.Errorf("unknown report flag %q", name)
		case 1:
			node, _ := flagTrie.Find(matches[0])
			f |= node.Meta().(Flags)
		default:
			return 0, fmt.Errorf("ambiguous report flag %q: could be %s", name, strings.Join(matches, ", "))
		}
	}
	return f, nil
}
