package modules

import (
	"fmt"
	"os"

	"github.com/go-delve/crashwalk/pkg/logflags"
)

func mapsPath(pid int) string {
	if pid == 0 {
		return "/proc/self/maps"
	}
	return fmt.Sprintf("/proc/%d/maps", pid)
}

// Enumerate returns a point in time list of the modules mapped in the
// address space of process pid. If pid is 0 the current process is used.
func Enumerate(pid int) (List, error) {
	ranges, err := EnumerateRanges(pid)
	if err != nil {
		return nil, err
	}
	l := Build(ranges)
	if logflags.Modules() {
		logflags.ModulesLogger().Debugf("enumerated %d modules from %s", len(l), mapsPath(pid))
	}
	return l, nil
}

// EnumerateRanges returns the mappings of process pid without coalescing
// them into modules. If pid is 0 the current process is used.
func EnumerateRanges(pid int) ([]Range, error) {
	f, err := os.Open(mapsPath(pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRanges(f)
}
