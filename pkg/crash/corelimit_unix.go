//go:build unix

package crash

import (
	"golang.org/x/sys/unix"

	"github.com/go-delve/crashwalk/pkg/logflags"
)

// CoreLimitListener returns a FlagListener raising the core file size
// limit to its maximum when GenerateCore is set and restoring it when
// GenerateCore is cleared.
func CoreLimitListener() FlagListener {
	var saved *unix.Rlimit
	return func(added, removed Flags) {
		log := logflags.CrashLogger()
		switch {
		case added&GenerateCore != 0:
			var lim unix.Rlimit
			if err := unix.Getrlimit(unix.RLIMIT_CORE, &lim); err != nil {
				log.Warnf("could not read core limit: %v", err)
				return
			}
			prev := lim
			lim.Cur = lim.Max
			if err := unix.Setrlimit(unix.RLIMIT_CORE, &lim); err != nil {
				log.Warnf("could not raise core limit: %v", err)
				return
			}
			saved = &prev
		case removed&GenerateCore != 0 && saved != nil:
			if err := unix.Setrlimit(unix.RLIMIT_CORE, saved); err != nil {
				log.Warnf("could not restore core limit: %v", err)
			}
			saved = nil
		}
	}
}

// platformListeners are installed on every subsystem by Init.
func platformListeners() []FlagListener {
	return []FlagListener{CoreLimitListener()}
}
