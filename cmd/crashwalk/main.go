package main

import (
	"os"

	"github.com/go-delve/crashwalk/cmd/crashwalk/cmds"
	"github.com/go-delve/crashwalk/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.CrashwalkVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
