package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version represents the current version of crashwalk.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// CrashwalkVersion is the current version of crashwalk.
var CrashwalkVersion = Version{
	Major: "0", Minor: "3", Patch: "1", Metadata: "",
	Build: "$Id$",
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

func (v Version) String() string {
	if v.Build == "" || strings.HasPrefix(v.Build, "$Id") {
		v.Build = vcsBuild()
	}
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

// vcsBuild returns the revision recorded by the go command, marked dirty
// when the working tree had local changes, or "unknown".
func vcsBuild() string {
	info, ok := readBuildInfo()
	if !ok {
		return "unknown"
	}
	var rev, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if rev == "" {
		return "unknown"
	}
	if modified == "true" {
		rev += "-dirty"
	}
	return rev
}

// BuildInfo returns the Go version, the main module and the module
// dependencies crashwalk was built with, one per line.
func BuildInfo() string {
	var b strings.Builder
	b.WriteString(runtime.Version())
	b.WriteByte('\n')
	info, ok := readBuildInfo()
	if !ok {
		b.WriteString("no module information\n")
		return b.String()
	}
	module := func(kind string, m *debug.Module) {
		fmt.Fprintf(&b, "%-4s %s %s", kind, m.Path, m.Version)
		if r := m.Replace; r != nil {
			fmt.Fprintf(&b, " => %s", r.Path)
			if r.Version != "" {
				fmt.Fprintf(&b, " %s", r.Version)
			}
		}
		b.WriteByte('\n')
	}
	module("main", &info.Main)
	for _, dep := range info.Deps {
		module("dep", dep)
	}
	return b.String()
}
