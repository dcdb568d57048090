// Package version reports the build identity of the jseries binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at link time with -ldflags "-X github.com/Sumatoshi-tech/jseries/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Get returns the link-time values, filling gaps from the embedded module
// build information.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	return fill(info, bi)
}

func fill(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "<unknown>" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}

	return info
}

func (i Info) String() string {
	date := i.Date
	if date == "" {
		date = "unknown"
	}

	return fmt.Sprintf("jseries %s (commit: %s, built: %s)", i.Version, i.Commit, date)
}
