// Package version reports the build version of the occupancy node.
package version

import (
	"fmt"
	"runtime/debug"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/sweeney/occupancy-node/internal/version.Version=v1.2.3 \
//	                   -X github.com/sweeney/occupancy-node/internal/version.Commit=abc123"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			Commit = commitFromSettings(info.Settings)
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func commitFromSettings(settings []debug.BuildSetting) string {
	var rev, modified string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev == "" {
		return ""
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if modified == "true" {
		rev += "-dirty"
	}
	return rev
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
