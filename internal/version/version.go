// Package version reports the parley build. Release builds stamp the
// variables with -ldflags "-X github.com/rbright/parley/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line banner printed by `parley version`. Unstamped
// builds fall back to the VCS revision Go embedded at build time.
func String() string {
	commit, date := Commit, Date
	if commit == "none" {
		if rev, at, ok := vcsStamp(); ok {
			commit, date = rev, at
		}
	}
	return fmt.Sprintf("parley %s (commit=%s, date=%s, go=%s)", Version, commit, date, runtime.Version())
}

func vcsStamp() (rev, at string, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	if rev == "" {
		return "", "", false
	}
	if at == "" {
		at = "unknown"
	}
	return rev, at, true
}
