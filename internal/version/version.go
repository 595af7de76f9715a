// Package version reports the daemon build version.
package version

import (
	"fmt"
	"runtime/debug"
)

// Overridable at build time via -ldflags "-X ...".
var (
	// Version is the release version, "dev" for untagged builds.
	Version = "dev"
	// CommitHash is the git revision the binary was built from.
	CommitHash = ""
	// BuildTime is when the binary was built.
	BuildTime = ""
)

// GetInfo returns the version string, with a short commit hash when one
// is known. Binaries built without ldflags fall back to the VCS info
// stamped by the Go toolchain.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					CommitHash = setting.Value
				case "vcs.time":
					BuildTime = setting.Value
				}
			}
		}
	}

	if CommitHash == "" {
		return Version
	}
	shortHash := CommitHash
	if len(shortHash) > 7 {
		shortHash = shortHash[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, shortHash)
}
