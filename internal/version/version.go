// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info is the version block reported by the HTTP health endpoint.
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}
}

// String formats the build information for -version output.
func String() string {
	return fmt.Sprintf("receipt-geometry %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
