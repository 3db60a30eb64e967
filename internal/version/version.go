// Package version holds build-time version information for the contentgw
// binaries, injected via -ldflags:
//
// -X github.com/connectlist/contentgw/internal/version.Version=v0.1.0
// -X github.com/connectlist/contentgw/internal/version.Commit=abc1234
// -X github.com/connectlist/contentgw/internal/version.Date=2026-02-25T00:00:00Z
//
// so local builds without ldflags still produce sensible output.
package version

import "fmt"

// Variables set at link time. Default to dev values
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human-readable version string, e.g.:
//
// v0.1.0 (commit abc1234, built 2026-02-25T12:00:00Z)
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// Short returns just the version tag, e.g. "v0.1.0" or "dev".
func Short() string {
	return Version
}

// BuildInfo is the JSON form reported by /health and `contentgw-cli version -o json`.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the link-time values as a BuildInfo.
func Info() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, Date: Date}
}
