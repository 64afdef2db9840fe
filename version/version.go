// Package version holds build information injected at link time.
package version

import "runtime"

// Populated via -ldflags at build time.
var (
	// GitRelease is the release tag (e.g. v0.3.1) or "dev" for local builds.
	GitRelease = "dev"

	// GitCommit is the short commit hash.
	GitCommit = "unknown"

	// GitCommitDate is the commit date in RFC 3339 format.
	GitCommitDate = "unknown"
)

// GoInfo reports the Go toolchain used for the build.
var GoInfo = runtime.Version()
