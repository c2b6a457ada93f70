// Package version exposes driftwatch build metadata.
package version

import (
	"fmt"
	"runtime"
)

// Populated at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GoVersion is the Go toolchain the binary was built with.
var GoVersion = runtime.Version()

// String returns a single-line version summary.
func String() string {
	return fmt.Sprintf("driftwatch %s (commit %s, built %s, %s)", Version, GitCommit, BuildDate, GoVersion)
}
