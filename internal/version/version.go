// Package version holds build-time version information for the hrassist
// binary. The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/hrassist-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/hrassist-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/hrassist-go/internal/version.BuildDate=2026-10-01"
//
// Without ldflags the values fall back to readable defaults.
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date.
var BuildDate = "unknown"

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("hrassist %s (commit %s, built %s)", Version, Commit, BuildDate)
}
