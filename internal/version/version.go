// Package version holds build metadata, set with -ldflags at release time:
//
//	go build -ldflags "-X github.com/banshee-data/invertfield/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata on one line.
func String() string {
	return fmt.Sprintf("invertfield %s (%s, built %s)", Version, GitSHA, BuildTime)
}
