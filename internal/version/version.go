// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the release of sonar-render.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version and startup logs.
func String() string {
	return fmt.Sprintf("sonar-render %s (%s, built %s)", Version, GitSHA, BuildTime)
}
