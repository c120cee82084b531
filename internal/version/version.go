// Package version holds the build-time version variables for the sgguard
// binary. The zero values ("dev", "none", "unknown") are used for local builds.
// Release builds inject the real values via -ldflags.
package version

import "fmt"

// These variables are overridden by -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the formatted version string printed by sgguard version.
func Info() string {
	return fmt.Sprintf(
		"sgguard version %s\ncommit: %s\nbuilt: %s\n",
		Version,
		Commit,
		Date,
	)
}

// UserAgent identifies this build in AWS API calls.
func UserAgent() string {
	return "sgguard/" + Version
}
