// Package buildinfo carries version metadata stamped at build time via
// -ldflags.
package buildinfo

// Build metadata, overridden by the release pipeline.
var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = ""
	// BuildDate is the UTC build timestamp.
	BuildDate = ""
)
