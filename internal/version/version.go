// Package version carries build-time version metadata.
package version

// Version is set via build-time ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/pagepress/internal/version.Version=v1.2.0".
var Version = "dev"

// Build metadata, also injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
