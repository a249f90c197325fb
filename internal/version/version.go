package version

var (
	// Version is the semantic version of signalbot. Overridden at build time
	// via -ldflags "-X .../internal/version.Version=...".
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// String returns a single-line build description.
func String() string {
	return Version + " (" + Commit + ", " + BuildDate + ")"
}
