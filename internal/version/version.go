package version

// Set at build time with -ldflags "-X bandwatch/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

func String() string {
	return Version + " (commit: " + Commit + ")"
}
