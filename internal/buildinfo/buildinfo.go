// Package buildinfo holds version information injected at build time via ldflags.
package buildinfo

// Set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/ruteo-noc/ruteo/internal/buildinfo.Version=1.0.0 ..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line human-readable build description for startup logs.
func String() string {
	return Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
