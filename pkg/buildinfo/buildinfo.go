package buildinfo

import "runtime"

// These vars are set at build time via ldflags:
// -X github.com/haneul-labs/mailaction/pkg/buildinfo.Version=v0.3.1
// -X github.com/haneul-labs/mailaction/pkg/buildinfo.Commit=1f9c2aa
// -X github.com/haneul-labs/mailaction/pkg/buildinfo.BuildTime=2026-08-20T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for the CLI.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v0.3.1 (1f9c2aa, 2026-08-20T09:00:00Z)"
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", " + i.BuildTime + ")"
}
