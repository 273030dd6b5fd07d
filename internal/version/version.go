// Package version carries build metadata, set with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/rofex-data/internal/version.Version=1.2.0 \
//	                   -X github.com/rickgao/rofex-data/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata reported on /stats and by ledgertool.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a one-line version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
