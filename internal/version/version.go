// Package version exposes the build identity stamped at release time:
//
//	go build -ldflags "-X github.com/rickgao/kalshi-trader/internal/version.Version=0.4.0 \
//	                   -X github.com/rickgao/kalshi-trader/internal/version.Commit=$(git rev-parse --short HEAD)"
//
// Unstamped binaries fall back to the VCS revision recorded by the Go
// toolchain, so `go run` builds still identify themselves.
package version

import "runtime/debug"

var (
	// Version is the release tag, "dev" when unstamped.
	Version = "dev"

	// Commit is the short git hash.
	Commit = ""
)

func init() {
	if Commit != "" {
		return
	}
	Commit = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			Commit = s.Value
			if len(Commit) > 12 {
				Commit = Commit[:12]
			}
			return
		}
	}
}
