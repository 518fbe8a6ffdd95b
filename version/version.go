// Package version exposes build metadata injected at link time.
//
//	go build -ldflags "-X github.com/jackzampolin/rfptriage/version.GitRelease=v0.3.0 ..."
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitRelease is the release tag the binary was built from.
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit date in RFC3339.
	GitCommitDate = "unknown"
	// GoInfo describes the toolchain and platform.
	GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)

// String returns a one-line version summary.
func String() string {
	return fmt.Sprintf("%s (%s)", GitRelease, shortCommit())
}

func shortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}
