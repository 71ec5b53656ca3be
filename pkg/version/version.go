// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Name is the service name reported in logs, bus connection names and /version.
const Name = "framecast"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/zsiec/framecast/pkg/version.Version=1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the JSON shape served by /version.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the version information of the running binary.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("Framecast %s (commit: %s, built: %s, go: %s, platform: %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns "Framecast <version>".
func (i Info) Short() string {
	return fmt.Sprintf("Framecast %s", i.Version)
}

// ClientName identifies this process on the bus, e.g. "framecast-dev@cam1".
func ClientName(instance string) string {
	if instance == "" {
		return fmt.Sprintf("%s-%s", Name, Version)
	}
	return fmt.Sprintf("%s-%s@%s", Name, Version, instance)
}
