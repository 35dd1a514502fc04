// Package version provides build information for screenrec.
//
// Version, Commit and Date can be injected at build time:
//
//	go build -ldflags "-X github.com/jmylchreest/screenrec/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/screenrec/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/screenrec/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Without ldflags, Commit and Date fall back to the VCS stamp of the binary.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "screenrec"

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortCommit(commit string) string {
	if len(commit) >= 8 {
		return commit[:8]
	}
	return commit
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	if info.Commit != "unknown" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, shortCommit(info.Commit), info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short returns a short version string suitable for CLI --version output.
func Short() string {
	info := GetInfo()
	if info.Commit != "unknown" {
		return fmt.Sprintf("%s (%s)", info.Version, shortCommit(info.Commit))
	}
	return info.Version
}

// JSON returns the version information as indented JSON.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
