// pkg/version/version.go
// Package version provides build metadata for the fileops binary.
package version

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of fileops.
	Version = "dev"
	// Commit holds the commit the binary was built from.
	Commit = "none"
	// BuildDate holds the build date of fileops.
	BuildDate = "unknown"
	// StartDate holds the time the process started.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("fileops %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns version information as a Struct.
func Get() Struct {
	return Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Semver parses Version. Development builds report false.
func Semver() (*semver.Version, bool) {
	if Version == "" || Version == "dev" {
		return nil, false
	}
	v, err := semver.NewVersion(strings.TrimPrefix(Version, "v"))
	if err != nil {
		return nil, false
	}
	return v, true
}

// SameMajor reports whether the engine shares the CLI's major version.
// Development builds match any engine.
func SameMajor(engine *semver.Version) bool {
	cli, ok := Semver()
	if !ok || engine == nil {
		return true
	}
	return cli.Major() == engine.Major()
}
