// pkg/version/version_test.go
package version

import (
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
)

func TestInfo_ReturnsFormattedString(t *testing.T) {
	// vars set at build-time, here using default "dev"
	info := Info()

	if !strings.Contains(info, "fileops") {
		t.Errorf("Expected info to contain 'fileops', got: %s", info)
	}
	if !strings.Contains(info, Version) {
		t.Errorf("Expected info to contain version '%s'", Version)
	}
	if !strings.Contains(info, Commit) {
		t.Errorf("Expected info to contain commit '%s'", Commit)
	}
	if !strings.Contains(info, BuildDate) {
		t.Errorf("Expected info to contain build date '%s'", BuildDate)
	}
}

func TestGet_ReturnsCorrectStruct(t *testing.T) {
	v := Get()

	if v.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, v.Version)
	}
	if v.Commit != Commit {
		t.Errorf("Expected commit %s, got %s", Commit, v.Commit)
	}
	if v.BuildDate != BuildDate {
		t.Errorf("Expected build date %s, got %s", BuildDate, v.BuildDate)
	}
	if v.GoVersion == "" || !strings.Contains(v.Platform, "/") {
		t.Errorf("Expected runtime details, got %+v", v)
	}
}

func TestStartDate_IsInitialized(t *testing.T) {
	if time.Since(StartDate) > time.Minute {
		t.Errorf("StartDate is too old: %s", StartDate)
	}
}

func TestSemver_DevBuild(t *testing.T) {
	if _, ok := Semver(); ok {
		t.Errorf("Expected dev build to have no semver")
	}
	if !SameMajor(semver.MustParse("9.0.0")) {
		t.Errorf("Expected dev build to match any engine")
	}
}

func TestSameMajor(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "v1.4.2"
	if !SameMajor(semver.MustParse("1.9.0")) {
		t.Errorf("Expected 1.x engines to match")
	}
	if SameMajor(semver.MustParse("2.0.0")) {
		t.Errorf("Expected 2.x engine not to match")
	}
}
