package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func restore(t *testing.T) {
	t.Helper()
	v, c, b := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = v, c, b })
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.Commit != Commit || info.BuildTime != BuildTime {
		t.Errorf("Get() = %+v, want package values", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	restore(t)
	Version, Commit, BuildTime = "v1.2.0", "abc123", "2026-01-02T03:04:05Z"
	if got, want := String(), "v1.2.0 (abc123) built at 2026-01-02T03:04:05Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := UserAgent("redolog-cli"); got != "redolog-cli/v1.2.0" {
		t.Errorf("UserAgent() = %q, want redolog-cli/v1.2.0", got)
	}
}

func TestFromVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	t.Run("unset", func(t *testing.T) {
		restore(t)
		Commit, BuildTime = "unknown", "unknown"
		fromVCS(settings)
		if Commit != "0123456789ab-dirty" {
			t.Errorf("Commit = %q, want 0123456789ab-dirty", Commit)
		}
		if BuildTime != "2026-05-01T10:00:00Z" {
			t.Errorf("BuildTime = %q", BuildTime)
		}
	})

	t.Run("ldflags win", func(t *testing.T) {
		restore(t)
		Commit, BuildTime = "release", "yesterday"
		fromVCS(settings)
		if Commit != "release" || BuildTime != "yesterday" {
			t.Errorf("Commit, BuildTime = %q, %q; ldflags values overwritten", Commit, BuildTime)
		}
	})

	t.Run("clean tree", func(t *testing.T) {
		restore(t)
		Commit = "unknown"
		fromVCS(settings[:1])
		if strings.HasSuffix(Commit, "-dirty") {
			t.Errorf("Commit = %q, want no dirty suffix", Commit)
		}
	})
}
