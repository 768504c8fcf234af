package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/yndnr/redolog-go/internal/infra/buildinfo.Version=v1.2.0".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromVCS(bi.Settings)
	}
}

// fromVCS fills Commit and BuildTime from the toolchain's VCS stamp when
// ldflags left them unset. A modified work tree marks the commit dirty.
func fromVCS(settings []debug.BuildSetting) {
	var rev, at string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.time":
			at = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if Commit == "unknown" && rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if dirty {
			rev += "-dirty"
		}
		Commit = rev
	}
	if BuildTime == "unknown" && at != "" {
		BuildTime = at
	}
}

// Info is the build stamp as reported by `redolog-cli version`.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: GoVersion}
}

// String formats the stamp for --version output.
func String() string {
	return Version + " (" + Commit + ") built at " + BuildTime
}

// UserAgent returns the User-Agent a binary named name sends.
func UserAgent(name string) string {
	return name + "/" + Version
}
