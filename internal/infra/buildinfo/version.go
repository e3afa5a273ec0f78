package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/yndnr/savevault/internal/core/domain"
)

// Build-time variables (set via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info contains build information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`

	// EnvelopeVersion is the envelope version this build writes.
	EnvelopeVersion int `json:"envelope_version" yaml:"envelope_version"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build information.
func Get() Info {
	once.Do(func() {
		info = resolve(Version, Commit, BuildTime)
	})
	return info
}

func resolve(version, commit, buildTime string) Info {
	i := Info{
		Version:         version,
		Commit:          commit,
		BuildTime:       buildTime,
		GoVersion:       runtime.Version(),
		EnvelopeVersion: domain.CurrentVersion,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "unknown" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	return i
}

// Short returns the first 12 characters of a commit hash.
func (i Info) Short() string {
	if len(i.Commit) > 12 {
		return i.Commit[:12]
	}
	return i.Commit
}

// String returns a formatted version string.
func String() string {
	i := Get()
	s := i.Version + " (" + i.Short()
	if i.Modified {
		s += "+dirty"
	}
	return s + ") built at " + i.BuildTime
}
