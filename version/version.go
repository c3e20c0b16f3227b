package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Modules whose versions are worth reporting: they talk to remote caches
// and telemetry collectors.
var reportedModules = []string{
	"github.com/redis/go-redis/v9",
	"github.com/aws/aws-sdk-go-v2/service/s3",
	"go.opentelemetry.io/otel",
}

// Info describes one build.
type Info struct {
	Version   string            `json:"version"`
	GitCommit string            `json:"git_commit,omitempty"`
	BuildTime time.Time         `json:"build_time,omitzero"`
	GoVersion string            `json:"go_version"`
	Dirty     bool              `json:"dirty,omitempty"`
	Modules   map[string]string `json:"modules,omitempty"`
}

var buildInfo = sync.OnceValue(func() *debug.BuildInfo {
	bi, _ := debug.ReadBuildInfo()
	return bi
})

// Get returns the version information of the running binary.
func Get() Info {
	return fromBuildInfo(buildInfo(), Version, GitCommit, BuildTime)
}

func fromBuildInfo(bi *debug.BuildInfo, version, commit, buildTime string) Info {
	info := Info{Version: version, GitCommit: commit}
	if t, err := time.Parse(time.RFC3339, buildTime); err == nil {
		info.BuildTime = t.UTC()
	}
	if bi == nil {
		return info
	}

	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					info.BuildTime = t.UTC()
				}
			}
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}

	for _, dep := range bi.Deps {
		for _, path := range reportedModules {
			if dep.Path != path {
				continue
			}
			if info.Modules == nil {
				info.Modules = make(map[string]string)
			}
			v := dep.Version
			if dep.Replace != nil {
				v = dep.Replace.Version
			}
			info.Modules[path] = v
		}
	}
	return info
}

// Short returns "version[-commit][-dirty]".
func (i Info) Short() string {
	parts := []string{i.Version}
	if i.GitCommit != "" {
		parts = append(parts, i.GitCommit)
	}
	if i.Dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "-")
}

// String renders the multi-line --version output.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "buildgraph %s", i.Short())
	if !i.BuildTime.IsZero() {
		fmt.Fprintf(&b, " (built %s)", i.BuildTime.Format(time.RFC3339))
	}
	if i.GoVersion != "" {
		fmt.Fprintf(&b, "\n  go: %s", i.GoVersion)
	}
	for _, path := range reportedModules {
		if v, ok := i.Modules[path]; ok {
			fmt.Fprintf(&b, "\n  %s: %s", path, v)
		}
	}
	return b.String()
}
