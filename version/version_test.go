package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		},
		Deps: []*debug.Module{
			{Path: "github.com/redis/go-redis/v9", Version: "v9.17.2"},
			{Path: "go.opentelemetry.io/otel", Version: "v1.39.0", Replace: &debug.Module{Version: "v1.39.1"}},
			{Path: "github.com/spf13/viper", Version: "v1.21.0"},
		},
	}

	info := fromBuildInfo(bi, "dev", "", "")
	if info.GitCommit != "0123456" || !info.Dirty {
		t.Errorf("unexpected vcs info %+v", info)
	}
	if !info.BuildTime.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("build time = %v", info.BuildTime)
	}
	if info.Modules["go.opentelemetry.io/otel"] != "v1.39.1" {
		t.Errorf("replacement version not used: %v", info.Modules)
	}
	if _, ok := info.Modules["github.com/spf13/viper"]; ok {
		t.Error("unreported module listed")
	}
	if got := info.Short(); got != "dev-0123456-dirty" {
		t.Errorf("Short() = %q", got)
	}
}

func TestFromBuildInfo_LdflagsWin(t *testing.T) {
	bi := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffff"},
		{Key: "vcs.time", Value: "2020-01-01T00:00:00Z"},
	}}
	info := fromBuildInfo(bi, "1.2.0", "abc1234", "2026-05-05T05:05:05Z")
	if info.GitCommit != "abc1234" || info.BuildTime.Year() != 2026 {
		t.Errorf("ldflags values should win: %+v", info)
	}
}

func TestFromBuildInfo_NoBuildInfo(t *testing.T) {
	info := fromBuildInfo(nil, "1.0.0", "", "not a time")
	if info.Short() != "1.0.0" || !info.BuildTime.IsZero() {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.2.0",
		GitCommit: "abc1234",
		BuildTime: time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC),
		GoVersion: "go1.26.0",
		Modules:   map[string]string{"github.com/redis/go-redis/v9": "v9.17.2"},
	}
	want := "buildgraph 1.2.0-abc1234 (built 2026-05-05T05:05:05Z)\n  go: go1.26.0\n  github.com/redis/go-redis/v9: v9.17.2"
	if got := info.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestGet(t *testing.T) {
	if info := Get(); !strings.HasPrefix(info.Short(), Version) {
		t.Errorf("Get().Short() = %q should start with %q", info.Short(), Version)
	}
}
