package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/tinyland-inc/lupos/pkg/config"
)

const Logo = "🐺"

// Set with -ldflags "-X github.com/tinyland-inc/lupos/cmd/lupos/internal.version=...".
var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Time    string
	Go      string
}

// String is "<version>" or "<version> (git: <commit>)".
func (b BuildInfo) String() string {
	if b.Commit == "" {
		return b.Version
	}
	return b.Version + " (git: " + b.Commit + ")"
}

// Build merges the linker-provided values with the VCS stamp the go tool
// embeds, preferring the linker values.
func Build() BuildInfo {
	b := BuildInfo{Version: version, Commit: gitCommit, Time: buildTime, Go: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" && len(s.Value) >= 7 {
				b.Commit = s.Value[:7]
			}
		case "vcs.time":
			if b.Time == "" {
				b.Time = s.Value
			}
		}
	}
	return b
}

// ConfigDir is ~/.lupos, or $LUPOS_HOME when set.
func ConfigDir() string {
	if dir := os.Getenv("LUPOS_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lupos")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(ConfigPath())
}
