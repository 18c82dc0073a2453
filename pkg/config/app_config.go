// Package config handles FTL's own configuration: the CLI-invocation
// metadata, the location of the per-prefix state directory under
// ~/.ftl, and environment variables recognized by the core (see
// spec §6 "Environment variables recognized by the core").
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPeeDeeP/xdg"
)

// AppConfig carries process-wide invocation metadata, mirroring the
// teacher's AppConfig: build info plus the resolved state directory.
type AppConfig struct {
	Name        string
	Version     string
	Commit      string
	BuildDate   string
	BuildSource string
	Debug       bool

	// HomeDir is ~/.ftl — the root of the persisted chart registry (see
	// spec §6 "Persisted chart registry").
	HomeDir string

	// ChartPath is the directory passed on the command line (or cwd),
	// the root of the chart being operated on (ftl.yaml lives here).
	ChartPath string
}

// NewAppConfig mirrors config.NewAppConfig: resolves (and creates) the
// state directory and stamps build metadata.
func NewAppConfig(name, version, commit, date, buildSource string, debug bool, chartPath string) (*AppConfig, error) {
	homeDir, err := findOrCreateHomeDir(name)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Name:        name,
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		BuildSource: buildSource,
		Debug:       debug || os.Getenv("DEBUG") == "TRUE",
		HomeDir:     homeDir,
		ChartPath:   chartPath,
	}, nil
}

func findOrCreateHomeDir(name string) (string, error) {
	folder := homeDirFor(name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	return folder, nil
}

func homeDirFor(name string) string {
	if envDir := os.Getenv("FTL_HOME"); envDir != "" {
		return envDir
	}
	dirs := xdg.New("", name)
	return filepath.Join(filepath.Dir(dirs.ConfigHome()), "."+name)
}

// ChartsRegistryFile is ~/.ftl/charts.yaml (spec §6).
func (c *AppConfig) ChartsRegistryFile() string {
	return filepath.Join(c.HomeDir, "charts.yaml")
}

// PrefixDir is ~/.ftl/{prefix} — where per-chart state (user profile,
// build log, registry credentials) is kept.
func (c *AppConfig) PrefixDir(prefix string) string {
	return filepath.Join(c.HomeDir, prefix)
}

func (c *AppConfig) UserProfilePath(prefix string) string {
	return filepath.Join(c.PrefixDir(prefix), "user_profile.yaml")
}

func (c *AppConfig) BuildLogPath(prefix string) string {
	return filepath.Join(c.PrefixDir(prefix), "build.log")
}

func (c *AppConfig) DockerCredsPath(prefix string) string {
	return filepath.Join(c.PrefixDir(prefix), "docker-creds")
}

func (c *AppConfig) AWSTokenPath(prefix string) string {
	return filepath.Join(c.PrefixDir(prefix), "aws-token")
}

// EnsurePrefixDir creates ~/.ftl/{prefix} if it doesn't exist yet.
func (c *AppConfig) EnsurePrefixDir(prefix string) (string, error) {
	dir := c.PrefixDir(prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// VolumeHome returns the override root for bind-mount sources, honoring
// FTL_VOLUME_HOME (spec §6).
func VolumeHome(chartPath string) string {
	if v := os.Getenv("FTL_VOLUME_HOME"); v != "" {
		return v
	}
	return chartPath
}

// PreserveSrcMtime reports whether FTL_BUILD_SRC_REAL_TIME is set (spec
// §4.7: preserve real mtimes under /src/ in the deterministic build
// context).
func PreserveSrcMtime() bool {
	return os.Getenv("FTL_BUILD_SRC_REAL_TIME") != ""
}

// NoRegistry reports whether FTL_NO_REGISTRY is set, permitting a chart
// with no configured registry to proceed without pulling (spec §6).
func NoRegistry() bool {
	return os.Getenv("FTL_NO_REGISTRY") != ""
}

// HTTPTimeoutSeconds returns FTL_HTTP_TIMEOUT, or 0 if unset (engine
// client default applies).
func HTTPTimeoutSeconds() int {
	return envInt("FTL_HTTP_TIMEOUT", 0)
}

// StatusFields returns the dotted field paths FTL_STATUS_FIELDS names
// (comma-separated), each looked up against a container's raw inspect
// result and appended to its `ps`/`status` row — e.g.
// "State.Health.Status,Config.Image" — or nil if unset.
func StatusFields() []string {
	raw := os.Getenv("FTL_STATUS_FIELDS")
	if raw == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
