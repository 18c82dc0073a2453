package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAppConfigUsesFTLHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FTL_HOME", dir)

	cfg, err := NewAppConfig("ftl", "1.2.3", "abc123", "2024-01-01", "source", false, "/chart")
	assert.NoError(t, err)
	assert.Equal(t, dir, cfg.HomeDir)
	assert.Equal(t, filepath.Join(dir, "charts.yaml"), cfg.ChartsRegistryFile())
	assert.Equal(t, filepath.Join(dir, "demo", "user_profile.yaml"), cfg.UserProfilePath("demo"))
}

func TestVolumeHomeOverride(t *testing.T) {
	t.Setenv("FTL_VOLUME_HOME", "/override")
	assert.Equal(t, "/override", VolumeHome("/chart"))

	t.Setenv("FTL_VOLUME_HOME", "")
	assert.Equal(t, "/chart", VolumeHome("/chart"))
}

func TestPreserveSrcMtime(t *testing.T) {
	t.Setenv("FTL_BUILD_SRC_REAL_TIME", "")
	assert.False(t, PreserveSrcMtime())

	t.Setenv("FTL_BUILD_SRC_REAL_TIME", "1")
	assert.True(t, PreserveSrcMtime())
}
