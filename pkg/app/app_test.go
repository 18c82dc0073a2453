package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftlshipyards/ftl/pkg/config"
)

func writeMinimalChart(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ftl.yaml"), []byte("prefix: demo\n"), 0o644))

	apiDir := filepath.Join(root, "api")
	require.NoError(t, os.MkdirAll(apiDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(apiDir, "Dockerfile"), []byte("FROM debian\n"), 0o644))
	return root
}

func TestNewAppLoadsGraphAndWiresCollaborators(t *testing.T) {
	root := writeMinimalChart(t)
	t.Setenv("FTL_HOME", t.TempDir())

	cfg, err := config.NewAppConfig("ftl", "test", "abc123", "2026-01-01", "source", false, root)
	require.NoError(t, err)

	a, err := NewApp(cfg)
	require.NoError(t, err)

	assert.NotNil(t, a.Graph)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Images)
	assert.NotNil(t, a.Builder)
	assert.NotNil(t, a.Runner)
	assert.NotNil(t, a.Hooks)
	assert.NotNil(t, a.Catalog)
	assert.Equal(t, "demo", a.Graph.Prefix)
	assert.NotNil(t, a.Graph.Container("api"))
}

func TestProfilesDirIsUnderChartPath(t *testing.T) {
	root := writeMinimalChart(t)
	t.Setenv("FTL_HOME", t.TempDir())

	cfg, err := config.NewAppConfig("ftl", "test", "abc123", "2026-01-01", "source", false, root)
	require.NoError(t, err)

	a, err := NewApp(cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "profiles"), a.profilesDir())
}
