package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

func writeBootChart(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ftl.yaml"), []byte("prefix: demo\n"), 0o644))

	proxyDir := filepath.Join(root, "proxy")
	require.NoError(t, os.MkdirAll(proxyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proxyDir, "Dockerfile"), []byte("FROM nginx\n"), 0o644))

	apiDir := filepath.Join(root, "api")
	require.NoError(t, os.MkdirAll(apiDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(apiDir, "Dockerfile"), []byte("FROM debian\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(apiDir, "ftl.yaml"), []byte("boot:\n  run:\n    proxy: required\n"), 0o644))
}

type fakeImages struct {
	versions map[string]string
}

func (f *fakeImages) ImageVersion(name, tag string, ignoreNotFound bool) (string, error) {
	return f.versions[name], nil
}

type fakeConverger struct {
	converged []string
}

func (f *fakeConverger) Converge(ctx context.Context, desired, actual *formation.Formation) error {
	for name := range desired.Instances {
		f.converged = append(f.converged, name)
	}
	return nil
}

func TestEnsureBootSetSkipsWhenAlreadyRunning(t *testing.T) {
	root := t.TempDir()
	writeBootChart(t, root)
	g, err := graph.Load(root)
	require.NoError(t, err)

	actual := formation.New("demo")
	actual.Instances["demo.proxy.1"] = &formation.Instance{RuntimeName: "demo.proxy.1", Container: "proxy"}

	conv := &fakeConverger{}
	o := &BootOrchestrator{Graph: g, Images: &fakeImages{}, Converger: conv, Actual: actual}

	require.NoError(t, o.EnsureBootSet(context.Background(), "api", "run"))
	assert.Empty(t, conv.converged)
}

func TestEnsureBootSetStartsMissingMember(t *testing.T) {
	root := t.TempDir()
	writeBootChart(t, root)
	g, err := graph.Load(root)
	require.NoError(t, err)

	actual := formation.New("demo")
	images := &fakeImages{versions: map[string]string{"demo/proxy": "sha256:abc"}}
	conv := &fakeConverger{}
	o := &BootOrchestrator{Graph: g, Images: images, Converger: conv, Actual: actual}

	require.NoError(t, o.EnsureBootSet(context.Background(), "api", "run"))
	assert.Contains(t, conv.converged, "demo.proxy.1")
	assert.Contains(t, actual.Instances, "demo.proxy.1")
}

func TestEnsureBootSetAbortsWhenRequiredImageMissing(t *testing.T) {
	root := t.TempDir()
	writeBootChart(t, root)
	g, err := graph.Load(root)
	require.NoError(t, err)

	actual := formation.New("demo")
	o := &BootOrchestrator{Graph: g, Images: &fakeImages{}, Converger: &fakeConverger{}, Actual: actual}

	err = o.EnsureBootSet(context.Background(), "api", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy")
}
