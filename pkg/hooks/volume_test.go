package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftlshipyards/ftl/pkg/build"
	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

func writeVolumeChart(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ftl.yaml"), []byte("prefix: demo\n"), 0o644))

	providerDir := filepath.Join(root, "assets-volume")
	require.NoError(t, os.MkdirAll(providerDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(providerDir, "Dockerfile"), []byte("FROM debian\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(providerDir, "ftl.yaml"), []byte("provides-volume: assets\n"), 0o644))

	webDir := filepath.Join(root, "web")
	require.NoError(t, os.MkdirAll(webDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "Dockerfile"), []byte("FROM nginx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "ftl.yaml"), []byte("volumes:\n  /assets: assets\n"), 0o644))
}

type fakeVolumeEngine struct {
	engine.Engine
	inspected  volume.Volume
	inspectErr error
	removed    []string
	created    map[string]map[string]string
	started    []string
}

func (f *fakeVolumeEngine) InspectVolume(ctx context.Context, name string) (volume.Volume, error) {
	return f.inspected, f.inspectErr
}

func (f *fakeVolumeEngine) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeVolumeEngine) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	if f.created == nil {
		f.created = make(map[string]map[string]string)
	}
	f.created[name] = labels
	return nil
}

func (f *fakeVolumeEngine) CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error) {
	return "cid-" + name, nil
}

func (f *fakeVolumeEngine) Start(ctx context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeVolumeEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	return nil
}

func (f *fakeVolumeEngine) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{State: &types.ContainerState{Running: false}},
	}, nil
}

type stoppedTracker struct {
	stopped []string
}

func (s *stoppedTracker) StopAction(ctx context.Context, i *formation.Instance) error {
	s.stopped = append(s.stopped, i.RuntimeName)
	return nil
}

func TestVolumeProviderHookSkipsWhenAlreadyCurrent(t *testing.T) {
	root := t.TempDir()
	writeVolumeChart(t, root)
	g, err := graph.Load(root)
	require.NoError(t, err)

	eng := &fakeVolumeEngine{inspected: volume.Volume{Labels: map[string]string{build.BuildIDLabel: "sha256:current"}}}
	actual := formation.New("demo")
	stopper := &stoppedTracker{}
	h := &VolumeProviderHook{Engine: eng, Graph: g, Actual: actual, Stopper: stopper, Log: logrus.NewEntry(logrus.New())}

	require.NoError(t, h.Run(context.Background(), "assets-volume", "sha256:current"))
	assert.Empty(t, stopper.stopped)
	assert.Empty(t, eng.removed)
}

func TestVolumeProviderHookStopsConsumersOnRebuild(t *testing.T) {
	root := t.TempDir()
	writeVolumeChart(t, root)
	g, err := graph.Load(root)
	require.NoError(t, err)

	eng := &fakeVolumeEngine{inspectErr: assert.AnError}
	actual := formation.New("demo")
	actual.Instances["demo.web.1"] = &formation.Instance{RuntimeName: "demo.web.1", Container: "web"}
	stopper := &stoppedTracker{}
	h := &VolumeProviderHook{Engine: eng, Graph: g, Actual: actual, Stopper: stopper, Log: logrus.NewEntry(logrus.New())}

	require.NoError(t, h.Run(context.Background(), "assets-volume", "sha256:new"))
	assert.Equal(t, []string{"demo.web.1"}, stopper.stopped)
	assert.NotContains(t, actual.Instances, "demo.web.1")
}
