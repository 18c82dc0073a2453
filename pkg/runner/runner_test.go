package runner

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftlshipyards/ftl/pkg/catalog"
	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/graph"
	"github.com/ftlshipyards/ftl/pkg/tasks"
)

// fakeEngine implements engine.Engine by embedding the nil interface
// and overriding only what the action paths exercise.
type fakeEngine struct {
	engine.Engine

	inspectErr  error
	running     bool
	created     []string
	started     []string
	stopped     []string
	removed     []string
	networkName string
	networkErr  error
}

func (f *fakeEngine) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	if f.inspectErr != nil {
		return types.ContainerJSON{}, f.inspectErr
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    id,
			State: &types.ContainerState{Running: f.running},
		},
	}, nil
}

func (f *fakeEngine) Stop(ctx context.Context, id string, timeout time.Duration) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeEngine) InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error) {
	return types.NetworkResource{}, f.networkErr
}

func (f *fakeEngine) CreateNetwork(ctx context.Context, name string) (string, error) {
	f.networkName = name
	return "net1", nil
}

func (f *fakeEngine) CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error) {
	f.created = append(f.created, name)
	return "cid-" + name, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeEngine) GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeEngine) Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func newTestGraph(t *testing.T) *graph.Graph {
	g := graph.New(graph.Manifest{Prefix: "demo"})
	return g
}

func TestStopActionNoOpWhenNotRunning(t *testing.T) {
	eng := &fakeEngine{running: false}
	r := New(eng, newTestGraph(t), catalog.NewBus(), nil, tasks.NewTree(func(string) {}), logrus.NewEntry(logrus.New()), nil)

	inst := &formation.Instance{RuntimeName: "demo.api.1", Container: "api"}
	err := r.StopAction(context.Background(), inst)
	require.NoError(t, err)
	assert.Empty(t, eng.stopped)
}

func TestStopActionStopsRunningContainer(t *testing.T) {
	eng := &fakeEngine{running: true}
	r := New(eng, newTestGraph(t), catalog.NewBus(), nil, tasks.NewTree(func(string) {}), logrus.NewEntry(logrus.New()), nil)

	inst := &formation.Instance{RuntimeName: "demo.api.1", Container: "api"}
	err := r.StopAction(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo.api.1"}, eng.stopped)
}

func TestDeltaComputesStopAndStart(t *testing.T) {
	desired := formation.New("demo")
	desired.Instances["demo.api.1"] = &formation.Instance{RuntimeName: "demo.api.1", Container: "api", ImageID: "v2"}

	actual := formation.New("demo")
	actual.Instances["demo.api.1"] = &formation.Instance{RuntimeName: "demo.api.1", Container: "api", ImageID: "v1"}
	actual.Instances["demo.old.1"] = &formation.Instance{RuntimeName: "demo.old.1", Container: "old", ImageID: "v1"}

	toStop, toStart := Delta(desired, actual)

	var stopped, started []string
	for _, i := range toStop {
		stopped = append(stopped, i.RuntimeName)
	}
	for _, i := range toStart {
		started = append(started, i.RuntimeName)
	}

	assert.ElementsMatch(t, []string{"demo.api.1", "demo.old.1"}, stopped)
	assert.ElementsMatch(t, []string{"demo.api.1"}, started)
}

func TestRunWorkersDetectsDeadlock(t *testing.T) {
	a := &formation.Instance{RuntimeName: "a", Links: map[string]string{"b": "b"}}
	b := &formation.Instance{RuntimeName: "b", Links: map[string]string{"a": "a"}}

	err := runWorkers([]*formation.Instance{a, b}, startReady, func(i *formation.Instance) error {
		return nil
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}

func TestRunWorkersOrdersByReadiness(t *testing.T) {
	a := &formation.Instance{RuntimeName: "a"}
	b := &formation.Instance{RuntimeName: "b", Links: map[string]string{"a": "a"}}

	var order []string
	err := runWorkers([]*formation.Instance{b, a}, startReady, func(i *formation.Instance) error {
		order = append(order, i.RuntimeName)
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRunWaitsResolvesTCPAgainstPublishedHostPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, hostPort, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	eng := &fakeEngine{running: true}
	r := New(eng, newTestGraph(t), catalog.NewBus(), nil, tasks.NewTree(func(string) {}), logrus.NewEntry(logrus.New()), nil)

	c := &graph.Container{
		Name:  "api",
		Ports: map[string]string{"8080": hostPort},
		Waits: []graph.Wait{{Type: "tcp", Params: map[string]interface{}{"port": "8080"}}},
	}

	err = r.runWaits(context.Background(), c, "cid-api", nil)
	assert.NoError(t, err)
}

func TestRunWaitsRunsInRegistrationOrder(t *testing.T) {
	eng := &fakeEngine{running: true}
	r := New(eng, newTestGraph(t), catalog.NewBus(), nil, tasks.NewTree(func(string) {}), logrus.NewEntry(logrus.New()), nil)

	c := &graph.Container{
		Name: "api",
		Waits: []graph.Wait{
			{Type: "time", Params: map[string]interface{}{"seconds": 0}},
			{Type: "time", Params: map[string]interface{}{"seconds": 0}},
		},
	}

	err := r.runWaits(context.Background(), c, "cid-api", nil)
	assert.NoError(t, err)
}

func TestRunWaitsRaisesBootFailureOnDeadContainer(t *testing.T) {
	eng := &fakeEngine{running: false}
	r := New(eng, newTestGraph(t), catalog.NewBus(), nil, tasks.NewTree(func(string) {}), logrus.NewEntry(logrus.New()), nil)

	c := &graph.Container{
		Name:  "api",
		Waits: []graph.Wait{{Type: "tcp", Params: map[string]interface{}{"port": "8080"}}},
	}

	err := r.runWaits(context.Background(), c, "cid-api", nil)
	require.Error(t, err)
	var bootErr *ftlerr.ContainerBootFailure
	assert.ErrorAs(t, err, &bootErr)
}

func TestBuildWaitRejectsUnknownType(t *testing.T) {
	_, err := buildWait(graph.Wait{Type: "smoke"}, &graph.Container{}, "cid", nil)
	assert.Error(t, err)
}
