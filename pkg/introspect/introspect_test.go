package introspect

import (
	"context"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// fakeEngine implements engine.Engine by embedding the nil interface
// and overriding only the methods introspection calls; any other
// method panics if invoked, which would indicate a test gap.
type fakeEngine struct {
	engine.Engine
	containers []types.Container
	details    map[string]types.ContainerJSON
}

func (f *fakeEngine) Containers(ctx context.Context, all bool, filters map[string]string) ([]types.Container, error) {
	return f.containers, nil
}

func (f *fakeEngine) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	return f.details[id], nil
}

type fakeResolver struct{}

func (fakeResolver) Digest(name, tag string) (string, error) { return "sha256:resolved", nil }

func TestIntrospectSkipsContainersWithoutIdentityLabel(t *testing.T) {
	eng := &fakeEngine{
		containers: []types.Container{
			{
				ID:     "c1",
				Labels: map[string]string{},
				NetworkSettings: &types.SummaryNetworkSettings{
					Networks: map[string]*network.EndpointSettings{"demo": {}},
				},
			},
		},
	}

	g := graph.New(graph.Manifest{Prefix: "demo"})
	f, err := Introspect(context.Background(), eng, g, fakeResolver{}, "demo", logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	assert.Empty(t, f.Instances)
}

func TestIntrospectBuildsInstanceForIdentifiedContainer(t *testing.T) {
	eng := &fakeEngine{
		containers: []types.Container{
			{
				ID:     "c1",
				Labels: map[string]string{engine.IdentityLabel: "api"},
				NetworkSettings: &types.SummaryNetworkSettings{
					Networks: map[string]*network.EndpointSettings{"demo": {}},
				},
			},
		},
		details: map[string]types.ContainerJSON{
			"c1": {
				ContainerJSONBase: &types.ContainerJSONBase{
					ID:   "c1",
					Name: "/demo.api.1",
					Image: "sha256:deadbeef",
				},
				NetworkSettings: &types.NetworkSettings{
					Networks: map[string]*network.EndpointSettings{
						"demo": {IPAddress: "10.0.0.5"},
					},
				},
			},
		},
	}

	g := graph.New(graph.Manifest{Prefix: "demo"})
	f, err := Introspect(context.Background(), eng, g, fakeResolver{}, "demo", logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.Contains(t, f.Instances, "demo.api.1")
	inst := f.Instances["demo.api.1"]
	assert.Equal(t, "api", inst.Container)
	assert.Equal(t, "sha256:deadbeef", inst.ImageID)
	assert.Equal(t, "10.0.0.5", inst.IPAddress)
}

func TestParseLinks(t *testing.T) {
	links := parseLinks([]string{"/demo.db.1:/demo.api.1/db"})
	assert.Equal(t, map[string]string{"db": "demo.db.1"}, links)
}
