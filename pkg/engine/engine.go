// Package engine is the thin container-engine client wrapper spec §6
// assumes: containers/inspect/create/start/stop/build/pull/push/
// get_archive/put_archive/logs/version/ping/prune/login, over the
// docker engine API. Client construction follows the teacher's
// NewDockerCommand (pkg/commands/docker.go): client.NewClientWithOpts
// with client.FromEnv so DOCKER_HOST/DOCKER_CERT_PATH (spec §6's
// recognized environment variables) are honored without extra code.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/ftlshipyards/ftl/pkg/config"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
)

// APIVersion pins the engine API version this client negotiates,
// mirroring the teacher's own APIVersion constant.
const APIVersion = "1.41"

// IdentityLabel is the label every container this system creates
// carries, per spec §6: "Each container created by this system
// carries a label container-identity = container's in-graph name."
const IdentityLabel = "container-identity"

// Engine is the capability surface the rest of FTL depends on. The
// concrete *Client below backs it with the real docker engine API;
// tests substitute a fake.
type Engine interface {
	Containers(ctx context.Context, all bool, filters map[string]string) ([]types.Container, error)
	InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error)
	InspectImage(ctx context.Context, ref string) (types.ImageInspect, error)
	InspectVolume(ctx context.Context, name string) (volume.Volume, error)
	InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error)
	CreateNetwork(ctx context.Context, name string) (string, error)
	CreateVolume(ctx context.Context, name string, labels map[string]string) error
	RemoveVolume(ctx context.Context, name string, force bool) error
	CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	Tag(ctx context.Context, source, target string) error
	Build(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error)
	Pull(ctx context.Context, ref string, authBase64 string) (io.ReadCloser, error)
	Push(ctx context.Context, ref string, authBase64 string) (io.ReadCloser, error)
	GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error)
	PutArchive(ctx context.Context, id, path string, content io.Reader) error
	Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error)
	Version(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	PruneContainers(ctx context.Context) error
	AttachContainer(ctx context.Context, id string) (types.HijackedResponse, error)
	ResizeContainer(ctx context.Context, id string, opts types.ResizeOptions) error
}

// BuildOptions carries the per-build parameters the builder needs.
type BuildOptions struct {
	Tags       []string
	Dockerfile string
	BuildArgs  map[string]*string
}

// Client is the docker-engine-backed Engine implementation.
type Client struct {
	docker *client.Client
}

// New constructs a Client the same way the teacher's NewDockerCommand
// does: client.FromEnv so DOCKER_HOST/DOCKER_CERT_PATH apply, with an
// HTTP timeout honoring config.HTTPTimeoutSeconds.
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithVersion(APIVersion),
		client.WithTimeout(time.Duration(config.HTTPTimeoutSeconds())*time.Second),
	)
	if err != nil {
		return nil, ftlerr.NewEngineUnavailableError(err)
	}
	return &Client{docker: cli}, nil
}

func (c *Client) Containers(ctx context.Context, all bool, filters map[string]string) ([]types.Container, error) {
	opts := types.ContainerListOptions{All: all}
	return c.docker.ContainerList(ctx, opts)
}

func (c *Client) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	return c.docker.ContainerInspect(ctx, id)
}

func (c *Client) InspectImage(ctx context.Context, ref string) (types.ImageInspect, error) {
	inspect, _, err := c.docker.ImageInspectWithRaw(ctx, ref)
	return inspect, err
}

func (c *Client) InspectVolume(ctx context.Context, name string) (volume.Volume, error) {
	return c.docker.VolumeInspect(ctx, name)
}

func (c *Client) InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error) {
	return c.docker.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
}

func (c *Client) CreateNetwork(ctx context.Context, name string) (string, error) {
	resp, err := c.docker.NetworkCreate(ctx, name, types.NetworkCreate{CheckDuplicate: true})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := c.docker.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels})
	return err
}

func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	return c.docker.VolumeRemove(ctx, name, force)
}

func (c *Client) CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error) {
	resp, err := c.docker.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.docker.ContainerStart(ctx, id, types.ContainerStartOptions{})
}

func (c *Client) Stop(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	return c.docker.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds})
}

func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	return c.docker.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force})
}

func (c *Client) Tag(ctx context.Context, source, target string) error {
	return c.docker.ImageTag(ctx, source, target)
}

func (c *Client) Build(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error) {
	resp, err := c.docker.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       opts.Tags,
		Dockerfile: opts.Dockerfile,
		BuildArgs:  opts.BuildArgs,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) Pull(ctx context.Context, ref string, authBase64 string) (io.ReadCloser, error) {
	return c.docker.ImagePull(ctx, ref, types.ImagePullOptions{RegistryAuth: authBase64})
}

func (c *Client) Push(ctx context.Context, ref string, authBase64 string) (io.ReadCloser, error) {
	return c.docker.ImagePush(ctx, ref, types.ImagePushOptions{RegistryAuth: authBase64})
}

func (c *Client) GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error) {
	rc, _, err := c.docker.CopyFromContainer(ctx, id, path)
	return rc, err
}

func (c *Client) PutArchive(ctx context.Context, id, path string, content io.Reader) error {
	return c.docker.CopyToContainer(ctx, id, path, content, types.CopyToContainerOptions{})
}

func (c *Client) Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return c.docker.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
}

func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.docker.ServerVersion(ctx)
	if err != nil {
		return "", err
	}
	return v.Version, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	if err != nil {
		return ftlerr.NewEngineUnavailableError(err)
	}
	return nil
}

func (c *Client) PruneContainers(ctx context.Context) error {
	_, err := c.docker.ContainersPrune(ctx, filters.NewArgs())
	return err
}

func (c *Client) AttachContainer(ctx context.Context, id string) (types.HijackedResponse, error) {
	return c.docker.ContainerAttach(ctx, id, types.ContainerAttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
}

func (c *Client) ResizeContainer(ctx context.Context, id string, opts types.ResizeOptions) error {
	return c.docker.ContainerResize(ctx, id, opts)
}
