package runner

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/bootprobe"
	"github.com/ftlshipyards/ftl/pkg/catalog"
	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/graph"
	"github.com/ftlshipyards/ftl/pkg/sortutil"
	"github.com/ftlshipyards/ftl/pkg/tasks"
	"github.com/ftlshipyards/ftl/pkg/waits"
)

// waitPollInterval is how often an unready wait is re-checked (spec
// §4.10 describes the check, not a cadence; we use the same order of
// magnitude as the per-name lock waiters' 1s poll, spec §5).
const waitPollInterval = 1 * time.Second

// ImageRepository is the runner's view of the image layer: resolving
// a name:tag to an identity is all formation.AddContainer needs, and
// is also what start actions use to build the container.
type ImageRepository interface {
	ImageVersion(name, tag string, ignoreNotFound bool) (string, error)
}

// PTYAttacher takes over the terminal for a foreground container once
// it has been created, implemented by pkg/engine/streamer in the full
// wiring.
type PTYAttacher interface {
	Attach(ctx context.Context, containerID string) error
}

// Runner drives a single host toward a desired formation.
type Runner struct {
	Engine  engine.Engine
	Graph   *graph.Graph
	Hooks   *catalog.Bus
	Images  ImageRepository
	Tasks   *tasks.Tree
	Log     *logrus.Entry
	Attach  PTYAttacher

	locks         *sortutil.LockSet
	networkMu     sync.Mutex
	networkReady  map[string]bool
}

// New returns a Runner wired to the given collaborators.
func New(eng engine.Engine, g *graph.Graph, hooks *catalog.Bus, images ImageRepository, taskTree *tasks.Tree, log *logrus.Entry, attach PTYAttacher) *Runner {
	return &Runner{
		Engine: eng, Graph: g, Hooks: hooks, Images: images, Tasks: taskTree, Log: log, Attach: attach,
		locks:        sortutil.NewLockSet(),
		networkReady: make(map[string]bool),
	}
}

// Converge drives actual towards desired: it computes the delta, runs
// the stop phase (reverse dependency order), then the start phase
// (forward dependency order, with already-present actual instances
// satisfying link readiness immediately).
func (r *Runner) Converge(ctx context.Context, desired, actual *formation.Formation) error {
	toStop, toStart := Delta(desired, actual)

	stopTask := r.Tasks.NewRoot("stop")
	if err := runWorkers(toStop, stopReady(toStop), func(i *formation.Instance) error {
		child := stopTask.NewChild(i.Container)
		err := r.StopAction(ctx, i)
		if err != nil {
			child.Finish(tasks.StatusBad, err.Error())
		} else {
			child.Finish(tasks.StatusGood, "stopped")
		}
		return err
	}, nil); err != nil {
		stopTask.Finish(tasks.StatusBad, err.Error())
		return err
	}
	stopTask.Finish(tasks.StatusGood, "done")

	initialDone := make(map[string]bool, len(actual.Instances))
	for name := range actual.Instances {
		initialDone[name] = true
	}

	startTask := r.Tasks.NewRoot("start")
	if err := runWorkers(toStart, startReady, func(i *formation.Instance) error {
		child := startTask.NewChild(i.Container)
		err := r.StartAction(ctx, i, child)
		if err != nil {
			if _, ok := err.(*ftlerr.InteractiveTransfer); !ok {
				child.Finish(tasks.StatusBad, err.Error())
			}
		} else {
			child.Finish(tasks.StatusGood, "running")
		}
		return err
	}, initialDone); err != nil {
		if it, ok := err.(*ftlerr.InteractiveTransfer); ok {
			startTask.Finish(tasks.StatusGood, "interactive")
			return it
		}
		startTask.Finish(tasks.StatusBad, err.Error())
		return err
	}
	startTask.Finish(tasks.StatusGood, "done")

	return nil
}

// StopAction implements spec §4.5's stop action under the per-name
// lock: no-op if not running, otherwise stop with timeout=0 for
// fast_kill containers, else timeout=10.
func (r *Runner) StopAction(ctx context.Context, i *formation.Instance) error {
	r.locks.Lock(i.RuntimeName)
	defer r.locks.Unlock(i.RuntimeName)

	detail, err := r.Engine.InspectContainer(ctx, i.RuntimeName)
	if err != nil {
		return nil // already gone
	}
	if !detail.State.Running {
		return nil
	}

	c := r.Graph.Container(i.Container)
	timeout := 10 * time.Second
	if c != nil && c.FastKill {
		timeout = 0
	}
	return r.Engine.Stop(ctx, i.RuntimeName, timeout)
}

// StartAction implements spec §4.5's start action under the per-name
// lock.
func (r *Runner) StartAction(ctx context.Context, i *formation.Instance, task *tasks.Task) error {
	r.locks.Lock(i.RuntimeName)
	defer r.locks.Unlock(i.RuntimeName)

	c := r.Graph.Container(i.Container)
	if c == nil {
		return fmt.Errorf("runner: unknown container %q", i.Container)
	}
	if c.Abstract && !c.Foreground {
		return fmt.Errorf("runner: %s is abstract and cannot be run", i.Container)
	}

	if detail, err := r.Engine.InspectContainer(ctx, i.RuntimeName); err == nil {
		if detail.State.Running {
			return nil
		}
		if err := r.Engine.RemoveContainer(ctx, i.RuntimeName, false); err != nil {
			return ftlerr.NewRuntimeError(i.RuntimeName, 0, err)
		}
	}

	if err := r.Hooks.Fire(catalog.PreRunContainer, catalog.Payload{"container": i.Container, "instance": i}); err != nil {
		return err
	}

	networkName := r.Graph.Prefix
	if err := r.ensureNetwork(ctx, networkName); err != nil {
		return err
	}

	netConfig := r.composeNetworking(networkName, i)
	binds, err := r.composeBinds(c)
	if err != nil {
		return err
	}

	containerCfg := &dockercontainer.Config{
		Image:        i.ImageID,
		Tty:          c.Foreground,
		OpenStdin:    c.Foreground,
		AttachStdin:  c.Foreground,
		AttachStdout: true,
		AttachStderr: true,
		Env:          envSlice(i.Environment),
		ExposedPorts: exposedPorts(c.Ports),
		Labels:       map[string]string{engine.IdentityLabel: i.Container},
	}

	portBindings, err := portBindingsFor(c.Ports)
	if err != nil {
		return err
	}
	hostCfg := &dockercontainer.HostConfig{
		Binds:           binds,
		PortBindings:    portBindings,
		PublishAllPorts: true,
		CapAdd:          []string{"SYS_PTRACE"},
		SecurityOpt:     []string{"seccomp:unconfined"},
	}
	if i.MemLimit > 0 {
		hostCfg.Resources = dockercontainer.Resources{Memory: i.MemLimit}
	}

	id, err := r.Engine.CreateContainer(ctx, i.RuntimeName, containerCfg, hostCfg, netConfig)
	if err != nil {
		return ftlerr.NewRuntimeError(i.RuntimeName, 0, err)
	}

	if c.Foreground {
		return &ftlerr.InteractiveTransfer{
			Instance: i.RuntimeName,
			Handler: func() error {
				return r.Attach.Attach(ctx, id)
			},
		}
	}

	if err := r.Engine.Start(ctx, id); err != nil {
		return ftlerr.NewRuntimeError(i.RuntimeName, 0, err)
	}

	if err := r.runBootProbe(ctx, id, task); err != nil {
		return err
	}

	if err := r.Hooks.Fire(catalog.PostRunContainer, catalog.Payload{"container": i.Container, "instance": i}); err != nil {
		return err
	}

	if err := r.runWaits(ctx, c, id, task); err != nil {
		return err
	}
	return r.Hooks.Fire(catalog.PostRunContainerFullyStarted, catalog.Payload{"container": i.Container, "instance": i})
}

// runWaits executes c's declared waits in registration order, after
// POST_RUN_CONTAINER (spec §4.10). Between polls it re-checks the
// container is still running, raising ContainerBootFailure on death.
func (r *Runner) runWaits(ctx context.Context, c *graph.Container, containerID string, task *tasks.Task) error {
	if len(c.Waits) == 0 {
		return nil
	}
	reader := &engineArchiveReader{eng: r.Engine}

	for _, decl := range c.Waits {
		w, err := buildWait(decl, c, containerID, reader)
		if err != nil {
			return err
		}
		if task != nil {
			task.Update(fmt.Sprintf("waiting: %s", w.Description()))
		}
		for {
			running, exists, err := reader.IsRunning(ctx, containerID)
			if err != nil || !exists || !running {
				return ftlerr.NewContainerBootFailure(containerID,
					fmt.Sprintf("container died while waiting on %s", w.Description()),
					r.lastLogLines(ctx, containerID, 10))
			}
			if w.Ready(ctx) {
				break
			}
			time.Sleep(waitPollInterval)
		}
	}
	return nil
}

// buildWait resolves one declared {type, params} entry (spec §4.10)
// into its concrete capability. TCP waits resolve the private port
// against the container's published host-port mapping, since that
// mapping is static and known at graph-load time (see composeBinds'
// sibling portBindingsFor) rather than requiring a re-introspect.
func buildWait(decl graph.Wait, c *graph.Container, containerID string, exister waits.FileExister) (waits.Wait, error) {
	switch decl.Type {
	case "tcp":
		port := paramString(decl.Params, "port")
		host := c.Ports[port]
		if host == "" {
			host = port
		}
		return waits.TCPWait{
			Address: fmt.Sprintf("127.0.0.1:%s", host),
			Timeout: paramDuration(decl.Params, "timeout"),
		}, nil
	case "http", "https":
		return waits.HTTPWait{
			URL:       paramString(decl.Params, "url"),
			HTTPS:     decl.Type == "https",
			VerifyCA:  paramBool(decl.Params, "verify_ca"),
			MinStatus: paramInt(decl.Params, "min_status"),
			MaxStatus: paramInt(decl.Params, "max_status"),
			Timeout:   paramDuration(decl.Params, "timeout"),
		}, nil
	case "time":
		return waits.TimeWait{
			Start:    time.Now(),
			Duration: time.Duration(paramInt(decl.Params, "seconds")) * time.Second,
		}, nil
	case "file":
		return waits.FileWait{
			ContainerID: containerID,
			Path:        paramString(decl.Params, "path"),
			Exister:     exister,
		}, nil
	default:
		return nil, fmt.Errorf("runner: unknown wait type %q", decl.Type)
	}
}

func paramString(p map[string]interface{}, key string) string {
	v, _ := p[key].(string)
	return v
}

func paramBool(p map[string]interface{}, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func paramInt(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func paramDuration(p map[string]interface{}, key string) time.Duration {
	if n := paramInt(p, key); n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func (r *Runner) ensureNetwork(ctx context.Context, name string) error {
	r.networkMu.Lock()
	defer r.networkMu.Unlock()

	if r.networkReady[name] {
		return nil
	}
	if _, err := r.Engine.InspectNetwork(ctx, name); err == nil {
		r.networkReady[name] = true
		return nil
	}
	if _, err := r.Engine.CreateNetwork(ctx, name); err != nil {
		return ftlerr.NewRuntimeError(name, 0, err)
	}
	r.networkReady[name] = true
	return nil
}

func (r *Runner) composeNetworking(networkName string, i *formation.Instance) *dockernetwork.NetworkingConfig {
	links := make([]string, 0, len(i.Links))
	for alias, target := range i.Links {
		links = append(links, fmt.Sprintf("%s:%s", target, alias))
	}
	sort.Strings(links)

	return &dockernetwork.NetworkingConfig{
		EndpointsConfig: map[string]*dockernetwork.EndpointSettings{
			networkName: {
				Aliases: []string{networkName},
				Links:   links,
			},
		},
	}
}

// composeBinds iterates bound volumes, then dev-modes, then named
// volumes, formatting each "{source}:{dest}:{mode}" (spec §4.5 step 7).
func (r *Runner) composeBinds(c *graph.Container) ([]string, error) {
	var binds []string

	for dest, v := range c.BoundVolumes {
		binds = append(binds, formatBind(v.Source, dest, v.Mode))
	}
	for name, mounts := range c.DevModes {
		_ = name
		for dest, v := range mounts {
			binds = append(binds, formatBind(v.Source, dest, v.Mode))
		}
	}
	for dest, v := range c.NamedVolumes {
		binds = append(binds, formatBind(v.Source, dest, v.Mode))
	}

	sort.Strings(binds)
	return binds, nil
}

func formatBind(source, dest, mode string) string {
	if mode == "" {
		mode = "rw"
	}
	if !strings.Contains(mode, "cached") {
		mode += ",cached"
	}
	return fmt.Sprintf("%s:%s:%s", source, dest, mode)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func exposedPorts(ports map[string]string) nat.PortSet {
	set := make(nat.PortSet, len(ports))
	for containerPort := range ports {
		p, err := nat.NewPort("tcp", containerPort)
		if err != nil {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

func portBindingsFor(ports map[string]string) (nat.PortMap, error) {
	bindings := make(nat.PortMap, len(ports))
	for containerPort, hostPort := range ports {
		p, err := nat.NewPort("tcp", containerPort)
		if err != nil {
			return nil, fmt.Errorf("runner: invalid port %q: %w", containerPort, err)
		}
		bindings[p] = []nat.PortBinding{{HostPort: hostPort}}
	}
	return bindings, nil
}

// runBootProbe drives the boot-probe loop (spec §4.9) on a 500ms
// cadence until finished, reporting status line updates on task.
func (r *Runner) runBootProbe(ctx context.Context, containerID string, task *tasks.Task) error {
	reader := &engineArchiveReader{eng: r.Engine}
	since := time.Now()
	for {
		res := bootprobe.Poll(ctx, reader, containerID, since)
		if res.Finished != nil {
			if *res.Finished {
				return nil
			}
			logs := r.lastLogLines(ctx, containerID, 10)
			return ftlerr.NewContainerBootFailure(containerID, res.Message, logs)
		}
		if res.Message != "" && task != nil {
			task.Update(res.Message)
		}
		time.Sleep(bootprobe.PollInterval)
	}
}

func (r *Runner) lastLogLines(ctx context.Context, containerID string, n int) []string {
	rc, err := r.Engine.Logs(ctx, containerID, n)
	if err != nil {
		return nil
	}
	defer rc.Close()
	return tailLines(rc, n)
}

func tailLines(rc io.Reader, n int) []string {
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// engineArchiveReader adapts engine.Engine to bootprobe.ArchiveReader.
type engineArchiveReader struct {
	eng engine.Engine
}

func (a *engineArchiveReader) GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error) {
	return a.eng.GetArchive(ctx, id, path)
}

// FileExists implements waits.FileExister by probing for the path via
// GetArchive, the same primitive bootprobe uses for its two sentinel
// files — there is no cheaper existence check over the remote API.
func (a *engineArchiveReader) FileExists(ctx context.Context, containerID, path string) bool {
	rc, err := a.eng.GetArchive(ctx, containerID, path)
	if err != nil {
		return false
	}
	defer rc.Close()
	_, err = tar.NewReader(rc).Next()
	return err == nil
}

func (a *engineArchiveReader) IsRunning(ctx context.Context, id string) (running, exists bool, err error) {
	detail, inspectErr := a.eng.InspectContainer(ctx, id)
	if inspectErr != nil {
		return false, false, nil
	}
	return detail.State.Running, true, nil
}
