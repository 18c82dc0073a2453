package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mcuadros/go-lookup"
	"github.com/samber/lo"

	"github.com/ftlshipyards/ftl/pkg/build"
	"github.com/ftlshipyards/ftl/pkg/catalog"
	"github.com/ftlshipyards/ftl/pkg/config"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
	"github.com/ftlshipyards/ftl/pkg/tasks"
)

// DesiredFormation builds the desired Formation for the named
// containers, pulling in their full runtime-dependency ancestry via
// formation.AddContainer (spec §4.3). With no names, every container
// whose option table carries default_boot=true is included — the
// `up` command's scope (spec §6).
func (a *App) DesiredFormation(names []string) (*formation.Formation, error) {
	f := formation.New(a.Graph.NetworkName())

	if len(names) == 0 {
		names = lo.Filter(a.Graph.Names(), func(name string, _ int) bool {
			c := a.Graph.Container(name)
			if c == nil || c.System || c.Abstract {
				return false
			}
			opts := a.Graph.Options(name)
			return opts.DefaultBoot != nil && *opts.DefaultBoot
		})
	}

	for _, name := range names {
		if _, err := formation.AddContainer(f, a.Graph, a.Images, name, false); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Run converges the host onto the desired formation for names (spec
// §6 `run`/`start`, §4.5). An empty names list converges the
// default-boot set (`up`).
func (a *App) Run(ctx context.Context, names []string) error {
	desired, err := a.DesiredFormation(names)
	if err != nil {
		return err
	}
	actual, err := a.ActualFormation(ctx, desired.NetworkName)
	if err != nil {
		return err
	}
	return a.Runner.Converge(ctx, desired, actual)
}

// Stop stops the named containers' instances, cascading to anything
// that links to them unless ignoreDependencies is set (spec §4.3
// remove_instance, §6 `stop`).
func (a *App) Stop(ctx context.Context, names []string, ignoreDependencies bool) error {
	actual, err := a.ActualFormation(ctx, a.Graph.NetworkName())
	if err != nil {
		return err
	}

	for _, name := range names {
		inst := actual.ByContainerName(name)
		if inst == nil {
			continue
		}
		toStop := formation.New(actual.NetworkName)
		toStop.Instances[inst.RuntimeName] = inst
		formation.RemoveInstance(actual, a.Graph, inst, ignoreDependencies)
	}

	empty := formation.New(actual.NetworkName)
	return a.Runner.Converge(ctx, empty, actual)
}

// StatusRow is one line of the `ps`/`status` table: a runtime instance
// reduced to the columns worth showing a human, plus whatever
// FTL_STATUS_FIELDS asked to see pulled out of the raw engine inspect.
type StatusRow struct {
	RuntimeName string
	Container   string
	ImageID     string
	Ports       string
	ExtraInfo   []string
}

// Status builds the status table for every instance in the actual
// formation (spec §6 `ps`/`status`), sorted by runtime-name. Any
// FTL_STATUS_FIELDS dotted paths are resolved against each instance's
// raw inspect JSON and appended as ExtraInfo, the same config-driven
// "pull an arbitrary field out of a status struct for display" idea
// the teacher offers for its own per-container stat graphs.
func (a *App) Status(ctx context.Context) ([]StatusRow, error) {
	actual, err := a.ActualFormation(ctx, a.Graph.NetworkName())
	if err != nil {
		return nil, err
	}

	fields := config.StatusFields()

	rows := make([]StatusRow, 0, len(actual.Instances))
	for _, inst := range actual.SortedInstances() {
		containerPorts := make([]string, 0, len(inst.PortMapping))
		for containerPort := range inst.PortMapping {
			containerPorts = append(containerPorts, containerPort)
		}
		sort.Strings(containerPorts)

		ports := ""
		for _, containerPort := range containerPorts {
			if ports != "" {
				ports += ", "
			}
			ports += fmt.Sprintf("%s->%s", containerPort, inst.PortMapping[containerPort])
		}
		rows = append(rows, StatusRow{
			RuntimeName: inst.RuntimeName,
			Container:   inst.Container,
			ImageID:     inst.ImageID,
			Ports:       ports,
			ExtraInfo:   a.extraStatusFields(ctx, inst.RuntimeName, fields),
		})
	}
	return rows, nil
}

// extraStatusFields resolves each of fields against the running
// container's inspect result, skipping any path that doesn't resolve
// (a missing field is display-only, never a hard failure).
func (a *App) extraStatusFields(ctx context.Context, runtimeName string, fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	detail, err := a.Engine.InspectContainer(ctx, runtimeName)
	if err != nil {
		return nil
	}
	var out []string
	for _, path := range fields {
		value, err := lookup.LookupString(detail, path)
		if err != nil || !value.IsValid() {
			continue
		}
		out = append(out, fmt.Sprintf("%s=%v", path, value.Interface()))
	}
	return out
}

// Build drives one container's build, firing the PRE_BUILD/POST_BUILD
// hooks and the volume-provider post-build hook (spec §4.7, §4.8).
func (a *App) Build(ctx context.Context, name string, noCache bool) error {
	c := a.Graph.Container(name)
	if c == nil {
		return fmt.Errorf("app: unknown container %q", name)
	}

	dockerfileBody, err := os.ReadFile(c.BuildFile)
	if err != nil {
		return err
	}

	buildTask := a.Tasks.NewRoot(fmt.Sprintf("build %s", name))

	if err := a.Hooks.Fire(catalog.PreBuild, catalog.Payload{"container": name}); err != nil {
		buildTask.Finish(tasks.StatusBad, err.Error())
		return err
	}

	req := build.Request{
		Dir:            c.BuildFile[:len(c.BuildFile)-len("/"+dockerfileBaseName(c))],
		DockerfilePath: dockerfileBaseName(c),
		DockerfileBody: string(dockerfileBody),
		ImageName:      c.ImageName(),
		Tag:            c.ImageTag,
		InPrefixImages: a.inPrefixFromTags(),
		ProvidesVolume: c.ProvidesVolume,
	}

	if err := a.Builder.Build(ctx, req, buildTask); err != nil {
		return err
	}

	if err := a.Hooks.Fire(catalog.PostBuild, catalog.Payload{"container": name}); err != nil {
		return err
	}

	if c.ProvidesVolume != "" {
		actual, err := a.ActualFormation(ctx, a.Graph.NetworkName())
		if err != nil {
			return err
		}
		imageID, err := a.Images.ImageVersion(c.ImageName(), "latest", false)
		if err != nil {
			return err
		}
		return a.VolumeProviderHook(actual).Run(ctx, name, imageID)
	}
	return nil
}

func dockerfileBaseName(c *graph.Container) string {
	path := c.BuildFile
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// inPrefixFromTags maps every in-graph container's tagged image
// reference to its dash-rewritten form, so a sibling container's
// Dockerfile FROM line resolves against what the engine actually
// tagged it as (spec §4.7/§9 ":" -> "-" rewrite).
func (a *App) inPrefixFromTags() map[string]string {
	out := make(map[string]string)
	for _, name := range a.Graph.Names() {
		c := a.Graph.Container(name)
		ref := c.TaggedImageName()
		out[ref] = build.ColonToDash(ref)
	}
	return out
}
