// Package formation implements the declarative desired/actual running
// state of spec §3/§4.3: a Formation of named Instances, built from the
// container graph's dependency ancestry, diffable against another
// Formation to drive the runner. The clone-then-mutate workflow follows
// the teacher's Container/DockerCommand split: a snapshot struct copied
// out of shared state, safe to mutate without touching the original.
package formation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// ImageRepository is the capability formation needs from the image
// layer: resolving a name:tag to a content identity, honoring
// ignore_not_found per spec §4.3 step 4.
type ImageRepository interface {
	ImageVersion(name, tag string, ignoreNotFound bool) (string, error)
}

// Instance is a desired or current container instance (spec §3
// "Container instance").
type Instance struct {
	// RegistrationID disambiguates two in-memory Instance values that
	// briefly carry the same RuntimeName when a re-introspection races
	// a pending AddContainer (e.g. a CLI `run` reading back the host
	// while another invocation is starting the same container).
	// RuntimeName remains the key formation.Instances is indexed and
	// compared by; this is diagnostic only, never part of DifferentFrom.
	RegistrationID string
	RuntimeName    string
	Container      string // in-graph container name
	ImageID        string
	Links       map[string]string // alias -> target runtime-name
	DevModes    map[string]bool
	Ports       map[string]string
	Environment map[string]string
	MemLimit    int64
	Command     []string
	Foreground  bool

	IPAddress   string
	PortMapping map[string]string
}

// Clone produces an instance-distinct copy suitable for "what-if"
// mutation (spec §4.3 "clone()").
func (i *Instance) Clone() *Instance {
	c := *i
	c.Links = copyStringMap(i.Links)
	c.DevModes = copyBoolMap(i.DevModes)
	c.Ports = copyStringMap(i.Ports)
	c.Environment = copyStringMap(i.Environment)
	c.PortMapping = copyStringMap(i.PortMapping)
	c.Command = append([]string(nil), i.Command...)
	return &c
}

// DifferentFrom compares the fields spec §4.3 says trigger
// re-creation: runtime-name, image identity, link set, dev-mode set,
// ports, environment, mem_limit, command, and foreground (either side
// foreground forces re-creation).
func (i *Instance) DifferentFrom(other *Instance) bool {
	if other == nil {
		return true
	}
	if i.RuntimeName != other.RuntimeName || i.ImageID != other.ImageID {
		return true
	}
	if i.Foreground || other.Foreground {
		return true
	}
	if i.MemLimit != other.MemLimit {
		return true
	}
	if !stringMapEqual(i.Links, other.Links) {
		return true
	}
	if !boolSetEqual(i.DevModes, other.DevModes) {
		return true
	}
	if !stringMapEqual(i.Ports, other.Ports) {
		return true
	}
	if !stringMapEqual(i.Environment, other.Environment) {
		return true
	}
	if !stringSliceEqual(i.Command, other.Command) {
		return true
	}
	return false
}

// Formation is scoped to one host and one network name (spec §3).
type Formation struct {
	NetworkName string
	Instances   map[string]*Instance // keyed by runtime-name
}

// New returns an empty formation for networkName.
func New(networkName string) *Formation {
	return &Formation{NetworkName: networkName, Instances: make(map[string]*Instance)}
}

// RuntimeName computes "{prefix}.{container_name}.1" per spec §3.
func RuntimeName(prefix, containerName string) string {
	return fmt.Sprintf("%s.%s.1", prefix, containerName)
}

// ByContainerName looks up the instance for a given in-graph container
// name, if attached.
func (f *Formation) ByContainerName(name string) *Instance {
	for _, inst := range f.Instances {
		if inst.Container == name {
			return inst
		}
	}
	return nil
}

// AddContainer implements spec §4.3's add_container: resolves the
// full dependency ancestry (detecting cycles via the graph's own
// load-time check), recursively ensures each ancestor is present,
// builds the instance, and attaches it.
func AddContainer(f *Formation, g *graph.Graph, images ImageRepository, containerName string, ignoreDependencies bool) (*Instance, error) {
	c := g.Container(containerName)
	if c == nil {
		return nil, fmt.Errorf("formation: unknown container %q", containerName)
	}

	runtimeName := RuntimeName(g.Prefix, containerName)
	if existing, ok := f.Instances[runtimeName]; ok {
		return existing, nil
	}

	for _, dep := range g.Dependencies(containerName) {
		if _, err := AddContainer(f, g, images, dep, ignoreDependencies); err != nil {
			if ine, ok := err.(*ftlerr.ImageNotFoundError); ok {
				ine.WithResponsibleOwner(containerName)
				if ignoreDependencies {
					continue
				}
			}
			return nil, err
		}
	}

	links := make(map[string]string)
	for alias := range c.Links {
		if target := f.ByContainerName(alias); target != nil {
			links[alias] = target.RuntimeName
		}
	}

	imageID, err := images.ImageVersion(c.ImageName(), c.ImageTag, ignoreDependencies)
	if err != nil {
		return nil, err
	}

	devModes := make(map[string]bool)
	for name := range g.Options(containerName).DevModes {
		devModes[name] = true
	}

	inst := &Instance{
		RegistrationID: uuid.NewString(),
		RuntimeName:    runtimeName,
		Container:      containerName,
		ImageID:     imageID,
		Links:       links,
		DevModes:    devModes,
		Ports:       copyStringMap(c.Ports),
		Environment: copyStringMap(c.Environment),
		MemLimit:    c.MemLimit,
		Foreground:  c.Foreground,
	}
	f.Instances[runtimeName] = inst
	return inst, nil
}

// RemoveInstance implements spec §4.3's remove_instance: under default
// mode every transitive dependent within the formation is also
// removed; under ignoreDependencies, only the offending dependency
// edge is discarded from the graph so dependents keep running.
func RemoveInstance(f *Formation, g *graph.Graph, i *Instance, ignoreDependencies bool) {
	if ignoreDependencies {
		for _, dependent := range g.Dependents(i.Container) {
			g.DiscardDependency(dependent, i.Container)
		}
		delete(f.Instances, i.RuntimeName)
		return
	}

	toRemove := transitivelyDependent(f, i.Container)
	for _, dep := range toRemove {
		delete(f.Instances, dep.RuntimeName)
	}
	delete(f.Instances, i.RuntimeName)
}

func transitivelyDependent(f *Formation, container string) []*Instance {
	linksTo := func(inst *Instance, target string) bool {
		for _, runtimeName := range inst.Links {
			if runtimeName == RuntimeName(prefixOf(inst.RuntimeName), target) {
				return true
			}
		}
		return false
	}

	var out []*Instance
	visited := make(map[string]bool)
	var visit func(target string)
	visit = func(target string) {
		for _, inst := range f.Instances {
			if visited[inst.RuntimeName] {
				continue
			}
			if linksTo(inst, target) {
				visited[inst.RuntimeName] = true
				out = append(out, inst)
				visit(inst.Container)
			}
		}
	}
	visit(container)
	return out
}

func prefixOf(runtimeName string) string {
	for i, r := range runtimeName {
		if r == '.' {
			return runtimeName[:i]
		}
	}
	return runtimeName
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBoolMap(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func boolSetEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SortedRuntimeNames returns every instance's runtime-name, sorted.
func (f *Formation) SortedRuntimeNames() []string {
	names := make([]string, 0, len(f.Instances))
	for n := range f.Instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SortedInstances returns every instance, sorted by runtime-name, for
// callers rendering a status table (spec §6 `ps`/`status`).
func (f *Formation) SortedInstances() []*Instance {
	names := f.SortedRuntimeNames()
	out := make([]*Instance, 0, len(names))
	for _, n := range names {
		out = append(out, f.Instances[n])
	}
	return out
}
