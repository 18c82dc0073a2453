// Package graph implements the container graph of spec §3/§4.1: loads
// container definitions plus the top-level ftl.yaml manifest, computes
// runtime and build-time dependency edges, and exposes the query
// surface the profile stack, formation, and runner are built on. The
// in-graph-prefix parent chain and version-suffix synthesis follow the
// same "directory of build files with optional per-directory metadata"
// shape the teacher reads for its docker-compose-less container
// listing, generalized into a disk-backed dependency graph.
package graph

import "fmt"

// Volume describes a single bind mount: bound volumes use a host path
// as Source, named volumes use a volume name.
type Volume struct {
	Source   string
	Mode     string
	Required bool
}

// Link records a declared dependency from one container to another by
// alias, with whether it is required.
type Link struct {
	Required bool
}

// Wait is one entry in a container's ordered readiness-check list.
type Wait struct {
	Type   string
	Params map[string]interface{}
}

// BootRequirement is one entry of a boot-container declaration:
// "required" or "optional".
type BootRequirement string

const (
	BootRequired BootRequirement = "required"
	BootOptional BootRequirement = "optional"
)

// Container is an immutable-after-load container definition (spec §3
// "Container definition").
type Container struct {
	Name          string
	Suffix        string // "" for the unversioned default
	Prefix        string
	ImageTag      string // default "local"
	BuildFile     string
	BuildParent   string // raw FROM reference
	InPrefixParent string // Name of in-graph parent, "" if external
	BuildArgs     map[string]bool

	Links map[string]Link
	Waits []Wait

	BoundVolumes map[string]Volume
	NamedVolumes map[string]Volume
	DevModes     map[string]map[string]Volume

	Ports       map[string]string
	Environment map[string]string
	MemLimit    int64

	Foreground bool
	FastKill   bool
	System     bool
	Abstract   bool

	ProvidesVolume string
	BootBuild      map[string]BootRequirement
	BootRun        map[string]BootRequirement

	ExtraData map[string]interface{}
}

// ImageName is "{prefix}/{name}".
func (c *Container) ImageName() string {
	return fmt.Sprintf("%s/%s", c.Prefix, c.Name)
}

// TaggedImageName is "{image_name}:{tag}".
func (c *Container) TaggedImageName() string {
	return fmt.Sprintf("%s:%s", c.ImageName(), c.ImageTag)
}

// ContainerOptions is the graph's per-container mutable option table
// (spec §3 "options"), mutated by profile apply.
type ContainerOptions struct {
	DefaultBoot *bool
	InProfile   bool
	DevModes    map[string]bool
}

// Manifest holds the top-level ftl.yaml keys (spec §4.1).
type Manifest struct {
	Prefix               string
	Registry             string
	PluginConfiguration  map[string]interface{}
	ExternalSecrets      map[string]interface{}
	DomainNames          []string
}
