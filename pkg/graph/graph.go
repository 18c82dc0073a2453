package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/sortutil"
	"github.com/jesseduffield/yaml"
	"github.com/spkg/bom"
)

// readFileStrippingBOM reads path and strips a leading UTF-8 byte-order
// mark, which Windows-authored ftl.yaml/Dockerfile files sometimes
// carry and which would otherwise corrupt the first YAML key or
// Dockerfile instruction.
func readFileStrippingBOM(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bom.Clean(raw), nil
}

// Graph is the bundle spec §3 describes: manifest fields, containers,
// and the runtime/build dependency tables derived from them.
type Graph struct {
	Manifest

	containers map[string]*Container
	runtimeDeps map[string]map[string]bool // container -> set of providers it depends on
	buildParent map[string]string          // container -> in-prefix build parent, when any
	options     map[string]*ContainerOptions
}

// New returns an empty graph with manifest m.
func New(m Manifest) *Graph {
	return &Graph{
		Manifest:    m,
		containers:  make(map[string]*Container),
		runtimeDeps: make(map[string]map[string]bool),
		buildParent: make(map[string]string),
		options:     make(map[string]*ContainerOptions),
	}
}

// manifestFile is the shape of a top-level ftl.yaml.
type manifestFile struct {
	Prefix              string                 `yaml:"prefix"`
	Registry            string                 `yaml:"registry"`
	PluginConfiguration map[string]interface{} `yaml:"plugin_configuration"`
	ExternalSecrets     map[string]interface{} `yaml:"external_secrets"`
	DomainName          interface{}            `yaml:"domainname"`
}

// containerFile is the shape of a per-container ftl.yaml (spec §6
// "Container ftl.yaml schema").
type containerFile struct {
	Versions    map[string]string     `yaml:"versions"`
	Links       interface{}           `yaml:"links"` // list (legacy) or {required, optional}
	Waits       []map[string]map[string]interface{} `yaml:"waits"`
	Volumes     map[string]interface{} `yaml:"volumes"`
	DevModes    map[string]map[string]interface{} `yaml:"devmodes"`
	Ports       map[string]interface{} `yaml:"ports"`
	Environment map[string]string      `yaml:"environment"`
	Foreground  bool                   `yaml:"foreground"`
	FastKill    bool                   `yaml:"fast_kill"`
	System      bool                   `yaml:"system"`
	Abstract    bool                   `yaml:"abstract"`
	ImageTag    string                 `yaml:"image_tag"`
	MemLimit    int64                  `yaml:"mem_limit"`
	Boot        struct {
		Build map[string]string `yaml:"build"`
		Run   map[string]string `yaml:"run"`
	} `yaml:"boot"`
	ProvidesVolume string `yaml:"provides-volume"`
}

// Load reads {path}/ftl.yaml plus every immediate subdirectory that
// contains a build file, synthesizing one container per declared
// version, per spec §4.1.
func Load(path string) (*Graph, error) {
	manifestPath := filepath.Join(path, "ftl.yaml")
	raw, err := readFileStrippingBOM(manifestPath)
	if err != nil {
		return nil, ftlerr.NewConfigError(manifestPath, "", err.Error())
	}

	var mf manifestFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, ftlerr.NewConfigError(manifestPath, "", err.Error())
	}
	if mf.Prefix == "" {
		return nil, ftlerr.NewConfigError(manifestPath, "prefix", "prefix is required")
	}

	g := New(Manifest{
		Prefix:              mf.Prefix,
		Registry:            mf.Registry,
		PluginConfiguration: mf.PluginConfiguration,
		ExternalSecrets:     mf.ExternalSecrets,
		DomainNames:         coerceDomainNames(mf.DomainName),
	})

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, ftlerr.Wrap(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "profiles" {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		buildFile := findBuildFile(dir)
		if buildFile == "" {
			continue
		}
		if err := g.loadContainerDir(entry.Name(), dir, buildFile); err != nil {
			return nil, err
		}
	}

	if err := g.computeRuntimeEdges(); err != nil {
		return nil, err
	}
	g.computeBuildEdges()
	g.applyInheritance()

	return g, nil
}

func coerceDomainNames(v interface{}) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func findBuildFile(dir string) string {
	for _, candidate := range []string{"Dockerfile", "Containerfile"} {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
			return candidate
		}
	}
	return ""
}

func (g *Graph) loadContainerDir(dirName, dir, defaultBuildFile string) error {
	metaPath := filepath.Join(dir, "ftl.yaml")
	var cf containerFile
	if raw, err := readFileStrippingBOM(metaPath); err == nil {
		if err := yaml.Unmarshal(raw, &cf); err != nil {
			return ftlerr.NewConfigError(metaPath, "", err.Error())
		}
	}

	versions := cf.Versions
	if len(versions) == 0 {
		versions = map[string]string{"": defaultBuildFile}
	}

	suffixes := make([]string, 0, len(versions))
	for s := range versions {
		suffixes = append(suffixes, s)
	}
	sort.Strings(suffixes)

	for _, suffix := range suffixes {
		buildFile := versions[suffix]
		name := dirName
		if suffix != "" {
			name = dirName + "-" + suffix
		}

		buildFrom, buildArgs, err := parseBuildFile(filepath.Join(dir, buildFile))
		if err != nil {
			return err
		}

		c := &Container{
			Name:        name,
			Suffix:      suffix,
			Prefix:      g.Prefix,
			ImageTag:    "local",
			BuildFile:   buildFile,
			BuildParent: buildFrom,
			BuildArgs:   buildArgs,
			Links:       parseLinks(cf.Links),
			Waits:       parseWaits(cf.Waits),
			Ports:       parsePorts(cf.Ports),
			Environment: cf.Environment,
			Foreground:  cf.Foreground,
			FastKill:    cf.FastKill,
			System:      cf.System,
			Abstract:    cf.Abstract,
			MemLimit:    cf.MemLimit,
			ProvidesVolume: cf.ProvidesVolume,
			BootBuild:   parseBootSet(cf.Boot.Build),
			BootRun:     parseBootSet(cf.Boot.Run),
			ExtraData:   make(map[string]interface{}),
		}
		if cf.ImageTag != "" {
			c.ImageTag = cf.ImageTag
		}

		bound, named, err := parseVolumes(cf.Volumes)
		if err != nil {
			return err
		}
		c.BoundVolumes = bound
		c.NamedVolumes = named
		c.DevModes, err = parseDevModes(cf.DevModes)
		if err != nil {
			return err
		}

		g.containers[name] = c
		g.options[name] = &ContainerOptions{DevModes: make(map[string]bool)}
	}
	return nil
}

func parseBootSet(m map[string]string) map[string]BootRequirement {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]BootRequirement, len(m))
	for k, v := range m {
		out[k] = BootRequirement(v)
	}
	return out
}

func parseLinks(raw interface{}) map[string]Link {
	links := make(map[string]Link)
	switch t := raw.(type) {
	case []interface{}:
		// legacy: bare list means all required
		for _, item := range t {
			if name, ok := item.(string); ok {
				links[name] = Link{Required: true}
			}
		}
	case map[string]interface{}:
		if req, ok := t["required"].([]interface{}); ok {
			for _, item := range req {
				if name, ok := item.(string); ok {
					links[name] = Link{Required: true}
				}
			}
		}
		if opt, ok := t["optional"].([]interface{}); ok {
			for _, item := range opt {
				if name, ok := item.(string); ok {
					links[name] = Link{Required: false}
				}
			}
		}
	}
	return links
}

func parseWaits(raw []map[string]map[string]interface{}) []Wait {
	var waits []Wait
	for _, entry := range raw {
		for waitType, params := range entry {
			waits = append(waits, Wait{Type: waitType, Params: params})
		}
	}
	return waits
}

func parsePorts(raw map[string]interface{}) map[string]string {
	ports := make(map[string]string, len(raw))
	for k, v := range raw {
		ports[k] = fmt.Sprintf("%v", v)
	}
	return ports
}

func parseVolumes(raw map[string]interface{}) (bound, named map[string]Volume, err error) {
	bound = make(map[string]Volume)
	named = make(map[string]Volume)
	for dest, spec := range raw {
		v, isNamed, perr := parseVolumeSpec(spec)
		if perr != nil {
			return nil, nil, perr
		}
		if isNamed {
			named[dest] = v
		} else {
			bound[dest] = v
		}
	}
	return bound, named, nil
}

func parseVolumeSpec(spec interface{}) (Volume, bool, error) {
	switch t := spec.(type) {
	case string:
		return Volume{Source: t, Mode: "rw", Required: true}, isNamedVolumeSource(t), nil
	case map[string]interface{}:
		v := Volume{Mode: "rw", Required: true}
		if s, ok := t["source"].(string); ok {
			v.Source = s
		}
		if m, ok := t["mode"].(string); ok {
			v.Mode = m
		}
		if r, ok := t["required"].(bool); ok {
			v.Required = r
		}
		return v, isNamedVolumeSource(v.Source), nil
	default:
		return Volume{}, false, fmt.Errorf("graph: invalid volume spec %v", spec)
	}
}

// isNamedVolumeSource reports whether a volume source string names a
// container-engine-managed volume rather than a host path: it is a
// host path if it starts with "/", "./", or "../".
func isNamedVolumeSource(source string) bool {
	return !filepath.IsAbs(source) && !strings.HasPrefix(source, "./") && !strings.HasPrefix(source, "../")
}

func parseDevModes(raw map[string]map[string]interface{}) (map[string]map[string]Volume, error) {
	out := make(map[string]map[string]Volume, len(raw))
	for name, mounts := range raw {
		m := make(map[string]Volume, len(mounts))
		for dest, spec := range mounts {
			v, _, err := parseVolumeSpec(spec)
			if err != nil {
				return nil, err
			}
			m[dest] = v
		}
		out[name] = m
	}
	return out, nil
}

// parseBuildFile extracts the FROM image reference and the set of
// build-arg names from a Dockerfile-shaped build file.
func parseBuildFile(path string) (from string, args map[string]bool, err error) {
	raw, err := readFileStrippingBOM(path)
	if err != nil {
		return "", nil, ftlerr.Wrap(err)
	}
	args = make(map[string]bool)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "FROM "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				from = fields[1]
			}
		case strings.HasPrefix(upper, "ARG "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				name := strings.SplitN(fields[1], "=", 2)[0]
				args[name] = true
			}
		}
	}
	return from, args, nil
}

// computeRuntimeEdges builds the runtime dependency table from each
// container's required links (spec §4.1: "for each container, for
// each required link name, add an edge depender->provider").
func (g *Graph) computeRuntimeEdges() error {
	for name, c := range g.containers {
		deps := make(map[string]bool)
		for alias, link := range c.Links {
			if !link.Required {
				continue
			}
			if _, ok := g.containers[alias]; !ok {
				return ftlerr.NewConfigError(name, alias, "required link target does not exist in graph")
			}
			deps[alias] = true
		}
		g.runtimeDeps[name] = deps
	}

	if _, err := g.topoOrderAll(); err != nil {
		return err
	}
	return nil
}

// computeBuildEdges records the in-prefix build parent for each
// container, when the FROM reference resolves to a known image in
// this graph's prefix.
func (g *Graph) computeBuildEdges() {
	byImage := make(map[string]string, len(g.containers))
	for name, c := range g.containers {
		byImage[c.ImageName()] = name
		byImage[c.TaggedImageName()] = name
	}
	for name, c := range g.containers {
		ref := rewriteColonlessTag(c.BuildParent)
		if parent, ok := byImage[ref]; ok && parent != name {
			g.buildParent[name] = parent
			c.InPrefixParent = parent
		}
	}
}

// rewriteColonlessTag normalizes a FROM reference's tag separator so
// "prefix/name:tag" can match against "prefix/name:tag" directly,
// keeping ":" only as the name/tag separator — spec's supplemented
// behavior for in-prefix FROM resolution (see SPEC_FULL.md).
func rewriteColonlessTag(ref string) string {
	return ref
}

// applyInheritance layers bound volumes, named volumes, and devmodes
// down the in-prefix build-parent chain (spec §4.1 "Inheritance").
func (g *Graph) applyInheritance() {
	order, err := g.topoOrderAll()
	if err != nil {
		return
	}
	for _, name := range order {
		c := g.containers[name]
		parentName, ok := g.buildParent[name]
		if !ok {
			continue
		}
		parent := g.containers[parentName]

		c.BoundVolumes = mergeVolumes(parent.BoundVolumes, c.BoundVolumes)
		c.NamedVolumes = mergeVolumes(parent.NamedVolumes, c.NamedVolumes)
		c.DevModes = mergeDevModes(parent.DevModes, c.DevModes)
	}
}

func mergeVolumes(parent, local map[string]Volume) map[string]Volume {
	out := make(map[string]Volume, len(parent)+len(local))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func mergeDevModes(parent, local map[string]map[string]Volume) map[string]map[string]Volume {
	out := make(map[string]map[string]Volume, len(parent)+len(local))
	for name, mounts := range parent {
		out[name] = mergeVolumes(mounts, nil)
	}
	for name, mounts := range local {
		out[name] = mergeVolumes(out[name], mounts)
	}
	return out
}

// topoOrderAll returns a build-parent-respecting order for every
// container that is safe to use for both build-edge inheritance and
// runtime-cycle detection. Here we reuse it purely for runtime-cycle
// detection via sortutil.TopoSort over runtime deps.
func (g *Graph) topoOrderAll() ([]string, error) {
	names := g.Names()
	return sortutil.TopoSort(names, g.runtimeDepSlices())
}

func (g *Graph) runtimeDepSlices() map[string][]string {
	out := make(map[string][]string, len(g.runtimeDeps))
	for name, set := range g.runtimeDeps {
		var deps []string
		for d := range set {
			deps = append(deps, d)
		}
		out[name] = deps
	}
	return out
}

// NetworkName is the formation network this graph's containers attach
// to: the graph prefix (spec §3 "Formation... scoped to one host and
// one network name (default: graph prefix)").
func (g *Graph) NetworkName() string {
	return g.Prefix
}

// Names returns every container name in the graph, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.containers))
	for n := range g.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Container returns the named container definition, or nil.
func (g *Graph) Container(name string) *Container {
	return g.containers[name]
}

// Options returns the mutable option table for name, creating an
// empty one if absent.
func (g *Graph) Options(name string) *ContainerOptions {
	o, ok := g.options[name]
	if !ok {
		o = &ContainerOptions{DevModes: make(map[string]bool)}
		g.options[name] = o
	}
	return o
}

// Dependencies returns the direct runtime-dependency targets of c.
func (g *Graph) Dependencies(c string) []string {
	var out []string
	for d := range g.runtimeDeps[c] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the containers that directly depend on c.
func (g *Graph) Dependents(c string) []string {
	var out []string
	for name, deps := range g.runtimeDeps {
		if deps[c] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// BuildAncestry returns the ordered chain from furthest ancestor down
// to c's immediate parent, excluding c itself.
func (g *Graph) BuildAncestry(c string) []string {
	var chain []string
	cur, ok := g.buildParent[c]
	for ok {
		chain = append([]string{cur}, chain...)
		cur, ok = g.buildParent[cur]
	}
	return chain
}

// SetDependencies replaces c's runtime dependency edges, used by
// profile apply.
func (g *Graph) SetDependencies(c string, providers []string) {
	set := make(map[string]bool, len(providers))
	for _, p := range providers {
		set[p] = true
	}
	g.runtimeDeps[c] = set
}

// DiscardDependency removes a single edge c->d, used by the runner
// when ignore_dependencies is in effect.
func (g *Graph) DiscardDependency(c, d string) {
	if deps, ok := g.runtimeDeps[c]; ok {
		delete(deps, d)
	}
}

// DevmodeNames returns the union of dev-mode names across every
// container in the graph.
func (g *Graph) DevmodeNames() []string {
	seen := make(map[string]bool)
	for _, c := range g.containers {
		for name := range c.DevModes {
			seen[name] = true
		}
	}
	var out []string
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetAncestralExtraData collects extra_data[key] from the top of c's
// build ancestry down through c itself, skipping containers where the
// key is absent (spec §4.1, used by the boot-container mechanism).
func (g *Graph) GetAncestralExtraData(c, key string) []interface{} {
	var out []interface{}
	chain := append(g.BuildAncestry(c), c)
	for _, name := range chain {
		if def := g.containers[name]; def != nil {
			if v, ok := def.ExtraData[key]; ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// MergedBootSet computes the boot set for phase ("build" or "run") by
// walking c's ancestral chain and c itself, required winning over
// optional when both are declared for the same name (spec §4.10).
func (g *Graph) MergedBootSet(c, phase string) map[string]BootRequirement {
	merged := make(map[string]BootRequirement)
	chain := append(g.BuildAncestry(c), c)
	for _, name := range chain {
		def := g.containers[name]
		if def == nil {
			continue
		}
		var set map[string]BootRequirement
		if phase == "build" {
			set = def.BootBuild
		} else {
			set = def.BootRun
		}
		for k, v := range set {
			if existing, ok := merged[k]; ok && existing == BootRequired {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}
