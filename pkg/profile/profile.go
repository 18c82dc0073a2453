// Package profile implements the profile overlay stack of spec §3/§4.2:
// a chain of override records applied to a container graph in reverse
// order (oldest ancestor first, so the user's own profile wins last).
// Merging individual override fields follows the teacher's config
// layering idiom (mergo-based struct merge in pkg/config), generalized
// from "one user config overlaying built-in defaults" to an arbitrary
// parent chain of named profiles.
package profile

import (
	"fmt"
	"sort"

	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// LinkOverride is the { required, optional } shape a profile can
// declare for one container's links.
type LinkOverride struct {
	Required []string
	Optional []string
}

// ContainerOverride is one profile's per-container override record
// (spec §3 "Override-record").
type ContainerOverride struct {
	Links       *LinkOverride
	DevModes    []string
	Ports       map[string]string
	Environment map[string]string
	Ephemeral   bool
	DefaultBoot *bool
	MemLimit    *int64
	ImageTag    string
}

// Profile is one node in the parent chain (spec §3 "Profile").
type Profile struct {
	Name             string
	Parent           *Profile
	Description      string
	Version          string
	IgnoreDependencies bool
	InProfile        bool // compatibility profile, top-of-chain
	Containers       map[string]*ContainerOverride
}

// Chain returns the profile list from p up through every ancestor, in
// child-to-parent order (p first).
func (p *Profile) Chain() []*Profile {
	var chain []*Profile
	for cur := p; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	return chain
}

// Apply applies every profile in p's chain to g, oldest ancestor
// first, per spec §4.2.
func Apply(p *Profile, g *graph.Graph) error {
	chain := p.Chain()
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	for _, profile := range chain {
		if err := applyOne(profile, g); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(p *Profile, g *graph.Graph) error {
	names := make([]string, 0, len(p.Containers))
	for name := range p.Containers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		override := p.Containers[name]
		c := g.Container(name)
		if c == nil {
			continue // absent containers are skipped silently
		}
		opts := g.Options(name)

		if override.Links != nil {
			if err := applyLinkOverride(g, name, c, override.Links); err != nil {
				return err
			}
		}

		if p.InProfile {
			opts.InProfile = true
		}

		if override.DefaultBoot != nil {
			opts.DefaultBoot = override.DefaultBoot
		} else if p.InProfile {
			defaultBoot := !c.Foreground
			opts.DefaultBoot = &defaultBoot
		}

		for _, dm := range override.DevModes {
			opts.DevModes[dm] = true
		}

		if len(override.Ports) > 0 {
			if c.Ports == nil {
				c.Ports = make(map[string]string)
			}
			for k, v := range override.Ports {
				c.Ports[k] = v
			}
		}

		if override.ImageTag != "" {
			c.ImageTag = override.ImageTag
		}
		if len(override.Environment) > 0 {
			if c.Environment == nil {
				c.Environment = make(map[string]string)
			}
			for k, v := range override.Environment {
				c.Environment[k] = v
			}
		}
		if override.MemLimit != nil {
			c.MemLimit = *override.MemLimit
		}
	}
	return nil
}

// applyLinkOverride computes the desired link set per spec §4.2:
//
//	desired = { name ∈ container.links : (name ∈ current_deps ∧ name ∉ optional) ∨ name ∈ required }
func applyLinkOverride(g *graph.Graph, name string, c *graph.Container, override *LinkOverride) error {
	optional := make(map[string]bool, len(override.Optional))
	for _, n := range override.Optional {
		optional[n] = true
	}
	required := make(map[string]bool, len(override.Required))
	for _, n := range override.Required {
		required[n] = true
	}
	for _, n := range append(append([]string{}, override.Required...), override.Optional...) {
		if _, ok := c.Links[n]; !ok {
			return ftlerr.NewConfigError(name, n, "profile link override names a link the container does not declare")
		}
	}

	currentDeps := make(map[string]bool)
	for _, d := range g.Dependencies(name) {
		currentDeps[d] = true
	}

	var desired []string
	for alias := range c.Links {
		if (currentDeps[alias] && !optional[alias]) || required[alias] {
			desired = append(desired, alias)
		}
	}
	sort.Strings(desired)
	g.SetDependencies(name, desired)
	return nil
}

// Save serializes the profile's non-ephemeral container overrides for
// persistence, sorting sets for deterministic output (spec §4.2
// "save"). The caller is responsible for the actual YAML encoding —
// this just produces the stable, ephemeral-free structure to encode.
func Save(p *Profile) *Profile {
	out := &Profile{
		Name:               p.Name,
		Description:        p.Description,
		Version:            p.Version,
		IgnoreDependencies: p.IgnoreDependencies,
		Containers:         make(map[string]*ContainerOverride, len(p.Containers)),
	}
	for name, override := range p.Containers {
		if override.Ephemeral {
			continue
		}
		saved := *override
		if saved.Links != nil {
			sorted := LinkOverride{
				Required: sortedCopy(override.Links.Required),
				Optional: sortedCopy(override.Links.Optional),
			}
			saved.Links = &sorted
		}
		saved.DevModes = sortedCopy(override.DevModes)
		out.Containers[name] = &saved
	}
	return out
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Validate checks that every overridden container name exists in g,
// returning a ConfigError naming the first offender otherwise.
func Validate(p *Profile, g *graph.Graph) error {
	for name := range p.Containers {
		if g.Container(name) == nil {
			return ftlerr.NewConfigError(p.Name, name, fmt.Sprintf("profile references unknown container %q", name))
		}
	}
	return nil
}
