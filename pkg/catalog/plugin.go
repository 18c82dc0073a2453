package catalog

import (
	"fmt"
	"sort"

	"github.com/ftlshipyards/ftl/pkg/sortutil"
)

// Plugin is a named unit contributed by the external plugin layer
// (spec §1 Non-goals: "specific plugin implementations... live
// outside core"). Identity is its Name, used both as the stable
// tie-break key for topological loading and for diagnostics.
type Plugin interface {
	Name() string
	Provides() []string
	Requires() []string
	Load(bus *Bus, cat *Catalog) error
}

// LoadPlugins validates every plugin's provides/requires against the
// full set, topologically sorts by Requires (tie-broken by Name for a
// deterministic load order), then calls Load on each in that order —
// spec §4.8: "For each plugin p, every name in p.provides must be
// provided by exactly one plugin. For every name in p.requires, some
// plugin must provide it. Topologically sort by requires..., then
// instantiate and call load() on each."
func LoadPlugins(plugins []Plugin, bus *Bus, cat *Catalog) error {
	providerOf := make(map[string]string, len(plugins)*2)
	for _, p := range plugins {
		for _, name := range p.Provides() {
			if owner, exists := providerOf[name]; exists {
				return fmt.Errorf("catalog: %q provided by both %q and %q", name, owner, p.Name())
			}
			providerOf[name] = p.Name()
		}
	}

	for _, p := range plugins {
		for _, need := range p.Requires() {
			if _, ok := providerOf[need]; !ok {
				return fmt.Errorf("catalog: plugin %q requires %q, provided by no plugin", p.Name(), need)
			}
		}
	}

	byName := make(map[string]Plugin, len(plugins))
	names := make([]string, 0, len(plugins))
	deps := make(map[string][]string, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = p
		names = append(names, p.Name())
		var depNames []string
		for _, need := range p.Requires() {
			depNames = append(depNames, providerOf[need])
		}
		deps[p.Name()] = depNames
	}
	sort.Strings(names)

	order, err := sortutil.TopoSort(names, deps)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	for _, name := range order {
		if err := byName[name].Load(bus, cat); err != nil {
			return fmt.Errorf("catalog: loading plugin %q: %w", name, err)
		}
	}
	return nil
}
