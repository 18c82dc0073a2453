// Package hooks implements the two pieces of build/run orchestration
// that sit above the bare catalog.Bus dispatch (spec §4.7's post-build
// volume extraction and §4.10's boot-container auto-start): logic that
// needs the container graph and the running formation, not just a
// list of receivers. The sub-formation convergence used to bring up
// boot containers follows the same runner.Converge call the top-level
// CLI uses for a regular "up", generalized to a graph-derived subset.
package hooks

import (
	"context"
	"fmt"

	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// ImageRepository is the capability EnsureBootSet needs to tell
// whether a required boot container already has a local image.
type ImageRepository interface {
	ImageVersion(name, tag string, ignoreNotFound bool) (string, error)
}

// Converger is the capability EnsureBootSet needs to bring a
// sub-formation of boot containers up to the running state.
type Converger interface {
	Converge(ctx context.Context, desired, actual *formation.Formation) error
}

// BootOrchestrator implements spec §4.10's boot-container auto-start:
// before a build or a run, compute the merged boot set for the target
// container, and bring up any member not already running.
type BootOrchestrator struct {
	Graph     *graph.Graph
	Images    ImageRepository
	Converger Converger
	Actual    *formation.Formation // the host's current running formation
}

// EnsureBootSet implements spec §4.10: "Before building or running a
// container, compute the merged boot set (required wins over
// optional), start any not-already-running members via a
// sub-formation; for required members missing a local image, abort."
func (o *BootOrchestrator) EnsureBootSet(ctx context.Context, containerName, phase string) error {
	bootSet := o.Graph.MergedBootSet(containerName, phase)
	if len(bootSet) == 0 {
		return nil
	}

	sub := formation.New(o.Actual.NetworkName)
	for name, req := range bootSet {
		if o.Actual.ByContainerName(name) != nil {
			continue
		}

		c := o.Graph.Container(name)
		if c == nil {
			return fmt.Errorf("hooks: boot container %q not in graph", name)
		}
		id, err := o.Images.ImageVersion(c.ImageName(), c.ImageTag, true)
		if err != nil {
			return fmt.Errorf("hooks: boot container %q: %w", name, err)
		}
		if id == "" {
			if req == graph.BootRequired {
				return fmt.Errorf("hooks: required boot container %q has no local image", name)
			}
			continue
		}

		if _, err := formation.AddContainer(sub, o.Graph, o.Images, name, false); err != nil {
			return fmt.Errorf("hooks: boot container %q: %w", name, err)
		}
	}

	if len(sub.Instances) == 0 {
		return nil
	}
	if err := o.Converger.Converge(ctx, sub, o.Actual); err != nil {
		return err
	}
	for name, inst := range sub.Instances {
		o.Actual.Instances[name] = inst
	}
	return nil
}
