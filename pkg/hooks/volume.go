package hooks

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/build"
	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// Stopper is the capability VolumeProviderHook needs to tear down a
// running instance before its volume is recreated.
type Stopper interface {
	StopAction(ctx context.Context, i *formation.Instance) error
}

// VolumeProviderHook implements the orchestration half of spec §4.7's
// post-build volume extraction that build.ExtractVolume cannot do on
// its own: finding and stopping formation instances that currently
// mount the volume being replaced. It is meant to be registered on
// catalog.PostBuild.
type VolumeProviderHook struct {
	Engine  engine.Engine
	Graph   *graph.Graph
	Actual  *formation.Formation
	Stopper Stopper
	Log     *logrus.Entry
}

// Run is the catalog.Receiver body: payload carries "container" (the
// in-graph name just built) and "image_id" (the resulting image ID).
func (h *VolumeProviderHook) Run(ctx context.Context, containerName, imageID string) error {
	c := h.Graph.Container(containerName)
	if c == nil || c.ProvidesVolume == "" {
		return nil
	}
	volumeName := c.ProvidesVolume

	current, err := h.Engine.InspectVolume(ctx, volumeName)
	alreadyCurrent := err == nil && current.Labels[build.BuildIDLabel] == imageID
	if alreadyCurrent {
		return nil
	}

	for _, inst := range h.consumersOf(volumeName) {
		if h.Log != nil {
			h.Log.Infof("stopping %s to rebuild volume %s", inst.RuntimeName, volumeName)
		}
		if err := h.Stopper.StopAction(ctx, inst); err != nil {
			return err
		}
		delete(h.Actual.Instances, inst.RuntimeName)
	}

	return build.ExtractVolume(ctx, h.Engine, imageID, volumeName)
}

// consumersOf returns every actual instance whose container definition
// references volumeName, either as a named volume or a dev-mode mount.
func (h *VolumeProviderHook) consumersOf(volumeName string) []*formation.Instance {
	var out []*formation.Instance
	for _, inst := range h.Actual.Instances {
		c := h.Graph.Container(inst.Container)
		if c == nil {
			continue
		}
		if referencesVolume(c.NamedVolumes, volumeName) {
			out = append(out, inst)
			continue
		}
		for _, mounts := range c.DevModes {
			if referencesVolume(mounts, volumeName) {
				out = append(out, inst)
				break
			}
		}
	}
	return out
}

func referencesVolume(volumes map[string]graph.Volume, name string) bool {
	for _, v := range volumes {
		if v.Source == name {
			return true
		}
	}
	return false
}
