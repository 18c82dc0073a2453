// Package introspect converts a live host's container list into a
// formation of the same shape the runner compares against the desired
// state (spec §4.4), resolving image digests and dev-mode membership
// the same way the teacher's Container construction resolves state
// from a types.Container/types.ContainerJSON pair (pkg/commands/container.go).
package introspect

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
)

// ImageDigestResolver resolves a {name, tag} pair to a content digest,
// backed by the image repository (pkg/images).
type ImageDigestResolver interface {
	Digest(name, tag string) (string, error)
}

// Introspect lists containers on the formation's network and builds a
// current-state Formation, per spec §4.4.
func Introspect(ctx context.Context, eng engine.Engine, g *graph.Graph, images ImageDigestResolver, networkName string, logger *logrus.Entry) (*formation.Formation, error) {
	containers, err := eng.Containers(ctx, true, nil)
	if err != nil {
		return nil, err
	}

	f := formation.New(networkName)
	pendingLinks := make(map[string]map[string]string) // runtimeName -> alias -> target container name

	for _, c := range containers {
		if !memberOfNetwork(c, networkName) {
			continue
		}

		identity, ok := c.Labels[engine.IdentityLabel]
		if !ok {
			logger.Warnf("introspect: container %s has no container-identity label, skipping", c.ID)
			continue
		}

		detail, err := eng.InspectContainer(ctx, c.ID)
		if err != nil {
			return nil, err
		}

		imageID, err := resolveImageIdentity(detail.Image, images)
		if err != nil {
			return nil, err
		}

		inst := &formation.Instance{
			RegistrationID: uuid.NewString(),
			RuntimeName:    strings.TrimPrefix(detail.Name, "/"),
			Container:      identity,
			ImageID:        imageID,
			Links:       make(map[string]string),
			DevModes:    devModesPresent(g.Container(identity), detail),
			Ports:       make(map[string]string),
			Environment: make(map[string]string),
			PortMapping: make(map[string]string),
		}

		if detail.NetworkSettings != nil {
			if net, ok := detail.NetworkSettings.Networks[networkName]; ok {
				inst.IPAddress = net.IPAddress
				aliasLinks := parseLinks(net.Links)
				if len(aliasLinks) > 0 {
					pendingLinks[inst.RuntimeName] = aliasLinks
				}
			}
		}
		for priv, bindings := range detail.NetworkSettings.Ports {
			if len(bindings) > 0 {
				inst.PortMapping[string(priv)] = bindings[0].HostPort
			}
		}

		f.Instances[inst.RuntimeName] = inst
	}

	resolveLinks(f, pendingLinks)
	return f, nil
}

func memberOfNetwork(c types.Container, networkName string) bool {
	if c.NetworkSettings == nil {
		return false
	}
	_, ok := c.NetworkSettings.Networks[networkName]
	return ok
}

func resolveImageIdentity(image string, images ImageDigestResolver) (string, error) {
	if strings.HasPrefix(image, "sha256:") {
		return image, nil
	}
	name, tag := splitImageRef(image)
	return images.Digest(name, tag)
}

func splitImageRef(ref string) (name, tag string) {
	idx := strings.LastIndex(ref, ":")
	if idx < 0 {
		return ref, "latest"
	}
	return ref[:idx], ref[idx+1:]
}

// parseLinks parses docker's "target:alias" link strings into an
// alias->target-container-name map, per spec §4.4.
func parseLinks(links []string) map[string]string {
	out := make(map[string]string, len(links))
	for _, l := range links {
		parts := strings.SplitN(l, ":", 2)
		if len(parts) != 2 {
			continue
		}
		target := strings.TrimPrefix(parts[0], "/")
		aliasParts := strings.Split(parts[1], "/")
		alias := aliasParts[len(aliasParts)-1]
		out[alias] = target
	}
	return out
}

// devModesPresent includes a dev-mode only if every mount-destination
// it declares appears in the live Mounts list, per spec §4.4.
func devModesPresent(c *graph.Container, detail types.ContainerJSON) map[string]bool {
	out := make(map[string]bool)
	if c == nil {
		return out
	}
	live := make(map[string]bool, len(detail.Mounts))
	for _, m := range detail.Mounts {
		live[m.Destination] = true
	}
	for name, mounts := range c.DevModes {
		allPresent := true
		for dest := range mounts {
			if !live[dest] {
				allPresent = false
				break
			}
		}
		if allPresent {
			out[name] = true
		}
	}
	return out
}

// resolveLinks resolves each instance's string-valued link targets to
// runtime-names via formation-by-name lookup; unresolved links are
// dropped so orphans can still be stopped (spec §4.4).
func resolveLinks(f *formation.Formation, pending map[string]map[string]string) {
	for runtimeName, aliasLinks := range pending {
		inst, ok := f.Instances[runtimeName]
		if !ok {
			continue
		}
		for alias, targetContainerName := range aliasLinks {
			target := f.ByContainerName(targetContainerName)
			if target != nil {
				inst.Links[alias] = target.RuntimeName
			}
		}
	}
}
