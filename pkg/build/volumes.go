package build

import (
	"context"
	"fmt"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"

	"github.com/ftlshipyards/ftl/pkg/engine"
)

// BuildIDLabel marks a volume with the image ID whose build last
// populated it, per spec §4.7's "volume provider" post-build check.
const BuildIDLabel = "build_id"

// ExtractVolume implements the engine-level half of spec §4.7's
// post-build volume extraction: given a just-built image and the
// volume name it provides, it recreates the named volume labeled with
// the image's ID (unless already current) and runs a one-shot
// container from the image with the volume mounted at /volume/,
// blocking until it exits. Stopping and removing other containers
// that reference the volume is the caller's responsibility (it needs
// the container graph, not just the engine).
func ExtractVolume(ctx context.Context, eng engine.Engine, imageID, volumeName string) error {
	current, err := eng.InspectVolume(ctx, volumeName)
	if err == nil && current.Labels[BuildIDLabel] == imageID {
		return nil
	}

	if err == nil {
		if rerr := eng.RemoveVolume(ctx, volumeName, true); rerr != nil {
			return rerr
		}
	}
	if cerr := eng.CreateVolume(ctx, volumeName, map[string]string{BuildIDLabel: imageID}); cerr != nil {
		return cerr
	}

	name := fmt.Sprintf("ftl-volume-extract-%s", volumeName)
	id, err := eng.CreateContainer(ctx, name,
		&dockercontainer.Config{Image: imageID},
		&dockercontainer.HostConfig{Binds: []string{fmt.Sprintf("%s:/volume", volumeName)}},
		nil,
	)
	if err != nil {
		return err
	}
	defer eng.RemoveContainer(ctx, id, true)

	if err := eng.Start(ctx, id); err != nil {
		return err
	}
	return waitForExit(ctx, eng, id)
}

// waitForExit polls the container's inspect state until it has
// stopped running. The engine interface has no blocking wait call, so
// extraction falls back to the same inspect-poll shape waits.go uses
// for its other readiness checks.
func waitForExit(ctx context.Context, eng engine.Engine, id string) error {
	for {
		info, err := eng.InspectContainer(ctx, id)
		if err != nil {
			return err
		}
		if info.State == nil || !info.State.Running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
