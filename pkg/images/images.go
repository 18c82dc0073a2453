// Package images implements the image repository of spec §4.6: local
// image-identity resolution, streaming pull/push with aggregated
// layer-progress reporting, and a pluggable registry-handler capability
// consulted for credentials. Progress aggregation follows the same
// "decode newline-delimited JSON from a ReadCloser, update a live
// status line" shape the builder (pkg/build) uses for its own build
// stream, both grounded on docker's own jsonmessage.Message wire format
// that the teacher's ImagePull/ImageBuild responses already speak.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/humanize"
	"github.com/ftlshipyards/ftl/pkg/tasks"
)

// localTag is spec §4.6's sentinel: a container whose image_tag reads
// "local" actually runs the "latest" tag of its own build.
const localTag = "local"

// coerceTag maps the "local" sentinel to "latest"; every other tag
// passes through unchanged.
func coerceTag(tag string) string {
	if tag == localTag {
		return "latest"
	}
	return tag
}

// RegistryHandler is the credential capability spec §4.6 calls a
// "registry handler": given a registry URL, produce a base64 docker
// auth header, and tear it down on logout. The AWS ECR / legacy_env
// plugins (out of core per spec §1) implement this for their own
// registries; PlainHandler below is the unauthenticated default.
type RegistryHandler interface {
	URL() string
	Login(ctx context.Context) (authBase64 string, err error)
	Logout(ctx context.Context) error
}

// PlainHandler is the registry handler used when no plugin claims a
// given registry: it never authenticates, matching spec §4.6's default
// "plain" handler for unauthenticated registries (including the local
// daemon and public Docker Hub pulls).
type PlainHandler struct{ Registry string }

func (p PlainHandler) URL() string                                    { return p.Registry }
func (p PlainHandler) Login(ctx context.Context) (string, error)      { return "", nil }
func (p PlainHandler) Logout(ctx context.Context) error               { return nil }

// Repository is the ImageRepository spec §4.3/§4.6 describes: local
// identity lookups, on-demand pulls, and registry-handler-backed auth,
// with the handler cache invalidated whenever a pull/push fails with
// an authorization error so the next attempt re-resolves credentials.
type Repository struct {
	Engine   engine.Engine
	Registry string
	Handlers []RegistryHandler
	Log      *logrus.Entry

	mu          sync.Mutex
	handlerByURL map[string]RegistryHandler
}

// New returns a Repository that resolves registry handlers from
// handlers, falling back to an unauthenticated PlainHandler for any
// registry none of them claims.
func New(eng engine.Engine, registry string, handlers []RegistryHandler, log *logrus.Entry) *Repository {
	return &Repository{
		Engine:       eng,
		Registry:     registry,
		Handlers:     handlers,
		Log:          log,
		handlerByURL: make(map[string]RegistryHandler),
	}
}

// ImageVersion resolves name:tag to a local content identity (spec
// §4.6 "image_version"), applying the "local"->"latest" tag coercion.
// A missing image is reported as ImageNotFoundError unless
// ignoreNotFound is set, in which case it resolves to "" so a caller
// building a best-effort dependency chain can proceed without it.
// Pulling a missing image is a separate, explicit operation
// (PullImageVersion) — this call never reaches the network.
func (r *Repository) ImageVersion(name, tag string, ignoreNotFound bool) (string, error) {
	ctx := context.Background()
	resolvedTag := coerceTag(tag)
	ref := fmt.Sprintf("%s:%s", name, resolvedTag)

	inspect, err := r.Engine.InspectImage(ctx, ref)
	if err == nil {
		return inspect.ID, nil
	}

	if ignoreNotFound {
		return "", nil
	}
	return "", ftlerr.NewImageNotFoundError(name, resolvedTag, name)
}

// maxPullAttempts is spec §4.6/§8's "retry is attempted at most 3
// times total" on a credential-refresh path.
const maxPullAttempts = 3

// PullImageVersion streams a pull of name:tag, implementing every skip
// rule of spec §4.6's pull_image_version: the "local" sentinel never
// reaches the network (it resolves to the already-built "latest"
// locally, spec §8's no-op property); a non-"latest" tag that already
// exists locally is served without a registry round-trip; and an
// unconfigured registry either returns "" silently (failSilently) or
// raises ImagePullFailure. A credential-related API error resets the
// cached registry handler and re-logs-in, retrying up to
// maxPullAttempts attempts total; any other error surfaces
// immediately. After a successful pull, the image is retagged
// "latest" in addition to tag so subsequent "local" resolutions see
// it right away.
func (r *Repository) PullImageVersion(ctx context.Context, name, tag string, failSilently bool, task *tasks.Task) (string, error) {
	if tag == localTag {
		return r.ImageVersion(name, "latest", false)
	}

	if tag != "latest" {
		if id, err := r.ImageVersion(name, tag, true); err == nil && id != "" {
			return id, nil
		}
	}

	if r.Registry == "" {
		if failSilently {
			return "", nil
		}
		return "", ftlerr.NewImagePullFailure(name, tag, fmt.Errorf("no registry configured"))
	}

	ref := fmt.Sprintf("%s:%s", name, tag)

	var lastErr error
	for attempt := 1; attempt <= maxPullAttempts; attempt++ {
		auth, err := r.authFor(ctx, name)
		if err != nil {
			return "", err
		}

		rc, pullErr := r.Engine.Pull(ctx, ref, auth)
		if pullErr != nil {
			lastErr = pullErr
			if isAuthError(pullErr) && attempt < maxPullAttempts {
				r.invalidateHandler(name)
				continue
			}
			return "", ftlerr.NewImagePullFailure(name, tag, pullErr)
		}

		progErr := aggregateProgress(rc, task)
		rc.Close()
		if progErr != nil {
			return "", ftlerr.NewImagePullFailure(name, tag, progErr)
		}

		inspect, err := r.Engine.InspectImage(ctx, ref)
		if err != nil {
			return "", ftlerr.NewImagePullFailure(name, tag, err)
		}

		latestRef := fmt.Sprintf("%s:latest", name)
		if ref != latestRef {
			if err := r.Engine.Tag(ctx, ref, latestRef); err != nil {
				return "", ftlerr.NewImagePullFailure(name, tag, err)
			}
		}
		return inspect.ID, nil
	}
	return "", ftlerr.NewImagePullFailure(name, tag, lastErr)
}

// PushImageVersion streams a push of name:tag, reporting aggregated
// per-layer progress on task.
func (r *Repository) PushImageVersion(ctx context.Context, name, tag string, task *tasks.Task) error {
	resolvedTag := coerceTag(tag)
	ref := fmt.Sprintf("%s:%s", name, resolvedTag)

	auth, err := r.authFor(ctx, name)
	if err != nil {
		return err
	}

	rc, err := r.Engine.Push(ctx, ref, auth)
	if err != nil {
		if isAuthError(err) {
			r.invalidateHandler(name)
			auth, authErr := r.authFor(ctx, name)
			if authErr != nil {
				return authErr
			}
			rc, err = r.Engine.Push(ctx, ref, auth)
		}
		if err != nil {
			return err
		}
	}
	defer rc.Close()

	return aggregateProgress(rc, task)
}

func (r *Repository) authFor(ctx context.Context, imageName string) (string, error) {
	handler := r.handlerFor(imageName)
	return handler.Login(ctx)
}

func (r *Repository) handlerFor(imageName string) RegistryHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handlerByURL[imageName]; ok {
		return h
	}
	for _, h := range r.Handlers {
		if h.URL() == r.Registry {
			r.handlerByURL[imageName] = h
			return h
		}
	}
	plain := PlainHandler{Registry: r.Registry}
	r.handlerByURL[imageName] = plain
	return plain
}

func (r *Repository) invalidateHandler(imageName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlerByURL, imageName)
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"unauthorized", "authentication required", "403 Forbidden"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// layerProgress is one line of docker's jsonmessage wire format, the
// same shape both pull/push and build streams use.
type layerProgress struct {
	Status         string `json:"status"`
	ID             string `json:"id"`
	Error          string `json:"error"`
	ProgressDetail struct {
		Current int64 `json:"current"`
		Total   int64 `json:"total"`
	} `json:"progressDetail"`
}

// layerTotal is one layer's running {current, total} byte count, spec
// §4.6's per-layer progress map.
type layerTotal struct {
	current int64
	total   int64
}

// completeStatuses are the jsonmessage "status" strings that mean a
// layer finished transferring even though the engine never sends a
// final progressDetail for it (e.g. layers already present locally).
var completeStatuses = map[string]bool{
	"Pull complete":        true,
	"Already exists":       true,
	"Layer already exists": true,
	"Push complete":        true,
	"Mounted from":         true,
}

// aggregateProgress decodes a newline-delimited JSON progress stream,
// summing each layer's {current, total} into a single (Σcurrent,
// Σtotal) figure published on task after every line (spec §4.6).
func aggregateProgress(r io.Reader, task *tasks.Task) error {
	dec := json.NewDecoder(r)
	layers := make(map[string]*layerTotal)

	for {
		var msg layerProgress
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if msg.Error != "" {
			return fmt.Errorf("%s", msg.Error)
		}
		if msg.ID != "" {
			layer, ok := layers[msg.ID]
			if !ok {
				layer = &layerTotal{}
				layers[msg.ID] = layer
			}
			if msg.ProgressDetail.Total > 0 {
				layer.current = msg.ProgressDetail.Current
				layer.total = msg.ProgressDetail.Total
			}
			if completeStatuses[msg.Status] {
				layer.current = layer.total
			}
		}
		if task != nil {
			current, total := sumLayers(layers)
			task.SetProgress(int(current), int(total))
			task.Update(progressLine(msg.Status, current, total))
		}
	}
}

func sumLayers(layers map[string]*layerTotal) (current, total int64) {
	for _, l := range layers {
		current += l.current
		total += l.total
	}
	return current, total
}

func progressLine(status string, current, total int64) string {
	if total == 0 {
		return status
	}
	return fmt.Sprintf("%s (%s / %s)", status, humanize.FileSize(current, false), humanize.FileSize(total, false))
}
