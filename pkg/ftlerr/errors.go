// Package ftlerr defines the typed error taxonomy of spec §7: each
// error behavior gets its own type so calling code can branch on it,
// the same role the teacher's commands.ComplexError plays for docker
// errors, built the same way (a message plus an xerrors.Frame so a
// stack trace survives to the top level).
package ftlerr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Wrap annotates err with a stack trace for display at the top level,
// mirroring commands.WrapError: go-errors.Wrap never returns nil for a
// non-nil input, so we guard that ourselves.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 0)
}

// frame carries the errors.Wrap-the-point-of-construction stack trace
// every ftlerr type embeds, so any of them can be passed to
// xerrors.FormatError / printed with "%+v".
type frame struct {
	f xerrors.Frame
}

func newFrame() frame { return frame{f: xerrors.Caller(1)} }

// ConfigError — spec §7 "Config error": a chart/profile YAML file is
// missing, malformed, or violates the schema.
type ConfigError struct {
	frame
	Path    string
	Key     string
	Message string
}

func NewConfigError(path, key, message string) *ConfigError {
	return &ConfigError{frame: newFrame(), Path: path, Key: key, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error in %s (key %q): %s", e.Path, e.Key, e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Path, e.Message)
}

// ImageNotFoundError — spec §7 "Image-not-found": annotated with the
// responsible container (own vs. linked).
type ImageNotFoundError struct {
	frame
	ImageName        string
	Tag              string
	Container        string
	ResponsibleOwner string // "" if Container itself is responsible, else the dependent that needs it
}

func NewImageNotFoundError(imageName, tag, container string) *ImageNotFoundError {
	return &ImageNotFoundError{frame: newFrame(), ImageName: imageName, Tag: tag, Container: container}
}

func (e *ImageNotFoundError) Error() string {
	who := e.Container
	if e.ResponsibleOwner != "" {
		who = fmt.Sprintf("%s (required by %s)", e.Container, e.ResponsibleOwner)
	}
	return fmt.Sprintf("image %s:%s not found locally for %s — run `ftl build %s` first", e.ImageName, e.Tag, who, e.Container)
}

// WithResponsibleOwner annotates the image-not-found error with the
// dependent container that pulled it in, per spec §4.3 step 2: "annotate
// the 'image not found' error with the responsible container and
// propagate".
func (e *ImageNotFoundError) WithResponsibleOwner(owner string) *ImageNotFoundError {
	e.ResponsibleOwner = owner
	return e
}

// ImagePullFailure — spec §7 "Image-pull failure": carries remote_name,
// image_tag, and an underlying cause.
type ImagePullFailure struct {
	frame
	RemoteName string
	ImageTag   string
	Cause      error
}

func NewImagePullFailure(remoteName, imageTag string, cause error) *ImagePullFailure {
	return &ImagePullFailure{frame: newFrame(), RemoteName: remoteName, ImageTag: imageTag, Cause: cause}
}

func (e *ImagePullFailure) Error() string {
	return fmt.Sprintf("cannot pull %s:%s: %v — try `ftl registry login`", e.RemoteName, e.ImageTag, e.Cause)
}

func (e *ImagePullFailure) Unwrap() error { return e.Cause }

// BuildFailureError — spec §7 "Build failure": the build stream
// reported an error or the engine returned a failed status.
type BuildFailureError struct {
	frame
	Container string
	LogTail   []string
}

func NewBuildFailureError(container string, logTail []string) *BuildFailureError {
	return &BuildFailureError{frame: newFrame(), Container: container, LogTail: logTail}
}

func (e *BuildFailureError) Error() string {
	return fmt.Sprintf("build failed for %s", e.Container)
}

// ContainerBootFailure — spec §7 "Container boot failure": a container
// died during start, failed its boot probe, or failed a wait.
type ContainerBootFailure struct {
	frame
	Container string
	Reason    string
	LogTail   []string
}

func NewContainerBootFailure(container, reason string, logTail []string) *ContainerBootFailure {
	return &ContainerBootFailure{frame: newFrame(), Container: container, Reason: reason, LogTail: logTail}
}

func (e *ContainerBootFailure) Error() string {
	return fmt.Sprintf("%s failed to boot: %s", e.Container, e.Reason)
}

// RuntimeError — spec §7 "Runtime error": all other engine-side
// failures, carrying an optional code and offending instance.
type RuntimeError struct {
	frame
	Instance string
	Code     int
	Cause    error
}

func NewRuntimeError(instance string, code int, cause error) *RuntimeError {
	return &RuntimeError{frame: newFrame(), Instance: instance, Code: code, Cause: cause}
}

func (e *RuntimeError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("runtime error on %s: %v", e.Instance, e.Cause)
	}
	return fmt.Sprintf("runtime error: %v", e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// InteractiveTransfer is not a failure: raised internally by a start
// worker when a foreground container is ready for PTY attach (spec
// §4.5, §7 "Interactive transfer"). Handler is the zero-argument
// takeover function the driver runs on the main thread after catching
// this.
type InteractiveTransfer struct {
	Instance string
	Handler  func() error
}

func (e *InteractiveTransfer) Error() string {
	return fmt.Sprintf("interactive transfer pending for %s", e.Instance)
}

// IsInteractiveTransfer reports whether err is (or wraps) an
// InteractiveTransfer, and returns it if so.
func IsInteractiveTransfer(err error) (*InteractiveTransfer, bool) {
	it, ok := err.(*InteractiveTransfer)
	return it, ok
}

// EngineUnavailableError — spec §7 "Engine-unavailable": raised when
// the engine socket or TLS handshake fails.
type EngineUnavailableError struct {
	frame
	Cause error
}

func NewEngineUnavailableError(cause error) *EngineUnavailableError {
	return &EngineUnavailableError{frame: newFrame(), Cause: cause}
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("container engine unavailable: %v", e.Cause)
}

func (e *EngineUnavailableError) Unwrap() error { return e.Cause }

// DeadlockError names the instances still queued or processing when the
// runner's idle-iteration counter trips (spec §4.5, §5, §8).
type DeadlockError struct {
	frame
	Pending []string
}

func NewDeadlockError(pending []string) *DeadlockError {
	return &DeadlockError{frame: newFrame(), Pending: pending}
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock detected: no progress starting/stopping %v", e.Pending)
}
