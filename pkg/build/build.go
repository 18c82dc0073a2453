package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/tasks"
)

// Builder drives one container's build: context assembly, the engine's
// streaming build, and the post-build re-tag/volume-extraction steps
// of spec §4.7.
type Builder struct {
	Engine engine.Engine
	Log    *logrus.Entry
}

func New(eng engine.Engine, log *logrus.Entry) *Builder {
	return &Builder{Engine: eng, Log: log}
}

// Request is everything one Build call needs.
type Request struct {
	Dir            string
	DockerfilePath string // relative to Dir, e.g. "Dockerfile"
	DockerfileBody string // raw contents of DockerfilePath, read by the caller
	ImageName      string // "{prefix}/{name}"
	Tag            string
	InPrefixImages map[string]string // FROM-reference -> rewritten in-prefix tag
	BuildArgs      map[string]*string
	ProvidesVolume string // non-empty if this container is a volume provider (spec §4.7)
}

// streamLine is one line of the engine's build-stream wire format.
type streamLine struct {
	Stream      string          `json:"stream"`
	Error       string          `json:"error"`
	ErrorDetail json.RawMessage `json:"errorDetail"`
}

// Build assembles the context, rewrites in-prefix FROM references,
// runs the engine build, and re-tags the result "latest" in addition
// to Tag (spec §4.7: "every build also updates :latest so dependents
// resolving by 'local' see the new image immediately").
func (b *Builder) Build(ctx context.Context, req Request, task *tasks.Task) error {
	rewritten := RewriteInPrefixFrom(req.DockerfileBody, req.InPrefixImages)

	buf, err := AssembleContextWithOverrides(req.Dir, map[string][]byte{
		req.DockerfilePath: []byte(rewritten),
	})
	if err != nil {
		return ftlerr.Wrap(err)
	}

	tag := fmt.Sprintf("%s:%s", req.ImageName, req.Tag)
	rc, err := b.Engine.Build(ctx, buf, engine.BuildOptions{
		Tags:       []string{tag},
		Dockerfile: req.DockerfilePath,
		BuildArgs:  req.BuildArgs,
	})
	if err != nil {
		return ftlerr.NewBuildFailureError(req.ImageName, nil)
	}
	defer rc.Close()

	logTail, err := consumeBuildStream(rc, task)
	if err != nil {
		return ftlerr.NewBuildFailureError(req.ImageName, logTail)
	}

	latest := fmt.Sprintf("%s:latest", req.ImageName)
	if latest != tag {
		if err := b.Engine.Tag(ctx, tag, latest); err != nil {
			return ftlerr.Wrap(err)
		}
	}

	// Volume-provider extraction (spec §4.7) is not done here: it
	// requires stopping formation instances that currently mount the
	// volume, which needs the container graph and actual formation the
	// builder doesn't have. See hooks.VolumeProviderHook, fired by the
	// caller as a post-build step when req.ProvidesVolume is set.
	return nil
}

// consumeBuildStream decodes the engine's newline-delimited JSON build
// stream, surfacing each "stream" chunk as a task status-line update
// and returning the last lines of output for error reporting (spec
// §4.7: "stream/error line handling, multi-line chunk accumulation" —
// a single logical message can itself span embedded newlines within
// one JSON "stream" value).
func consumeBuildStream(r io.Reader, task *tasks.Task) ([]string, error) {
	dec := json.NewDecoder(r)
	var tail []string
	const tailSize = 20

	for {
		var line streamLine
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				return tail, nil
			}
			return tail, err
		}

		if line.Error != "" {
			tail = appendTail(tail, line.Error, tailSize)
			return tail, fmt.Errorf("%s", line.Error)
		}

		if line.Stream == "" {
			continue
		}
		for _, chunk := range strings.Split(strings.TrimRight(line.Stream, "\n"), "\n") {
			if chunk == "" {
				continue
			}
			tail = appendTail(tail, chunk, tailSize)
			if task != nil {
				task.Update(chunk)
				if step, total, ok := parseStepLine(chunk); ok {
					task.SetProgress(step, total)
				}
			}
		}
	}
}

// stepLineRe matches the engine's "Step N/M : <instruction>" lines
// (spec §4.7: "if it begins with 'Step ', increment a progress
// counter and update the task status").
var stepLineRe = regexp.MustCompile(`^Step (\d+)/(\d+)`)

func parseStepLine(line string) (step, total int, ok bool) {
	if !strings.HasPrefix(line, "Step ") {
		return 0, 0, false
	}
	m := stepLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	step, errStep := strconv.Atoi(m[1])
	total, errTotal := strconv.Atoi(m[2])
	if errStep != nil || errTotal != nil {
		return 0, 0, false
	}
	return step, total, true
}

func appendTail(tail []string, line string, max int) []string {
	tail = append(tail, line)
	if len(tail) > max {
		tail = tail[len(tail)-max:]
	}
	return tail
}
