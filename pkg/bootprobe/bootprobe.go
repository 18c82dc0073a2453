// Package bootprobe implements the two-file in-container readiness
// protocol of spec §4.9: /helios/boot_status (a streaming status file
// whose last line is JSON {message}) and /helios/boot_complete (an
// empty sentinel), polled on a 0.5s cadence by the runner's start
// worker. File reads go through the same GetArchive capability the
// engine already exposes for container-to-host file transfer.
package bootprobe

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/client"
)

// ArchiveReader is the subset of engine.Engine the probe needs: a
// single-file read via the container-engine's get-archive call, plus
// an inspect to determine whether the container still exists/runs.
type ArchiveReader interface {
	GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error)
	IsRunning(ctx context.Context, id string) (running, exists bool, err error)
}

// IsContainerNotFound reports whether err indicates the container no
// longer exists, used by ArchiveReader implementations built on the
// docker client.
func IsContainerNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

const (
	statusPath   = "/helios/boot_status"
	completePath = "/helios/boot_complete"

	// PollInterval is spec §4.9's 500ms polling cadence.
	PollInterval = 500 * time.Millisecond
	// backwardCompatWindow is how long the probe waits for a
	// boot-unaware image before assuming it is simply done booting.
	backwardCompatWindow = 2 * time.Second
)

type statusMessage struct {
	Message string `json:"message"`
}

// Result is one (finished, message) tuple the probe yields.
type Result struct {
	Finished *bool // nil means "keep polling, message is a status update"
	Message  string
}

// Poll runs a single probe iteration per spec §4.9's decision tree.
func Poll(ctx context.Context, reader ArchiveReader, containerID string, pollingSince time.Time) Result {
	running, exists, err := reader.IsRunning(ctx, containerID)
	if err != nil || !exists {
		return finished(false, "Container does not exist")
	}
	if !running {
		return finished(false, "Container died during boot")
	}

	if content, ok := readFile(ctx, reader, containerID, completePath); ok {
		_ = content
		return finished(true, "")
	}

	content, ok := readFile(ctx, reader, containerID, statusPath)
	if !ok {
		if time.Since(pollingSince) >= backwardCompatWindow {
			return finished(true, "Non-seedship boot complete")
		}
		return Result{Message: ""}
	}

	return Result{Message: lastLineMessage(content)}
}

func finished(ok bool, message string) Result {
	f := ok
	return Result{Finished: &f, Message: message}
}

func lastLineMessage(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	last := lines[len(lines)-1]

	var msg statusMessage
	if err := json.Unmarshal([]byte(last), &msg); err != nil {
		return last
	}
	return strings.TrimSuffix(msg.Message, ":")
}

// readFile fetches a single file out of the container via GetArchive
// (which returns a tar stream) and returns its content.
func readFile(ctx context.Context, reader ArchiveReader, containerID, path string) (string, bool) {
	rc, err := reader.GetArchive(ctx, containerID, path)
	if err != nil {
		return "", false
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", false
		}
		if err != nil {
			return "", false
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return "", false
		}
		return buf.String(), true
	}
}
