// Package tasks implements the hierarchical, terminal-aware task tree
// of spec §3/§4.11: a tree of named nodes updated concurrently by
// worker goroutines and rendered under a single process-global console
// mutex, the same "shared state behind one lock, goroutines push
// updates" shape as the teacher's DockerCommand stat monitors
// (pkg/commands/docker.go ContainerMutex), generalized from a flat
// container list to a parent/child tree and from a polling ticker to
// an explicit in-place cursor redraw.
package tasks

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	throttle "github.com/boz/go-throttle"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// consoleMutex is the single process-global lock spec §4.11 requires:
// every render and every paused_output()/rate_limit() transition
// serializes through it, exactly as DockerCommand.ContainerMutex
// serializes every container-state mutation in the teacher.
var consoleMutex sync.Mutex

// Status is a task's terminal status flavor.
type Status int

const (
	StatusRunning Status = iota
	StatusGood
	StatusBad
	StatusWarn
)

// Progress is an optional (count, total) pair shown next to a task's
// status line.
type Progress struct {
	Count, Total int
}

// Task is a tree node: name, optional parent, children, status, an
// optional progress counter, a free-form extra-info list, and the two
// display flags from spec §3 (collapse-if-finished, hide-if-empty).
type Task struct {
	mu sync.Mutex

	Name              string
	Parent            *Task
	Children          []*Task
	Status            Status
	StatusLine        string
	Progress          *Progress
	ExtraInfo         []string
	Finished          bool
	CollapseIfFinished bool
	HideIfEmpty       bool

	tree *Tree
}

// Tree owns the root tasks, the renderer's redraw bookkeeping, and the
// rate-limit/pause state. Exactly one Tree should exist per process.
type Tree struct {
	mu           sync.Mutex
	roots        []*Task
	out          *strings.Builder // nil means render to the real terminal via writeLines
	clearedLines int
	paused       bool
	writer       func(string)
}

// NewTree creates an empty task tree that renders lines via write,
// which the caller wires to stdout (or a buffer, in tests).
func NewTree(write func(string)) *Tree {
	return &Tree{writer: write}
}

// NewRoot adds a new top-level task.
func (t *Tree) NewRoot(name string) *Task {
	task := &Task{Name: name, tree: t}
	t.mu.Lock()
	t.roots = append(t.roots, task)
	t.mu.Unlock()
	t.Render()
	return task
}

// NewChild adds name as a child of parent.
func (parent *Task) NewChild(name string) *Task {
	child := &Task{Name: name, Parent: parent, tree: parent.tree}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	parent.tree.Render()
	return child
}

// Update sets the status line for an in-progress task, mirroring the
// boot-probe's "finished=None updates the start-task's status line"
// rule in spec §4.9.
func (task *Task) Update(statusLine string) {
	task.mu.Lock()
	task.StatusLine = statusLine
	task.mu.Unlock()
	task.tree.Render()
}

// SetProgress updates a task's (count, total) progress pair.
func (task *Task) SetProgress(count, total int) {
	task.mu.Lock()
	task.Progress = &Progress{Count: count, Total: total}
	task.mu.Unlock()
	task.tree.Render()
}

// SetExtraInfo replaces a task's extra-info lines.
func (task *Task) SetExtraInfo(lines ...string) {
	task.mu.Lock()
	task.ExtraInfo = lines
	task.mu.Unlock()
	task.tree.Render()
}

// Finish marks the task done with the given terminal status.
func (task *Task) Finish(status Status, statusLine string) {
	task.mu.Lock()
	task.Status = status
	task.StatusLine = statusLine
	task.Finished = true
	task.mu.Unlock()
	task.tree.Render()
}

// Render recomputes the full set of visible lines and redraws the
// terminal in place: move the cursor up by the previous line count,
// erase, then print the new lines, per spec §4.11's rendering
// contract. A no-op while paused.
func (t *Tree) Render() {
	consoleMutex.Lock()
	defer consoleMutex.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused || t.writer == nil {
		return
	}

	lines := t.visibleLines()

	var b strings.Builder
	for i := 0; i < t.clearedLines; i++ {
		b.WriteString("\x1b[1A\x1b[2K")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	t.writer(b.String())
	t.clearedLines = len(lines)
}

func (t *Tree) visibleLines() []string {
	var lines []string
	for _, root := range t.roots {
		lines = append(lines, root.renderLines(0)...)
	}
	return lines
}

func (task *Task) renderLines(depth int) []string {
	task.mu.Lock()
	hide := task.HideIfEmpty && len(task.Children) == 0 && task.StatusLine == ""
	collapse := task.CollapseIfFinished && task.Finished
	line := task.formatLine(depth)
	children := append([]*Task(nil), task.Children...)
	task.mu.Unlock()

	if hide {
		return nil
	}

	lines := []string{line}
	if collapse {
		return lines
	}
	for _, c := range children {
		lines = append(lines, c.renderLines(depth+1)...)
	}
	return lines
}

func (task *Task) formatLine(depth int) string {
	indent := strings.Repeat("  ", depth)
	marker := statusMarker(task.Status, task.Finished)
	line := fmt.Sprintf("%s%s %s", indent, marker, task.Name)
	if task.StatusLine != "" {
		line += ": " + task.StatusLine
	}
	if task.Progress != nil {
		line += fmt.Sprintf(" [%d/%d]", task.Progress.Count, task.Progress.Total)
	}
	for _, info := range task.ExtraInfo {
		line += " " + color.New(color.Faint).Sprint(info)
	}
	return line
}

func statusMarker(s Status, finished bool) string {
	switch {
	case !finished:
		return color.New(color.FgYellow).Sprint("*")
	case s == StatusGood:
		return color.New(color.FgGreen).Sprint(unicodeTick)
	case s == StatusBad:
		return color.New(color.FgRed).Sprint(unicodeCross)
	case s == StatusWarn:
		return color.New(color.FgYellow).Sprint("!")
	default:
		return "-"
	}
}

const (
	unicodeTick  = "✓"
	unicodeCross = "✗"
)

// VisibleWidth returns a line's displayed terminal width, ignoring
// ANSI color codes, for callers that need to line-wrap rendered task
// output (the same measurement utils.WithPadding uses elsewhere).
func VisibleWidth(line string) int {
	return runewidth.StringWidth(stripansi.Strip(line))
}

// RateLimiter is the buffered proxy spec §4.11 calls rate_limit(): it
// accumulates the most recent Update/SetExtraInfo call per task and
// flushes on a throttled timer, so a worker issuing many small updates
// per second doesn't force a terminal redraw for each one. Coalescing
// is driven by the teacher's own github.com/boz/go-throttle (used for
// gui.refresh at pkg/gui/gui.go in the teacher), with trailing=true so
// a burst of updates inside one period still gets a final flush once
// the period ends instead of being dropped.
type RateLimiter struct {
	task *Task

	mu           sync.Mutex
	pendingLine  *string
	pendingExtra *[]string

	driver throttle.ThrottleDriver
}

// DefaultRateLimitInterval is spec §4.11's 100ms default flush period.
const DefaultRateLimitInterval = 100 * time.Millisecond

// NewRateLimiter starts a flush loop for task at the given interval.
// Callers must call Close to stop the loop.
func NewRateLimiter(task *Task, interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = DefaultRateLimitInterval
	}
	r := &RateLimiter{task: task}
	r.driver = throttle.ThrottleFunc(interval, true, r.flush)
	return r
}

func (r *RateLimiter) flush() {
	r.mu.Lock()
	line := r.pendingLine
	extra := r.pendingExtra
	r.pendingLine = nil
	r.pendingExtra = nil
	r.mu.Unlock()

	if line != nil {
		r.task.Update(*line)
	}
	if extra != nil {
		r.task.SetExtraInfo(*extra...)
	}
}

// Update buffers a status line update for the next flush tick instead
// of rendering immediately.
func (r *RateLimiter) Update(statusLine string) {
	r.mu.Lock()
	r.pendingLine = &statusLine
	r.mu.Unlock()
	r.driver.Trigger()
}

// SetExtraInfo buffers an extra-info update for the next flush tick.
func (r *RateLimiter) SetExtraInfo(lines ...string) {
	r.mu.Lock()
	r.pendingExtra = &lines
	r.mu.Unlock()
	r.driver.Trigger()
}

// Close stops the throttle and flushes any update still pending from
// the final period so Close always leaves the task showing the most
// recent buffered state instead of whatever the throttle last got
// around to.
func (r *RateLimiter) Close() {
	r.driver.Stop()
	r.flush()
}

// PausedOutput suspends rendering so an external process (PTY attach,
// interactive shell) can own the terminal; spec §4.11 requires this to
// bubble to the root tree and reset cleared_lines on exit so the tree
// redraws from its current cursor position rather than assuming stale
// state. Call the returned function to resume.
func (t *Tree) PausedOutput() func() {
	consoleMutex.Lock()
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
	consoleMutex.Unlock()

	return func() {
		consoleMutex.Lock()
		t.mu.Lock()
		t.paused = false
		t.clearedLines = 0
		t.mu.Unlock()
		consoleMutex.Unlock()
		t.Render()
	}
}
