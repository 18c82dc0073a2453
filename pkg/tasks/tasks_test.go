package tasks

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTreeRendersRootAndChild(t *testing.T) {
	var out strings.Builder
	tree := NewTree(func(s string) { out.WriteString(s) })

	root := tree.NewRoot("start formation")
	child := root.NewChild("web")
	child.Finish(StatusGood, "running")
	root.Finish(StatusGood, "done")

	rendered := out.String()
	assert.Contains(t, rendered, "start formation")
	assert.Contains(t, rendered, "web")
	assert.Contains(t, rendered, "running")
}

func TestCollapseIfFinishedHidesChildren(t *testing.T) {
	var out strings.Builder
	tree := NewTree(func(s string) { out.WriteString(s) })

	root := tree.NewRoot("build")
	root.CollapseIfFinished = true
	child := root.NewChild("layer 1")
	child.Update("pulling")
	root.Finish(StatusGood, "built")

	lines := tree.visibleLines()
	assert.Len(t, lines, 1)
}

func TestHideIfEmptyOmitsBlankLeaf(t *testing.T) {
	tree := NewTree(func(string) {})
	root := tree.NewRoot("wait")
	leaf := root.NewChild("tcp check")
	leaf.HideIfEmpty = true

	lines := tree.visibleLines()
	assert.Len(t, lines, 1)
}

func TestRateLimiterCoalescesUpdates(t *testing.T) {
	var renders int
	tree := NewTree(func(string) { renders++ })
	task := tree.NewRoot("pull image")
	renders = 0

	rl := NewRateLimiter(task, 20*time.Millisecond)
	for i := 0; i < 5; i++ {
		rl.Update("layer progress")
	}
	rl.Close()

	assert.LessOrEqual(t, renders, 2)
	assert.Equal(t, "layer progress", task.StatusLine)
}

func TestPausedOutputSuspendsRendering(t *testing.T) {
	var renders int
	tree := NewTree(func(string) { renders++ })
	task := tree.NewRoot("attach")

	resume := tree.PausedOutput()
	before := renders
	task.Update("attached")
	assert.Equal(t, before, renders)

	resume()
	assert.Greater(t, renders, before)
}
