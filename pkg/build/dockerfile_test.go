package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteInPrefixFromRewritesKnownReference(t *testing.T) {
	dockerfile := "FROM demo/base:v2\nRUN echo hi\n"
	out := RewriteInPrefixFrom(dockerfile, map[string]string{"demo/base:v2": "demo/base-v2"})
	assert.Contains(t, out, "FROM demo/base-v2")
	assert.NotContains(t, out, "demo/base:v2")
}

func TestRewriteInPrefixFromLeavesUnknownReferenceAlone(t *testing.T) {
	dockerfile := "FROM debian:bookworm\n"
	out := RewriteInPrefixFrom(dockerfile, map[string]string{"demo/base:v2": "demo/base-v2"})
	assert.Equal(t, dockerfile, out)
}

func TestRewriteInPrefixFromHandlesMultiStage(t *testing.T) {
	dockerfile := "FROM demo/base:v2 AS builder\nFROM debian\n"
	out := RewriteInPrefixFrom(dockerfile, map[string]string{"demo/base:v2": "demo/base-v2"})
	assert.Contains(t, out, "FROM demo/base-v2 AS builder")
	assert.Contains(t, out, "FROM debian")
}

func TestColonToDash(t *testing.T) {
	assert.Equal(t, "demo/base-v2", ColonToDash("demo/base:v2"))
}
