package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	type scenario struct {
		multilineString string
		expected        []string
	}

	scenarios := []scenario{
		{"", []string{}},
		{"\n", []string{}},
		{
			"hello world !\nhello universe !\n",
			[]string{"hello world !", "hello universe !"},
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, SplitLines(s.multilineString))
	}
}

func TestWithPadding(t *testing.T) {
	type scenario struct {
		str      string
		padding  int
		expected string
	}

	scenarios := []scenario{
		{"hello world !", 1, "hello world !"},
		{"hello world !", 14, "hello world ! "},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, WithPadding(s.str, s.padding))
	}
}

func TestNormalizeLinefeeds(t *testing.T) {
	assert.Equal(t, "a\nb\nc", NormalizeLinefeeds("a\r\nb\rc"))
}

func TestDisplayArraysAligned(t *testing.T) {
	assert.True(t, displayArraysAligned([][]string{{"a", "b"}, {"c", "d"}}))
	assert.False(t, displayArraysAligned([][]string{{"a", "b"}, {"c"}}))
}

func TestRenderTable(t *testing.T) {
	out, err := RenderTable([][]string{
		{"a", "bb"},
		{"ccc", "d"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "a   bb\nccc d", out)
}

func TestSafeTruncate(t *testing.T) {
	assert.Equal(t, "hel", SafeTruncate("hello", 3))
	assert.Equal(t, "hi", SafeTruncate("hi", 10))
}

func TestWithShortSha(t *testing.T) {
	sha := "0123456789012345678901234567890123456789012345678901234567890123"[:64]
	assert.Equal(t, "run "+sha[:10], WithShortSha("run "+sha))
}
