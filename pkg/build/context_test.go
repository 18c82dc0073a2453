package build

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dockerfile"), []byte("FROM debian\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644))
}

func readEntries(t *testing.T, buf *bytes.Buffer) map[string]*tar.Header {
	t.Helper()
	tr := tar.NewReader(buf)
	entries := make(map[string]*tar.Header)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		h := *hdr
		entries[hdr.Name] = &h
	}
	return entries
}

func TestAssembleContextNormalizesModTime(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	buf, err := AssembleContext(root)
	require.NoError(t, err)

	entries := readEntries(t, buf)
	hdr, ok := entries["Dockerfile"]
	require.True(t, ok)
	assert.True(t, hdr.ModTime.Equal(time.Unix(0, 0)))
}

func TestAssembleContextPreservesSrcTimeWhenEnvSet(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)
	t.Setenv(realTimeEnvVar, "true")

	buf, err := AssembleContext(root)
	require.NoError(t, err)

	entries := readEntries(t, buf)
	hdr, ok := entries["src/main.go"]
	require.True(t, ok)
	assert.False(t, hdr.ModTime.Equal(time.Unix(0, 0)))
}

func TestAssembleContextRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)
	require.NoError(t, os.Symlink(filepath.Join(root, "Dockerfile"), filepath.Join(root, "link")))

	_, err := AssembleContext(root)
	require.Error(t, err)
	var symErr *SymlinkError
	assert.ErrorAs(t, err, &symErr)
}

func TestAssembleContextWithOverridesSubstitutesContent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	buf, err := AssembleContextWithOverrides(root, map[string][]byte{
		"Dockerfile": []byte("FROM demo/base-v2\n"),
	})
	require.NoError(t, err)

	tr := tar.NewReader(buf)
	var found bool
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if hdr.Name != "Dockerfile" {
			continue
		}
		found = true
		data := make([]byte, hdr.Size)
		_, _ = io.ReadFull(tr, data)
		assert.Contains(t, string(data), "demo/base-v2")
	}
	assert.True(t, found)
}

func TestAssembleContextEmitsDirectoryEntries(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	buf, err := AssembleContext(root)
	require.NoError(t, err)

	entries := readEntries(t, buf)
	hdr, ok := entries["src/"]
	require.True(t, ok)
	assert.Equal(t, byte(tar.TypeDir), hdr.Typeflag)
	assert.Equal(t, int64(dirMode), hdr.Mode)
	assert.True(t, hdr.ModTime.Equal(time.Unix(0, 0)))
	assert.Zero(t, hdr.Uid)
	assert.Zero(t, hdr.Gid)
	assert.Equal(t, "root", hdr.Uname)
	assert.Equal(t, "root", hdr.Gname)
}

func TestAssembleContextZeroesFileOwnership(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	buf, err := AssembleContext(root)
	require.NoError(t, err)

	entries := readEntries(t, buf)
	hdr, ok := entries["Dockerfile"]
	require.True(t, ok)
	assert.Zero(t, hdr.Uid)
	assert.Zero(t, hdr.Gid)
	assert.Equal(t, "root", hdr.Uname)
	assert.Equal(t, "root", hdr.Gname)
}

func TestAssembleContextIsDeterministicAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	first, err := AssembleContext(root)
	require.NoError(t, err)
	second, err := AssembleContext(root)
	require.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
}
