// Package build implements the deterministic build pipeline of spec
// §4.7: assembling a reproducible tar build context (normalized file
// metadata, in-prefix FROM rewriting, symlink rejection), streaming
// the build through the engine, and the post-build re-tag/volume-
// extraction steps. The tar-writer shape follows the teacher's own
// CopyToContainer call sites (pkg/commands/container.go), generalized
// from "wrap one file" to "walk a whole build directory."
package build

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// realTimeEnvVar, when set to a truthy value, disables the mtime=0
// normalization for files under a container's src/ directory — spec
// §4.7/§9: "FTL_BUILD_SRC_REAL_TIME preserves real mtimes under
// /src/ so incremental build caches keyed on mtime still work."
const realTimeEnvVar = "FTL_BUILD_SRC_REAL_TIME"

// srcPathMarker is the path segment whose mtime is exempted.
const srcPathMarker = "src" + string(filepath.Separator)

// dirMode is spec §4.7's fixed directory permission: "directories
// become typed entries with mtime=0, mode=0o775, uid=gid=0,
// user=group=root".
const dirMode = 0o775

// AssembleContext walks dir and writes a deterministic tar stream:
// every file and directory gets mtime=0 (mode otherwise preserved for
// files; directories are normalized to dirMode) and uid=gid=0,
// user=group=root, except files under a top-level src/ directory when
// FTL_BUILD_SRC_REAL_TIME is set, symlinks are rejected outright (spec
// §4.7 "a build context must not contain symlinks"), and entries are
// written in sorted path order so the resulting tar is byte-identical
// across runs for an unchanged tree.
func AssembleContext(dir string) (*bytes.Buffer, error) {
	return AssembleContextWithOverrides(dir, nil)
}

// AssembleContextWithOverrides behaves like AssembleContext, but
// substitutes the given content for any relative path present in
// overrides instead of reading it off disk — used to drop a
// FROM-rewritten Dockerfile into the context without a temp-file
// round trip.
func AssembleContextWithOverrides(dir string, overrides map[string][]byte) (*bytes.Buffer, error) {
	preserveSrcTimes := truthy(os.Getenv(realTimeEnvVar))

	type entry struct {
		path  string
		isDir bool
	}
	var entries []entry
	if err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return &SymlinkError{Path: path}
		}
		if path == dir {
			return nil
		}
		entries = append(entries, entry{path: path, isDir: info.IsDir()})
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		rel := filepath.ToSlash(mustRel(dir, e.path))
		if e.isDir {
			if err := writeDirEntry(tw, rel); err != nil {
				return nil, err
			}
			continue
		}
		if content, ok := overrides[rel]; ok {
			if err := writeOverrideEntry(tw, e.path, rel, content); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeEntry(tw, dir, e.path, preserveSrcTimes); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// writeDirEntry writes a typed directory header normalized per spec
// §4.7: mtime=0, mode=dirMode, uid=gid=0, user=group=root.
func writeDirEntry(tw *tar.Writer, rel string) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     rel + "/",
		Mode:     dirMode,
		ModTime:  time.Unix(0, 0),
	}
	return tw.WriteHeader(hdr)
}

// zeroOwner clears the uid/gid/owner-name fields spec §4.7 requires be
// normalized away from whatever the host filesystem reports.
func zeroOwner(hdr *tar.Header) {
	hdr.Uid = 0
	hdr.Gid = 0
	hdr.Uname = "root"
	hdr.Gname = "root"
}

func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func writeOverrideEntry(tw *tar.Writer, path, rel string, content []byte) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = rel
	hdr.Size = int64(len(content))
	hdr.ModTime = time.Unix(0, 0)
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	zeroOwner(hdr)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(content)
	return err
}

// SymlinkError reports a symlink found inside a build context, which
// spec §4.7 treats as a hard failure rather than silently following or
// skipping it.
type SymlinkError struct{ Path string }

func (e *SymlinkError) Error() string { return "build context contains symlink: " + e.Path }

func writeEntry(tw *tar.Writer, root, path string, preserveSrcTimes bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = rel

	if preserveSrcTimes && strings.HasPrefix(rel, "src/") {
		// keep info.ModTime() as tar.FileInfoHeader already set it
	} else {
		hdr.ModTime = time.Unix(0, 0)
	}
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	zeroOwner(hdr)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
