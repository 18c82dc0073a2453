package build

import (
	"regexp"
	"strings"
)

// fromLine matches a Dockerfile FROM instruction, capturing the image
// reference and an optional trailing "AS stage" clause.
var fromLine = regexp.MustCompile(`(?im)^FROM\s+(\S+)(\s+AS\s+\S+)?\s*$`)

// RewriteInPrefixFrom rewrites every FROM line in dockerfile that
// references an in-prefix sibling container by its colon-tagged image
// name (e.g. "demo/base:v2") to the dash-joined form the engine
// actually tagged it under ("demo/base-v2"), per spec §4.7/§9's
// colon-to-dash build-context rewrite: Docker refuses a colon in a
// stage's build-context-local FROM reference when that reference
// resolves to another container in the same build group rather than a
// registry pull.
func RewriteInPrefixFrom(dockerfile string, inPrefixImages map[string]string) string {
	return fromLine.ReplaceAllStringFunc(dockerfile, func(line string) string {
		m := fromLine.FindStringSubmatch(line)
		ref := m[1]
		rewritten, ok := inPrefixImages[ref]
		if !ok {
			return line
		}
		return strings.Replace(line, ref, rewritten, 1)
	})
}

// ColonToDash is the literal rewrite spec §4.7 describes for an
// in-prefix image reference: "demo/base:v2" -> "demo/base-v2".
func ColonToDash(ref string) string {
	return strings.Replace(ref, ":", "-", 1)
}
