// Package testutil holds small test-only helpers shared across the
// module's package tests.
package testutil

import (
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

// AssertNoDiff fails t with a unified diff between want and got,
// mirroring the teacher's own cheatsheet-staleness check
// (pkg/cheatsheet/validate.go), which prints a unified diff rather
// than a flat "not equal" when generated output drifts from what's
// committed.
func AssertNoDiff(t *testing.T, name, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: name + " (want)",
		ToFile:   name + " (got)",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("%s: output mismatch (diff failed: %v)\nwant:\n%s\ngot:\n%s", name, err, want, got)
	}
	t.Fatalf("%s: output mismatch:\n%s", name, diff)
}
