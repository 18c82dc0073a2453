package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ftlshipyards/ftl/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySkipsAbsentContainerSilently(t *testing.T) {
	g := graph.New(graph.Manifest{Prefix: "demo"})
	p := &Profile{
		Name: "user",
		Containers: map[string]*ContainerOverride{
			"does-not-exist": {DefaultBoot: boolPtr(true)},
		},
	}
	assert.NoError(t, Apply(p, g))
}

func TestSaveDropsEphemeralAndSortsSets(t *testing.T) {
	p := &Profile{
		Name: "user",
		Containers: map[string]*ContainerOverride{
			"api": {DevModes: []string{"z", "a"}, Ephemeral: false},
			"tmp": {Ephemeral: true},
		},
	}
	saved := Save(p)
	assert.Contains(t, saved.Containers, "api")
	assert.NotContains(t, saved.Containers, "tmp")
	assert.Equal(t, []string{"a", "z"}, saved.Containers["api"].DevModes)
}

func TestLoadChainWalksInheritsAndMarksCompatibility(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("description: base profile\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte("inherits: base\ncontainers:\n  api:\n    default_boot: true\n"), 0o644))

	p, err := LoadChain(dir, "dev")
	require.NoError(t, err)

	chain := p.Chain()
	require.Len(t, chain, 2)
	assert.Equal(t, "dev", chain[0].Name)
	assert.Equal(t, "base", chain[1].Name)
	assert.False(t, chain[0].InProfile)
	assert.True(t, chain[1].InProfile)
}

func TestLoadChainRejectsNonNumericPort(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("containers:\n  api:\n    ports:\n      \"8080\": notaport\n"), 0o644))

	_, err := LoadChain(dir, "bad")
	assert.Error(t, err)
}

func TestLoadChainDetectsInheritanceCycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("inherits: b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("inherits: a\n"), 0o644))

	_, err := LoadChain(dir, "a")
	assert.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
