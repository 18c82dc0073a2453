package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookBusFiresInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.On(PreBuild, func(Payload) error { order = append(order, "first"); return nil })
	bus.On(PreBuild, func(Payload) error { order = append(order, "second"); return nil })

	err := bus.Fire(PreBuild, Payload{"container": "web"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestHookBusPropagatesReceiverError(t *testing.T) {
	bus := NewBus()
	bus.On(PostBuild, func(Payload) error { return errors.New("boom") })
	err := bus.Fire(PostBuild, nil)
	assert.Error(t, err)
}

func TestHookBusPanicsOnUnknownHook(t *testing.T) {
	bus := NewBus()
	assert.Panics(t, func() { bus.On(Hook("NOT_A_HOOK"), func(Payload) error { return nil }) })
}

func TestCatalogRejectsDuplicateKind(t *testing.T) {
	c := NewCatalog()
	assert.NoError(t, c.RegisterKind("wait"))
	assert.Error(t, c.RegisterKind("wait"))
}

func TestCatalogRejectsDuplicateItem(t *testing.T) {
	c := NewCatalog()
	assert.NoError(t, c.RegisterKind("registry"))
	assert.NoError(t, c.Register("registry", "plain", "plain-handler"))
	assert.Error(t, c.Register("registry", "plain", "other-handler"))
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog()
	assert.NoError(t, c.RegisterKind("wait"))
	assert.NoError(t, c.Register("wait", "tcp", "tcp-wait"))

	item, ok := c.Lookup("wait", "tcp")
	assert.True(t, ok)
	assert.Equal(t, "tcp-wait", item)

	_, ok = c.Lookup("wait", "missing")
	assert.False(t, ok)
}

type fakePlugin struct {
	name     string
	provides []string
	requires []string
	loaded   *[]string
}

func (p *fakePlugin) Name() string       { return p.name }
func (p *fakePlugin) Provides() []string { return p.provides }
func (p *fakePlugin) Requires() []string { return p.requires }
func (p *fakePlugin) Load(bus *Bus, cat *Catalog) error {
	*p.loaded = append(*p.loaded, p.name)
	return nil
}

func TestLoadPluginsTopologicalOrder(t *testing.T) {
	var loaded []string
	base := &fakePlugin{name: "base", provides: []string{"registry"}, loaded: &loaded}
	dependent := &fakePlugin{name: "ecr", requires: []string{"registry"}, loaded: &loaded}

	err := LoadPlugins([]Plugin{dependent, base}, NewBus(), NewCatalog())
	assert.NoError(t, err)
	assert.Equal(t, []string{"base", "ecr"}, loaded)
}

func TestLoadPluginsRejectsDuplicateProvider(t *testing.T) {
	a := &fakePlugin{name: "a", provides: []string{"registry"}, loaded: &[]string{}}
	b := &fakePlugin{name: "b", provides: []string{"registry"}, loaded: &[]string{}}
	err := LoadPlugins([]Plugin{a, b}, NewBus(), NewCatalog())
	assert.Error(t, err)
}

func TestLoadPluginsRejectsUnsatisfiedRequirement(t *testing.T) {
	a := &fakePlugin{name: "a", requires: []string{"registry"}, loaded: &[]string{}}
	err := LoadPlugins([]Plugin{a}, NewBus(), NewCatalog())
	assert.Error(t, err)
}
