// Package app wires together the container graph, the image
// repository, the build pipeline, the runner, and the hook bus into
// the single App struct every CLI subcommand operates against — the
// same role the teacher's App struct plays for its GUI, generalized
// from "one DockerCommand + one Gui" to the full core/plugin stack of
// spec §5.
package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/build"
	"github.com/ftlshipyards/ftl/pkg/catalog"
	"github.com/ftlshipyards/ftl/pkg/config"
	"github.com/ftlshipyards/ftl/pkg/engine"
	"github.com/ftlshipyards/ftl/pkg/formation"
	"github.com/ftlshipyards/ftl/pkg/graph"
	"github.com/ftlshipyards/ftl/pkg/hooks"
	"github.com/ftlshipyards/ftl/pkg/images"
	"github.com/ftlshipyards/ftl/pkg/introspect"
	"github.com/ftlshipyards/ftl/pkg/log"
	"github.com/ftlshipyards/ftl/pkg/profile"
	"github.com/ftlshipyards/ftl/pkg/runner"
	"github.com/ftlshipyards/ftl/pkg/tasks"
)

// App bundles every collaborator a subcommand needs. NewApp builds it
// once per process; individual commands (build, up, down, ps, ...)
// operate on the fields directly rather than going through a facade,
// following the teacher's App/DockerCommand split.
type App struct {
	closers []io.Closer

	Config *config.AppConfig
	Log    *logrus.Entry

	Engine  engine.Engine
	Graph   *graph.Graph
	Images  *images.Repository
	Builder *build.Builder
	Hooks   *catalog.Bus
	Catalog *catalog.Catalog
	Tasks   *tasks.Tree
	Runner  *runner.Runner
}

// NewApp loads the chart at config.ChartPath and wires every
// collaborator against it. The engine connection is established but
// not pinged here; callers that need liveness call app.Engine.Ping.
func NewApp(cfg *config.AppConfig) (*App, error) {
	a := &App{Config: cfg}
	a.Log = log.NewLogger(cfg)

	g, err := graph.Load(cfg.ChartPath)
	if err != nil {
		return nil, err
	}
	a.Graph = g

	eng, err := engine.New()
	if err != nil {
		return nil, err
	}
	a.Engine = eng

	a.Hooks = catalog.NewBus()
	a.Catalog = catalog.NewCatalog()
	a.Tasks = tasks.NewTree(func(line string) { fmt.Print(line) })
	a.Images = images.New(eng, g.Registry, nil, a.Log)
	a.Builder = build.New(eng, a.Log)

	attacher := engine.NewAttacher(eng, a.Log)
	a.Runner = runner.New(eng, g, a.Hooks, a.Images, a.Tasks, a.Log, attacher)

	return a, nil
}

// LoadProfile applies the named profile chain (and any active
// dev-modes) on top of the loaded graph, per spec §4.2.
func (a *App) LoadProfile(name string) error {
	if name == "" {
		return nil
	}
	p, err := profile.LoadChain(a.profilesDir(), name)
	if err != nil {
		return err
	}
	if err := profile.Validate(p, a.Graph); err != nil {
		return err
	}
	return profile.Apply(p, a.Graph)
}

func (a *App) profilesDir() string {
	return filepath.Join(a.Config.ChartPath, "profiles")
}

// ActualFormation introspects the engine for every container already
// running under this chart's network, per spec §4.4.
func (a *App) ActualFormation(ctx context.Context, networkName string) (*formation.Formation, error) {
	return introspect.Introspect(ctx, a.Engine, a.Graph, introspectResolver{a.Images}, networkName, a.Log)
}

// BootOrchestrator builds the boot-container auto-start helper for
// actual, the host's currently-known running formation (spec §4.10).
func (a *App) BootOrchestrator(actual *formation.Formation) *hooks.BootOrchestrator {
	return &hooks.BootOrchestrator{
		Graph:     a.Graph,
		Images:    a.Images,
		Converger: a.Runner,
		Actual:    actual,
	}
}

// VolumeProviderHook builds the post-build volume-extraction hook
// (spec §4.7) scoped to actual, the host's currently-known running
// formation.
func (a *App) VolumeProviderHook(actual *formation.Formation) *hooks.VolumeProviderHook {
	return &hooks.VolumeProviderHook{
		Engine:  a.Engine,
		Graph:   a.Graph,
		Actual:  actual,
		Stopper: a.Runner,
		Log:     a.Log,
	}
}

// introspectResolver adapts images.Repository to
// introspect.ImageDigestResolver.
type introspectResolver struct {
	images *images.Repository
}

func (r introspectResolver) Digest(name, tag string) (string, error) {
	return r.images.ImageVersion(name, tag, false)
}

// Close releases any resources registered via closers.
func (a *App) Close() error {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}
