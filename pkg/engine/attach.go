package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ftlshipyards/ftl/pkg/engine/streamer"
)

// Attacher implements runner.PTYAttacher: it hijacks a container's
// stdio and hands the terminal over to it for the lifetime of the
// connection, following the teacher's AttachExecContainer
// (pkg/commands/attaching.go) generalized from exec sessions to the
// container's own primary process.
type Attacher struct {
	Engine Engine
	Log    *logrus.Entry
}

func NewAttacher(eng Engine, log *logrus.Entry) *Attacher {
	return &Attacher{Engine: eng, Log: log}
}

func (a *Attacher) Attach(ctx context.Context, containerID string) error {
	resp, err := a.Engine.AttachContainer(ctx, containerID)
	if err != nil {
		return err
	}
	defer resp.Close()

	s := streamer.New(a.Log)
	return s.Stream(ctx, containerID, resp, streamer.ResizeContainer(a.Engine.ResizeContainer))
}
