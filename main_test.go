package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ftlshipyards/ftl/pkg/app"
	"github.com/ftlshipyards/ftl/pkg/testutil"
)

func TestRenderStatusTableEmpty(t *testing.T) {
	assert.Equal(t, "no running instances", renderStatusTable(nil))
}

func TestRenderStatusTableShortensImageIDsAndFillsBlankPorts(t *testing.T) {
	full := sha64()
	rows := []app.StatusRow{
		{RuntimeName: "demo.api.1", Container: "api", ImageID: full, Ports: ""},
		{RuntimeName: "demo.db.1", Container: "db", ImageID: full, Ports: "5432->5432"},
	}
	out := renderStatusTable(rows)
	assert.Contains(t, out, "RUNTIME NAME")
	assert.Contains(t, out, "demo.api.1")
	assert.Contains(t, out, full[:10])
	assert.NotContains(t, out, full)
	assert.Contains(t, out, "5432->5432")
}

func TestRenderStatusTableShowsExtraInfo(t *testing.T) {
	rows := []app.StatusRow{
		{RuntimeName: "demo.api.1", Container: "api", ExtraInfo: []string{"State.Health.Status=healthy"}},
	}
	out := renderStatusTable(rows)
	assert.Contains(t, out, "State.Health.Status=healthy")
}

func TestRenderStatusTableGoldenOutput(t *testing.T) {
	rows := []app.StatusRow{
		{RuntimeName: "demo.api.1", Container: "api", ImageID: "sha256:abc", Ports: "8080->8080"},
	}
	want := "RUNTIME NAME CONTAINER IMAGE      PORTS      EXTRA\n" +
		"demo.api.1   api       sha256:abc 8080->8080 -"
	got := renderStatusTable(rows)
	testutil.AssertNoDiff(t, "status table", want, got)
}

func sha64() string {
	s := ""
	for i := 0; i < 64; i++ {
		s += "a"
	}
	return s
}
