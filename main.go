package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/ftlshipyards/ftl/pkg/app"
	"github.com/ftlshipyards/ftl/pkg/config"
	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/utils"
)

// DefaultVersion is substituted by updateBuildInfo when no version was
// baked in at link time (spec §6 CLI surface, out-of-core).
const DefaultVersion = "unversioned"

var (
	commit      string
	version     = DefaultVersion
	date        string
	buildSource = "unknown"

	debuggingFlag bool
	profileFlag   string
	ignoreDepsFlag bool
	chartPath     string

	containerName string
	noCacheFlag   bool
)

// knownSubcommands is the fixed vocabulary spec §6 documents. Anything
// else triggers the edit-distance spell-correction suggestion.
var knownSubcommands = []string{
	"build", "run", "start", "stop", "up", "profile", "ps", "status",
}

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, buildSource, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("ftl")
	flaggy.SetDescription("Container-based development environment orchestrator")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/ftlshipyards/ftl"
	flaggy.Bool(&debuggingFlag, "d", "debug", "enable debug logging")
	flaggy.String(&chartPath, "", "chart", "path to the chart (defaults to the working directory)")
	flaggy.SetVersion(info)

	buildCmd := flaggy.NewSubcommand("build")
	buildCmd.Description = "Build a container's image"
	buildCmd.AddPositionalValue(&containerName, "container", 1, true, "container name")
	buildCmd.Bool(&noCacheFlag, "", "no-cache", "build without the engine's layer cache")
	flaggy.AttachSubcommand(buildCmd, 1)

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "Start one or more containers and their dependencies"
	var runNames []string
	runCmd.StringSlice(&runNames, "", "container", "container name (repeatable)")
	flaggy.AttachSubcommand(runCmd, 1)

	startCmd := flaggy.NewSubcommand("start")
	startCmd.Description = "Alias for run"
	var startNames []string
	startCmd.StringSlice(&startNames, "", "container", "container name (repeatable)")
	flaggy.AttachSubcommand(startCmd, 1)

	stopCmd := flaggy.NewSubcommand("stop")
	stopCmd.Description = "Stop one or more containers, cascading to dependents"
	var stopNames []string
	stopCmd.StringSlice(&stopNames, "", "container", "container name (repeatable)")
	stopCmd.Bool(&ignoreDepsFlag, "", "ignore-dependencies", "discard the dependency edge instead of cascading")
	flaggy.AttachSubcommand(stopCmd, 1)

	upCmd := flaggy.NewSubcommand("up")
	upCmd.Description = "Converge onto every default-boot container in the active profile"
	upCmd.String(&profileFlag, "p", "profile", "profile to apply before converging")
	flaggy.AttachSubcommand(upCmd, 1)

	profileCmd := flaggy.NewSubcommand("profile")
	profileCmd.Description = "Apply a named profile"
	profileCmd.AddPositionalValue(&profileFlag, "name", 1, true, "profile name")
	flaggy.AttachSubcommand(profileCmd, 1)

	psCmd := flaggy.NewSubcommand("ps")
	psCmd.Description = "List running instances"
	flaggy.AttachSubcommand(psCmd, 1)

	statusCmd := flaggy.NewSubcommand("status")
	statusCmd.Description = "Alias for ps"
	flaggy.AttachSubcommand(statusCmd, 1)

	flaggy.Parse()

	if projectDir, err := os.Getwd(); chartPath == "" && err == nil {
		chartPath = projectDir
	}

	appConfig, err := config.NewAppConfig("ftl", version, commit, date, buildSource, debuggingFlag, chartPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		exitOnError(err)
	}
	defer a.Close()

	ctx := context.Background()

	switch {
	case buildCmd.Used:
		err = a.Build(ctx, containerName, noCacheFlag)
	case runCmd.Used:
		err = a.Run(ctx, runNames)
	case startCmd.Used:
		err = a.Run(ctx, startNames)
	case stopCmd.Used:
		err = a.Stop(ctx, stopNames, ignoreDepsFlag)
	case upCmd.Used:
		err = a.LoadProfile(profileFlag)
		if err == nil {
			err = a.Run(ctx, nil)
		}
	case profileCmd.Used:
		err = a.LoadProfile(profileFlag)
	case psCmd.Used, statusCmd.Used:
		var rows []app.StatusRow
		rows, err = a.Status(ctx)
		if err == nil {
			fmt.Println(renderStatusTable(rows))
		}
	default:
		suggestSubcommand(os.Args)
		os.Exit(1)
	}

	if err != nil {
		exitOnError(err)
	}
}

// exitOnError implements spec §7's propagation policy at the top
// level: interactive-transfer is not a failure, engine-unavailability
// gets a short message, everything else bubbles with a stack trace.
func exitOnError(err error) {
	if it, ok := ftlerr.IsInteractiveTransfer(err); ok {
		if runErr := it.Handler(); runErr != nil {
			log.Println(runErr.Error())
			os.Exit(1)
		}
		os.Exit(0)
	}

	var unavailable *ftlerr.EngineUnavailableError
	if stderrors.As(err, &unavailable) {
		log.Println("could not reach the container engine; is it running?")
		os.Exit(1)
	}

	newErr := goerrors.Wrap(err, 0)
	log.Fatalf("error: %s\n\n%s", err.Error(), newErr.ErrorStack())
}

// suggestSubcommand mirrors spec §6's "unknown subcommand triggers a
// spell-correction suggestion derived from edit distance (squared-
// distance / max-length <= 1)".
func suggestSubcommand(args []string) {
	if len(args) < 2 {
		flaggy.ShowHelp("")
		return
	}
	got := args[1]
	best, bestScore := "", -1.0
	for _, candidate := range knownSubcommands {
		d := float64(editDistance(got, candidate))
		maxLen := float64(lo.Max([]int{len(got), len(candidate)}))
		if maxLen == 0 {
			continue
		}
		score := (d * d) / maxLen
		if bestScore < 0 || score < bestScore {
			bestScore, best = score, candidate
		}
	}
	if bestScore >= 0 && bestScore <= 1 {
		fmt.Fprintf(os.Stderr, "unknown command %q — did you mean %q?\n", got, best)
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n", got)
}

// editDistance is the classic Levenshtein distance between two
// strings, used only by suggestSubcommand's spell-correction.
func editDistance(a, b string) int {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func updateBuildInfo() {
	if version != DefaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		version = utils.SafeTruncate(revision.Value, 7)
	}
	if t, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); ok {
		date = t.Value
	}
}

// renderStatusTable formats the `ps`/`status` rows as an aligned table
// via utils.RenderTable, the same column-padding helper the teacher
// uses for its container list, with image IDs shortened the way
// utils.WithShortSha shortens a SHA for display.
func renderStatusTable(rows []app.StatusRow) string {
	if len(rows) == 0 {
		return "no running instances"
	}
	table := make([][]string, 0, len(rows)+1)
	table = append(table, []string{"RUNTIME NAME", "CONTAINER", "IMAGE", "PORTS", "EXTRA"})
	for _, r := range rows {
		ports := r.Ports
		if ports == "" {
			ports = "-"
		}
		extra := strings.Join(r.ExtraInfo, " ")
		if extra == "" {
			extra = "-"
		}
		table = append(table, []string{r.RuntimeName, r.Container, utils.WithShortSha(r.ImageID), ports, extra})
	}
	rendered, err := utils.RenderTable(table)
	if err != nil {
		// Rows came from a single, uniform StatusRow shape above, so a
		// column-count mismatch here would mean a coding error upstream.
		return err.Error()
	}
	return rendered
}
