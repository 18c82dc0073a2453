// Package runner is the parallel dependency-aware execution engine of
// spec §4.5: it computes the delta between an actual and a desired
// formation and drives containers from one to the other, start and
// stop phases each running a bounded set of goroutine workers
// coordinated by a single driver loop. The "spawn a goroutine per
// ready item, poll for completion, collect errors" shape follows the
// teacher's MonitorClientContainerStats/createClientStatMonitor
// pattern (pkg/commands/docker.go), generalized from "poll every
// running container" to "respect a dependency partial order."
package runner

import (
	"sort"
	"time"

	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/ftlshipyards/ftl/pkg/formation"
)

// idleThreshold is spec §4.5's "after 10 such iterations... raise a
// deadlock error."
const idleThreshold = 10

// pollInterval is spec §4.5/§5's 100ms driver poll cadence.
const pollInterval = 100 * time.Millisecond

// readyFunc reports whether i may start, given the set of runtime-names
// already finished.
type readyFunc func(i *formation.Instance, done map[string]bool) bool

// execFunc performs the actual start/stop action for one instance.
// Returning an *ftlerr.InteractiveTransfer is not an error for
// scheduling purposes — runWorkers surfaces it to the caller once and
// still finishes the remaining phase bookkeeping.
type execFunc func(i *formation.Instance) error

type workerResult struct {
	name string
	err  error
}

// runWorkers implements spec §4.5's parallel execution pseudocode: a
// queued/processing/done state machine, spawning one goroutine per
// ready instance, polling for completion, and raising DeadlockError
// after idleThreshold consecutive no-progress iterations.
func runWorkers(instances []*formation.Instance, ready readyFunc, exec execFunc, initialDone map[string]bool) error {
	done := make(map[string]bool, len(initialDone))
	for k := range initialDone {
		done[k] = true
	}

	queued := make(map[string]*formation.Instance, len(instances))
	for _, i := range instances {
		queued[i.RuntimeName] = i
	}
	processing := make(map[string]bool)
	results := make(chan workerResult, len(instances))

	idle := 0
	var interactive *ftlerr.InteractiveTransfer
	var firstErr error

	for len(queued) > 0 || len(processing) > 0 {
		progressed := false

		for name, inst := range queued {
			if !ready(inst, done) {
				continue
			}
			delete(queued, name)
			processing[name] = true
			progressed = true
			go func(inst *formation.Instance) {
				err := exec(inst)
				results <- workerResult{name: inst.RuntimeName, err: err}
			}(inst)
		}

	drainResults:
		for {
			select {
			case r := <-results:
				delete(processing, r.name)
				done[r.name] = true
				progressed = true
				if r.err != nil {
					if it, ok := r.err.(*ftlerr.InteractiveTransfer); ok {
						if interactive == nil {
							interactive = it
						}
					} else if firstErr == nil {
						firstErr = r.err
					}
				}
			default:
				break drainResults
			}
		}

		if firstErr != nil {
			return firstErr
		}
		if interactive != nil && len(processing) == 0 {
			return interactive
		}

		if progressed {
			idle = 0
		} else {
			idle++
		}

		if idle > idleThreshold && len(queued) > 0 && len(processing) == 0 {
			return ftlerr.NewDeadlockError(pendingNames(queued))
		}

		if len(queued) > 0 || len(processing) > 0 {
			time.Sleep(pollInterval)
		}
	}

	return nil
}

func pendingNames(queued map[string]*formation.Instance) []string {
	names := make([]string, 0, len(queued))
	for n := range queued {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
