// Package catalog implements spec §4.8 and §5's "global registries":
// a fixed-vocabulary hook bus, a named catalog of plugin-contributed
// items, and a provides/requires plugin loader, all threaded through
// an explicit App-like context rather than held in package-level
// state (spec §5 "implementers should pass an explicit context
// argument rather than relying on module-scope mutable state"). The
// registration-appends-a-receiver, fire-dispatches-in-order shape
// follows the teacher's own subscription style in pkg/app (observers
// registered once at startup, invoked synchronously by the owning
// goroutine).
package catalog

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Hook names spec §4.8's fixed vocabulary.
type Hook string

const (
	InitGroupBuild             Hook = "INIT_GROUP_BUILD"
	PreGroupBuild              Hook = "PRE_GROUP_BUILD"
	PreBuild                   Hook = "PRE_BUILD"
	PostBuild                  Hook = "POST_BUILD"
	PostGroupBuild             Hook = "POST_GROUP_BUILD"
	PreRunContainer            Hook = "PRE_RUN_CONTAINER"
	PostRunContainer           Hook = "POST_RUN_CONTAINER"
	PostRunContainerFullyStarted Hook = "POST_RUN_CONTAINER_FULLY_STARTED"
	PreGroupStart              Hook = "PRE_GROUP_START"
	PostGroupStart             Hook = "POST_GROUP_START"
	DockerFailure              Hook = "DOCKER_FAILURE"
	ContainerFailure           Hook = "CONTAINER_FAILURE"
)

var validHooks = map[Hook]bool{
	InitGroupBuild: true, PreGroupBuild: true, PreBuild: true, PostBuild: true,
	PostGroupBuild: true, PreRunContainer: true, PostRunContainer: true,
	PostRunContainerFullyStarted: true, PreGroupStart: true, PostGroupStart: true,
	DockerFailure: true, ContainerFailure: true,
}

// Payload is the keyword payload passed to hook receivers.
type Payload map[string]interface{}

// Receiver handles a fired hook. Every registered receiver runs even
// if an earlier one errors, and Fire aggregates every error it sees.
type Receiver func(Payload) error

// Bus is the named hook bus. Zero value is not usable; use NewBus.
type Bus struct {
	mu        sync.Mutex
	receivers map[Hook][]Receiver
}

// NewBus returns an empty hook bus.
func NewBus() *Bus {
	return &Bus{receivers: make(map[Hook][]Receiver)}
}

// On registers a receiver for hook, appending it to that hook's
// channel. Panics on an unknown hook name — the vocabulary is fixed
// and a typo here is a programming error, not a runtime condition.
func (b *Bus) On(hook Hook, r Receiver) {
	if !validHooks[hook] {
		panic(fmt.Sprintf("catalog: unknown hook %q", hook))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers[hook] = append(b.receivers[hook], r)
}

// Fire dispatches hook to every registered receiver in registration
// order, synchronously with the calling goroutine (spec §5: "Hooks:
// receivers fire in registration order, synchronously with the
// calling thread"). Every receiver runs even if an earlier one fails —
// "errors in a receiver are not suppressed" (spec §4.8) means none of
// them are skipped, not just that the first one propagates — and their
// errors are aggregated with go-multierror so a caller sees all of
// them instead of only the first.
func (b *Bus) Fire(hook Hook, payload Payload) error {
	b.mu.Lock()
	receivers := append([]Receiver(nil), b.receivers[hook]...)
	b.mu.Unlock()

	var result *multierror.Error
	for _, r := range receivers {
		if err := r(payload); err != nil {
			result = multierror.Append(result, fmt.Errorf("hook %s: %w", hook, err))
		}
	}
	return result.ErrorOrNil()
}
