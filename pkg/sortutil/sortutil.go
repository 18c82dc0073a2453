// Package sortutil provides the dependency-respecting traversal
// primitives the runner (spec §4, §8) is built on: a topological sort
// with cycle detection, and a name-keyed lock set so two goroutines
// never act on the same container concurrently. The concurrency idiom
// — plain goroutines guarding shared state with a mutex, errors fed
// back over a channel — follows the teacher's DockerCommand stat
// monitors (pkg/commands/docker.go); the mutex itself is
// go-deadlock's so a held-too-long lock shows up in a stack trace
// instead of hanging silently.
package sortutil

import (
	"fmt"
	"sort"

	deadlock "github.com/sasha-s/go-deadlock"
)

// CycleError reports the set of names that could not be ordered
// because they form (or depend on) a dependency cycle.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among: %v", e.Remaining)
}

// TopoSort orders names so that every dependency of a name appears
// before it. deps maps a name to the names it depends on; names
// absent from deps are treated as having no dependencies. Ties are
// broken alphabetically so the result is deterministic across runs,
// which the spec's runner relies on for reproducible start order.
func TopoSort(names []string, deps map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
		if _, ok := inDegree[n]; !ok {
			inDegree[n] = 0
		}
	}
	for n, ds := range deps {
		if !known[n] {
			continue
		}
		for _, d := range ds {
			if !known[d] {
				continue
			}
			inDegree[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	var ready []string
	for _, n := range names {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	result := make([]string, 0, len(names))
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		result = append(result, n)

		next := append([]string(nil), dependents[n]...)
		sort.Strings(next)
		for _, m := range next {
			inDegree[m]--
			if inDegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}

	if len(result) != len(names) {
		placed := make(map[string]bool, len(result))
		for _, n := range result {
			placed[n] = true
		}
		var remaining []string
		for _, n := range names {
			if !placed[n] {
				remaining = append(remaining, n)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return result, nil
}

// Reverse returns a new slice with names in reverse order, used to
// turn a start order (dependencies first) into a stop order
// (dependents first) per spec §4.4.
func Reverse(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

// LockSet hands out per-name locks so the runner can hold a
// container's name locked for the duration of a start/stop action
// without blocking unrelated containers, mirroring the scope of
// DockerCommand.ContainerMutex but keyed instead of global.
type LockSet struct {
	mu    deadlock.Mutex
	locks map[string]*deadlock.Mutex
}

// NewLockSet returns an empty LockSet.
func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*deadlock.Mutex)}
}

// Lock blocks until name's lock is held.
func (s *LockSet) Lock(name string) {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &deadlock.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()
	l.Lock()
}

// Unlock releases name's lock.
func (s *LockSet) Unlock(name string) {
	s.mu.Lock()
	l := s.locks[name]
	s.mu.Unlock()
	if l != nil {
		l.Unlock()
	}
}
