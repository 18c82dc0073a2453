package runner

import "github.com/ftlshipyards/ftl/pkg/formation"

// Delta computes spec §4.5's to_stop/to_start sets:
//
//	to_stop  = { a ∈ A : a ∉ D } ∪ { a ∈ A : D[a.name].different_from(a) }
//	to_start = { d ∈ D : d ∉ A } ∪ { d ∈ D : d.different_from(A[d.name]) }
func Delta(desired, actual *formation.Formation) (toStop, toStart []*formation.Instance) {
	for name, a := range actual.Instances {
		d, ok := desired.Instances[name]
		if !ok || d.DifferentFrom(a) {
			toStop = append(toStop, a)
		}
	}
	for name, d := range desired.Instances {
		a, ok := actual.Instances[name]
		if !ok || d.DifferentFrom(a) {
			toStart = append(toStart, d)
		}
	}
	return toStop, toStart
}

// linksTo reports whether inst declares a link whose target is the
// runtime-name target.
func linksTo(inst *formation.Instance, target string) bool {
	for _, runtimeName := range inst.Links {
		if runtimeName == target {
			return true
		}
	}
	return false
}

// stopReady implements spec §4.5's stop ordering: an instance is
// ready to stop once every instance (within the full actual set) that
// links to it has already finished.
func stopReady(all []*formation.Instance) readyFunc {
	return func(i *formation.Instance, done map[string]bool) bool {
		for _, other := range all {
			if other.RuntimeName == i.RuntimeName {
				continue
			}
			if linksTo(other, i.RuntimeName) && !done[other.RuntimeName] {
				return false
			}
		}
		return true
	}
}

// startReady implements spec §4.5's start ordering: an instance is
// ready once every target of its own links has finished (or was
// already present in the actual formation at phase entry, captured by
// the scheduler's initialDone set).
func startReady(i *formation.Instance, done map[string]bool) bool {
	for _, target := range i.Links {
		if !done[target] {
			return false
		}
	}
	return true
}
