package sortutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	names := []string{"web", "db", "cache"}
	deps := map[string][]string{
		"web": {"db", "cache"},
	}

	order, err := TopoSort(names, deps)
	assert.NoError(t, err)
	assert.Equal(t, []string{"cache", "db", "web"}, order)
}

func TestTopoSortIsDeterministicOnTies(t *testing.T) {
	names := []string{"z", "a", "m"}
	order, err := TopoSort(names, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "z"}, order)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	names := []string{"a", "b", "c"}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}

	_, err := TopoSort(names, deps)
	assert.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Remaining)
}

func TestReverse(t *testing.T) {
	assert.Equal(t, []string{"c", "b", "a"}, Reverse([]string{"a", "b", "c"}))
	assert.Equal(t, []string{}, Reverse([]string{}))
}

func TestLockSetSerializesSameName(t *testing.T) {
	s := NewLockSet()
	done := make(chan struct{})
	s.Lock("web")
	go func() {
		s.Lock("web")
		s.Unlock("web")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected second Lock to block while first is held")
	default:
	}

	s.Unlock("web")
	<-done
}
