package builder

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sortedSCCs(graph dependencyGraph) [][]int {
	sccs := tarjanSCC(graph)
	for _, scc := range sccs {
		slices.Sort(scc)
	}
	slices.SortFunc(sccs, func(a, b []int) int { return a[0] - b[0] })
	return sccs
}

// TestTarjanSCC_DAG tests that an acyclic graph yields singleton components.
func TestTarjanSCC_DAG(t *testing.T) {
	graph := dependencyGraph{1: {2, 3}, 2: {3}}
	assert.Equal(t, [][]int{{1}, {2}}, sortedSCCs(graph))
}

// TestTarjanSCC_Cycles tests a three-node cycle next to a self loop.
func TestTarjanSCC_Cycles(t *testing.T) {
	graph := dependencyGraph{
		1: {2},
		2: {3},
		3: {1, 4},
		4: {4},
	}
	sccs := sortedSCCs(graph)
	assert.Equal(t, [][]int{{1, 2, 3}, {4}}, sccs)
	assert.True(t, hasSelfLoop(4, graph))
	assert.False(t, hasSelfLoop(1, graph))
}

func TestReconstructCyclePath(t *testing.T) {
	graph := dependencyGraph{1: {2}, 2: {3}, 3: {1}}
	assert.Equal(t, []int{1, 2, 3, 1}, reconstructCyclePath([]int{1, 2, 3}, graph))
	assert.Nil(t, reconstructCyclePath(nil, graph))
	assert.Equal(t, "1 -> 2 -> 3 -> 1", formatPath([]int{1, 2, 3, 1}))
}
