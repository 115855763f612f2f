package builder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/vscript/internal/diag"
)

// dependencyGraph maps a pure node to the pure nodes its outputs feed.
type dependencyGraph map[int][]int

// checkDataCycles reports groups of pure nodes whose data connections form a
// cycle. A pure node evaluates its sources on demand, so such a group can
// never produce a value. Stepped nodes break cycles: their outputs are read
// from the record of their last step.
//
// Algorithm: Tarjan's strongly connected components over the pure-to-pure
// data edges. Every component with more than one node, or a single node that
// feeds itself, is reported once at its lowest node id.
func (b *build) checkDataCycles() {
	graph := b.pureGraph()
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		slices.Sort(scc)
		path := reconstructCyclePath(scc, graph)
		g, _ := b.snap.GraphOf(scc[0])
		b.log.Errorf(diag.At(g, scc[0], ""), ErrDataCycle, "pure nodes form a data cycle: %s", formatPath(path))
	}
}

func (b *build) pureGraph() dependencyGraph {
	graph := make(dependencyGraph)
	for _, c := range b.snap.Connections() {
		from, ok := b.snap.Node(c.FromNode)
		if !ok || !from.Pure() {
			continue
		}
		to, ok := b.snap.Node(c.ToNode)
		if !ok || !to.Pure() {
			continue
		}
		if !slices.Contains(graph[c.FromNode], c.ToNode) {
			graph[c.FromNode] = append(graph[c.FromNode], c.ToNode)
		}
	}
	return graph
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in ascending id order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]int {
	index := 0
	var stack []int
	indices := make(map[int]int)
	lowlink := make(map[int]int)
	onStack := make(map[int]bool)
	var sccs [][]int

	var strongConnect func(v int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component: pop it off the stack
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]int, 0, len(graph))
	for v := range graph {
		nodes = append(nodes, v)
	}
	slices.Sort(nodes)
	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

func hasSelfLoop(v int, graph dependencyGraph) bool {
	return slices.Contains(graph[v], v)
}

// reconstructCyclePath walks edges inside scc from its first member until it
// returns to the start.
func reconstructCyclePath(scc []int, graph dependencyGraph) []int {
	if len(scc) == 0 {
		return nil
	}
	members := make(map[int]bool, len(scc))
	for _, v := range scc {
		members[v] = true
	}

	start := scc[0]
	current := start
	path := []int{current}
	visited := make(map[int]bool)
	for {
		visited[current] = true
		next, found := 0, false
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next, found = w, true
				break
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, v := range path {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " -> ")
}
