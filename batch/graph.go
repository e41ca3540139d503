package batch

import (
	"fmt"
	"sort"

	"github.com/aperture-cli/aperture/aperr"
)

// ResolveExecutionOrder validates ids, builds explicit and implicit
// dependency edges, and returns a topological order of operation indices.
// Ordering is stable: zero in-degree nodes keep input order and ties release
// lower indices first.
func ResolveExecutionOrder(ops []Operation) ([]int, error) {
	byID, err := validateIDs(ops)
	if err != nil {
		return nil, err
	}

	// variable name -> producer indices, across capture and capture_append.
	producers := make(map[string][]int)
	for i := range ops {
		for name := range ops[i].Capture {
			producers[name] = append(producers[name], i)
		}
		for name := range ops[i].CaptureAppend {
			producers[name] = append(producers[name], i)
		}
	}

	n := len(ops)
	adjacency := make([][]int, n)
	inDegree := make([]int, n)
	seen := make(map[[2]int]bool)
	addEdge := func(from, to int) {
		key := [2]int{from, to}
		if from == to || seen[key] {
			return
		}
		seen[key] = true
		adjacency[from] = append(adjacency[from], to)
		inDegree[to]++
	}

	for i := range ops {
		op := &ops[i]
		for _, dep := range op.DependsOn {
			producer, ok := byID[dep]
			if !ok {
				return nil, aperr.NewMissingDependency(opLabel(op, i), dep)
			}
			addEdge(producer, i)
		}
		for _, arg := range op.Args {
			names, err := ExtractVarRefs(arg)
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				for _, producer := range producers[name] {
					addEdge(producer, i)
				}
			}
		}
	}

	for i := range adjacency {
		sort.Ints(adjacency[i])
	}

	order := make([]int, 0, n)
	degree := make([]int, n)
	copy(degree, inDegree)
	var queue []int
	for i := 0; i < n; i++ {
		if degree[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, next := range adjacency[node] {
			degree[next]--
			if degree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != n {
		cycle := locateCycle(ops, adjacency, degree)
		return nil, aperr.NewCycleDetected(cycle)
	}
	return order, nil
}

// validateIDs checks that every operation with dependency features has an
// id and that ids are unique.
func validateIDs(ops []Operation) (map[string]int, error) {
	byID := make(map[string]int)
	for i := range ops {
		op := &ops[i]
		if op.ID == "" {
			if op.HasDependencyFeatures() {
				return nil, aperr.New(aperr.Validation,
					"batch operation %d uses capture or depends_on and must declare an id", i)
			}
			continue
		}
		if prev, dup := byID[op.ID]; dup {
			return nil, aperr.New(aperr.Validation,
				"duplicate batch operation id %q (operations %d and %d)", op.ID, prev, i)
		}
		byID[op.ID] = i
	}
	return byID, nil
}

// locateCycle runs a colored DFS over the nodes Kahn's algorithm never
// released and returns one concrete cycle as ids, with the starting id
// repeated at the end.
func locateCycle(ops []Operation, adjacency [][]int, degree []int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(ops))
	parent := make([]int, len(ops))
	for i := range parent {
		parent[i] = -1
	}

	remaining := func(i int) bool { return degree[i] > 0 }

	var cycle []int
	var dfs func(node int) bool
	dfs = func(node int) bool {
		color[node] = gray
		for _, next := range adjacency[node] {
			if !remaining(next) {
				continue
			}
			switch color[next] {
			case white:
				parent[next] = node
				if dfs(next) {
					return true
				}
			case gray:
				// Walk parents back from node until next to recover the loop.
				for at := node; at != next && at != -1; at = parent[at] {
					cycle = append(cycle, at)
				}
				cycle = append(cycle, next)
				// Reverse into forward order, then close the loop by
				// repeating the start.
				for l, r := 0, len(cycle)-1; l < r; l, r = l+1, r-1 {
					cycle[l], cycle[r] = cycle[r], cycle[l]
				}
				cycle = append(cycle, next)
				return true
			}
		}
		color[node] = black
		return false
	}

	for i := range ops {
		if remaining(i) && color[i] == white {
			if dfs(i) {
				break
			}
		}
	}

	ids := make([]string, len(cycle))
	for i, idx := range cycle {
		ids[i] = opLabel(&ops[idx], idx)
	}
	return ids
}

func opLabel(op *Operation, index int) string {
	if op.ID != "" {
		return op.ID
	}
	return fmt.Sprintf("operation-%d", index)
}
