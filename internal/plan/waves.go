package plan

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycleDetected indicates the dependency graph could not be fully layered.
var ErrCycleDetected = errors.New("plan: cycle detected")

// Waves partitions the steps of p into ordered waves of mutually independent
// steps. Every step appears in exactly one wave, and all of its dependencies
// appear in strictly earlier waves. Members of a wave are listed in ascending
// index order.
//
// Waves does not validate handler ids; callers are expected to run Validate
// first. Out-of-range dependencies and cycles are still reported as errors.
func Waves(p Plan) ([][]int, error) {
	n := len(p.Steps)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for _, s := range p.Steps {
		for _, d := range s.Dependencies {
			if d < 0 || d >= n {
				return nil, fmt.Errorf("%w: step %d depends on %d", ErrBadDependency, s.Index, d)
			}
			dependents[d] = append(dependents[d], s.Index)
			indegree[s.Index]++
		}
	}

	var current []int
	for i, deg := range indegree {
		if deg == 0 {
			current = append(current, i)
		}
	}

	var waves [][]int
	scheduled := 0
	for len(current) > 0 {
		sort.Ints(current)
		waves = append(waves, current)
		scheduled += len(current)

		var next []int
		for _, idx := range current {
			for _, dep := range dependents[idx] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if scheduled != n {
		return nil, ErrCycleDetected
	}
	return waves, nil
}
