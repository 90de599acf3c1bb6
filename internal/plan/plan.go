// Package plan defines the typed execution plan handed to the engine, the
// boundary that parses planner output into it, and the structural checks and
// wave partitioning performed before any step runs.
package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Step is a single unit of work: a handler id, the task given to it, and the
// indices of the steps whose output it needs.
type Step struct {
	Index        int    `json:"-" yaml:"-"`
	HandlerID    string `json:"agent" yaml:"agent"`
	Task         string `json:"task" yaml:"task"`
	Dependencies []int  `json:"dependencies" yaml:"dependencies"`
}

// Plan is an ordered sequence of steps. A step's index is its position.
type Plan struct {
	Request string `json:"request,omitempty" yaml:"request,omitempty"`
	Steps   []Step `json:"steps" yaml:"steps"`
}

// New builds a plan from steps, assigning each step its positional index and
// normalising dependencies to an ascending set.
func New(steps ...Step) Plan {
	p := Plan{Steps: make([]Step, len(steps))}
	for i, s := range steps {
		s.Index = i
		s.Dependencies = normaliseDeps(s.Dependencies)
		p.Steps[i] = s
	}
	return p
}

// Len reports the number of steps.
func (p Plan) Len() int {
	return len(p.Steps)
}

// Dependents returns, for every step index, the ascending indices of the steps
// that list it as a dependency.
func (p Plan) Dependents() [][]int {
	out := make([][]int, len(p.Steps))
	for _, s := range p.Steps {
		for _, d := range s.Dependencies {
			if d >= 0 && d < len(out) {
				out[d] = append(out[d], s.Index)
			}
		}
	}
	for i := range out {
		sort.Ints(out[i])
	}
	return out
}

// Terminal returns the ascending indices of steps no other step depends on.
func (p Plan) Terminal() []int {
	var out []int
	for i, deps := range p.Dependents() {
		if len(deps) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Describe renders the plan one step per line for logs and chat replies.
func (p Plan) Describe() string {
	var b strings.Builder
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s", s.Index, s.HandlerID, s.Task)
		if len(s.Dependencies) > 0 {
			fmt.Fprintf(&b, " (after %v)", s.Dependencies)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func normaliseDeps(deps []int) []int {
	if len(deps) == 0 {
		return []int{}
	}
	seen := make(map[int]struct{}, len(deps))
	out := make([]int, 0, len(deps))
	for _, d := range deps {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
