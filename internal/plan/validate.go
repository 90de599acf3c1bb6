package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlan is the root of every structural plan violation.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrEmptyPlan indicates a plan without steps.
	ErrEmptyPlan = fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	// ErrBadDependency indicates a dependency that is negative, self-referencing or forward-pointing.
	ErrBadDependency = fmt.Errorf("%w: bad dependency", ErrInvalidPlan)
	// ErrUnknownHandler indicates a step names a handler the run does not know.
	ErrUnknownHandler = fmt.Errorf("%w: unknown handler", ErrInvalidPlan)
	// ErrIndexMismatch indicates a step whose index disagrees with its position.
	ErrIndexMismatch = fmt.Errorf("%w: step index mismatch", ErrInvalidPlan)
)

// Handlers reports whether a handler id is registered for the run.
type Handlers interface {
	Has(id string) bool
}

// HandlerSet is a fixed set of handler ids.
type HandlerSet map[string]struct{}

// NewHandlerSet builds a HandlerSet from ids.
func NewHandlerSet(ids ...string) HandlerSet {
	set := make(HandlerSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has implements Handlers.
func (s HandlerSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Validate checks p and returns it unchanged, or the first violation found.
//
// Checks run in order: the plan is non-empty; every step's index matches its
// position and every dependency d of step i satisfies 0 <= d < i; every
// handler id is known to handlers. Because dependencies may only point
// backwards the graph is acyclic by construction. A nil handlers skips the
// handler check.
func Validate(p Plan, handlers Handlers) (Plan, error) {
	if len(p.Steps) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	for i, s := range p.Steps {
		if s.Index != i {
			return Plan{}, fmt.Errorf("%w: step at position %d has index %d", ErrIndexMismatch, i, s.Index)
		}
		for _, d := range s.Dependencies {
			if d < 0 || d >= i {
				return Plan{}, fmt.Errorf("%w: step %d depends on %d", ErrBadDependency, i, d)
			}
		}
	}
	if handlers != nil {
		for i, s := range p.Steps {
			if !handlers.Has(s.HandlerID) {
				return Plan{}, fmt.Errorf("%w: step %d uses %q", ErrUnknownHandler, i, s.HandlerID)
			}
		}
	}
	return p, nil
}
