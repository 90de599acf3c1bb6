package engine

import (
	"context"

	"github.com/rahul/relay/internal/plan"
)

// RunEvent describes the start or end of a run. Result is nil at start.
type RunEvent struct {
	RunID  string
	Plan   plan.Plan
	Waves  [][]int
	Result *RunResult
}

// WaveEvent describes a wave about to be released.
type WaveEvent struct {
	RunID string
	Wave  int
	Steps []int
}

// StepEvent carries a snapshot of a step record.
type StepEvent struct {
	RunID  string
	Record StepRecord
}

// Hooks aggregates optional lifecycle callbacks. Step callbacks run on the
// step's goroutine and may be called concurrently.
type Hooks struct {
	OnRunStart   func(context.Context, RunEvent)
	OnWaveStart  func(context.Context, WaveEvent)
	OnStepStart  func(context.Context, StepEvent)
	OnStepFinish func(context.Context, StepEvent)
	OnRunFinish  func(context.Context, RunEvent)
}

// Merge combines two hook sets, running the receiver first.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnRunStart:   chain(h.OnRunStart, other.OnRunStart),
		OnWaveStart:  chain(h.OnWaveStart, other.OnWaveStart),
		OnStepStart:  chain(h.OnStepStart, other.OnStepStart),
		OnStepFinish: chain(h.OnStepFinish, other.OnStepFinish),
		OnRunFinish:  chain(h.OnRunFinish, other.OnRunFinish),
	}
}

// MergeHooks folds any number of hook sets in order.
func MergeHooks(sets ...Hooks) Hooks {
	var out Hooks
	for _, h := range sets {
		out = out.Merge(h)
	}
	return out
}

func chain[E any](first, second func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(ctx context.Context, event E) {
			first(ctx, event)
			second(ctx, event)
		}
	}
}

func fire[E any](ctx context.Context, hook func(context.Context, E), event E) {
	if hook != nil {
		hook(ctx, event)
	}
}
