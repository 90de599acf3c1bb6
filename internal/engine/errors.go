package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/relay/internal/plan"
)

// ErrorKind classifies why a step or a run failed.
type ErrorKind string

const (
	KindNone                     ErrorKind = ""
	KindInvalidPlan              ErrorKind = "invalid_plan"
	KindUnknownHandler           ErrorKind = "unknown_handler"
	KindHandlerFailure           ErrorKind = "handler_failure"
	KindMissingDependencyContext ErrorKind = "missing_dependency_context"
	KindCancellationRequested    ErrorKind = "cancellation_requested"
)

var (
	// ErrHandlerFailure indicates the handler returned an error, panicked,
	// timed out or produced no output.
	ErrHandlerFailure = errors.New("engine: handler failure")
	// ErrEmptyOutput indicates the handler succeeded with a blank result.
	ErrEmptyOutput = fmt.Errorf("%w: empty output", ErrHandlerFailure)
	// ErrStepTimeout indicates the handler exceeded the per-step deadline.
	ErrStepTimeout = fmt.Errorf("%w: step timed out", ErrHandlerFailure)
	// ErrMissingDependencyContext indicates a prerequisite digest was absent
	// when the step was due to start.
	ErrMissingDependencyContext = errors.New("engine: missing dependency context")
	// ErrCancellationRequested indicates the run context was cancelled.
	ErrCancellationRequested = errors.New("engine: cancellation requested")
	// ErrTerminalFailure indicates at least one terminal step failed.
	ErrTerminalFailure = errors.New("engine: terminal step failed")
	// ErrDigestExists indicates a second write for the same step index.
	ErrDigestExists = errors.New("engine: digest already recorded")
	// ErrNoHandlers indicates a runner was built without a handler registry.
	ErrNoHandlers = errors.New("engine: no handler registry")
)

// HandlerPanicError wraps a panic recovered from a handler invocation.
type HandlerPanicError struct {
	Step      int
	HandlerID string
	Value     any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("engine: panic in step %d (%s): %v", e.Step, e.HandlerID, e.Value)
}

// Unwrap lets errors.Is match ErrHandlerFailure.
func (e *HandlerPanicError) Unwrap() error { return ErrHandlerFailure }

// RunError is the overall error of a finished run.
type RunError struct {
	// Failed lists the terminal steps that did not succeed, ascending.
	Failed    []int
	Cancelled bool
}

func (e *RunError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("engine: run cancelled; failed terminal steps %v", e.Failed)
	}
	return fmt.Sprintf("engine: terminal steps %v failed", e.Failed)
}

// Unwrap returns ErrCancellationRequested for cancelled runs and
// ErrTerminalFailure otherwise.
func (e *RunError) Unwrap() error {
	if e.Cancelled {
		return ErrCancellationRequested
	}
	return ErrTerminalFailure
}

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, plan.ErrUnknownHandler):
		return KindUnknownHandler
	case errors.Is(err, plan.ErrInvalidPlan):
		return KindInvalidPlan
	case errors.Is(err, ErrMissingDependencyContext):
		return KindMissingDependencyContext
	case errors.Is(err, ErrCancellationRequested):
		return KindCancellationRequested
	case errors.Is(err, ErrHandlerFailure):
		return KindHandlerFailure
	case errors.Is(err, context.Canceled):
		return KindCancellationRequested
	default:
		return KindHandlerFailure
	}
}
