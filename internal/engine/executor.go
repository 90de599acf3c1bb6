package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rahul/relay/internal/plan"
	"github.com/rahul/relay/internal/summarize"
)

// Summarizer turns a step's raw output into the digest forwarded to its
// dependents. It must always return a digest.
type Summarizer interface {
	Summarize(ctx context.Context, raw, handlerID string) summarize.Result
}

// Executor runs single steps against a handler registry.
type Executor struct {
	handlers    *Registry
	summarizer  Summarizer
	stepTimeout time.Duration
	hooks       Hooks
	logger      *slog.Logger
}

// NewExecutor returns an Executor. A nil summarizer forwards raw output
// unchanged; a zero stepTimeout leaves handler calls unbounded.
func NewExecutor(handlers *Registry, summarizer Summarizer, stepTimeout time.Duration, hooks Hooks, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		handlers:    handlers,
		summarizer:  summarizer,
		stepTimeout: stepTimeout,
		hooks:       hooks,
		logger:      logger,
	}
}

// RunStep executes step with the digests of its dependencies taken from ec
// and returns the finished record. On success the step's digest is written
// to ec. RunStep never returns a record that is pending or running.
func (e *Executor) RunStep(ctx context.Context, step plan.Step, ec *ExecutionContext) StepRecord {
	rec := pendingRecord(step)
	log := e.logger.With("run_id", RunIDFromContext(ctx), "step", step.Index, "handler", step.HandlerID)

	if err := ctx.Err(); err != nil {
		return e.fail(ctx, rec, fmt.Errorf("%w: step %d not started: %v", ErrCancellationRequested, step.Index, err))
	}

	handler, ok := e.handlers.Lookup(step.HandlerID)
	if !ok {
		return e.fail(ctx, rec, fmt.Errorf("%w: %q", plan.ErrUnknownHandler, step.HandlerID))
	}

	input, missing := ec.Gather(step.Dependencies)
	if len(missing) > 0 {
		log.Warn("skipping step, dependency output missing", "missing", missing)
		return e.fail(ctx, rec, fmt.Errorf("%w: step %d has no digest for %v", ErrMissingDependencyContext, step.Index, missing))
	}

	rec.Status = StatusRunning
	rec.StartedAt = now()
	fire(ctx, e.hooks.OnStepStart, StepEvent{RunID: RunIDFromContext(ctx), Record: rec})
	log.Debug("step started", "input_len", len(input))

	out, err := e.invoke(ctx, handler, step, input)
	switch {
	case err != nil && ctx.Err() != nil:
		return e.fail(ctx, rec, fmt.Errorf("%w: step %d interrupted: %v", ErrCancellationRequested, step.Index, err))
	case e.stepTimeout > 0 && errors.Is(err, context.DeadlineExceeded):
		return e.fail(ctx, rec, fmt.Errorf("%w after %s", ErrStepTimeout, e.stepTimeout))
	case err != nil:
		return e.fail(ctx, rec, fmt.Errorf("%w: %w", ErrHandlerFailure, err))
	case strings.TrimSpace(out) == "":
		return e.fail(ctx, rec, ErrEmptyOutput)
	}

	digest := summarize.Result{Digest: out}
	if e.summarizer != nil {
		digest = e.summarizer.Summarize(ctx, out, step.HandlerID)
	}
	if err := ec.Put(step.Index, digest.Digest); err != nil {
		return e.fail(ctx, rec, err)
	}

	rec.Status = StatusSucceeded
	rec.RawOutput = out
	rec.Digest = digest.Digest
	rec.DigestDegraded = digest.Degraded
	rec.FinishedAt = now()
	log.Info("step succeeded",
		"duration", rec.Duration(),
		"output_len", len(out),
		"digest_len", len(digest.Digest),
		"degraded", digest.Degraded,
	)
	fire(ctx, e.hooks.OnStepFinish, StepEvent{RunID: RunIDFromContext(ctx), Record: rec})
	return rec
}

type outcome struct {
	out string
	err error
}

// invoke calls the handler on its own goroutine so that a handler ignoring
// its context cannot hold the step past cancellation or the step deadline.
func (e *Executor) invoke(ctx context.Context, h Handler, step plan.Step, input string) (string, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: &HandlerPanicError{Step: step.Index, HandlerID: step.HandlerID, Value: recovered}}
			}
		}()
		out, err := h.Invoke(ctx, step.Task, input)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Executor) fail(ctx context.Context, rec StepRecord, err error) StepRecord {
	at := now()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = at
	}
	rec.Status = StatusFailed
	rec.Err = err
	rec.Error = err.Error()
	rec.Kind = KindOf(err)
	rec.FinishedAt = at

	e.logger.Warn("step failed",
		"run_id", RunIDFromContext(ctx),
		"step", rec.Index,
		"handler", rec.HandlerID,
		"kind", rec.Kind,
		"error", err,
	)
	fire(ctx, e.hooks.OnStepFinish, StepEvent{RunID: RunIDFromContext(ctx), Record: rec})
	return rec
}
