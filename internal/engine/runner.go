// Package engine executes a validated plan wave by wave.
//
// Steps of one wave run concurrently, each on its own goroutine; the next
// wave is released only after every member of the current one has finished
// and written its digest. A failed step never aborts the run: its dependents
// fail with a missing-dependency error instead of being invoked, and the
// failure surfaces through the terminal steps when the run is aggregated.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/relay/internal/plan"
)

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	summarizer  Summarizer
	stepTimeout time.Duration
	maxParallel int
	hooks       Hooks
	logger      *slog.Logger
	newRunID    func() string
}

// WithSummarizer sets the digest producer. Without one raw output is
// forwarded unchanged.
func WithSummarizer(s Summarizer) Option {
	return func(o *runnerOptions) {
		o.summarizer = s
	}
}

// WithStepTimeout bounds every handler invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(o *runnerOptions) {
		o.stepTimeout = d
	}
}

// WithMaxParallel caps the number of steps of one wave running at once.
// Zero or less means no cap.
func WithMaxParallel(n int) Option {
	return func(o *runnerOptions) {
		o.maxParallel = n
	}
}

// WithHooks registers lifecycle hooks, merged after any already set.
func WithHooks(h Hooks) Option {
	return func(o *runnerOptions) {
		o.hooks = o.hooks.Merge(h)
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *runnerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRunIDGenerator replaces the uuid run id source.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *runnerOptions) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

// Runner drives plans through the wave-barrier model.
type Runner struct {
	handlers    *Registry
	executor    *Executor
	maxParallel int
	hooks       Hooks
	logger      *slog.Logger
	newRunID    func() string
}

// NewRunner returns a Runner bound to handlers.
func NewRunner(handlers *Registry, opts ...Option) *Runner {
	o := runnerOptions{
		logger:   slog.New(slog.DiscardHandler),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{
		handlers:    handlers,
		executor:    NewExecutor(handlers, o.summarizer, o.stepTimeout, o.hooks, o.logger),
		maxParallel: o.maxParallel,
		hooks:       o.hooks,
		logger:      o.logger,
		newRunID:    o.newRunID,
	}
}

// Handlers returns the registry the runner validates against.
func (r *Runner) Handlers() *Registry {
	return r.handlers
}

// Run validates p and executes it. The only error returned is an invalid
// plan, detected before any step starts; step failures and cancellation are
// reported through the result's records and OverallError.
func (r *Runner) Run(ctx context.Context, p plan.Plan) (*RunResult, error) {
	if r.handlers == nil {
		return nil, ErrNoHandlers
	}
	p, err := plan.Validate(p, r.handlers)
	if err != nil {
		r.logger.Error("plan rejected", "error", err)
		return nil, err
	}
	waves, err := plan.Waves(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plan.ErrInvalidPlan, err)
	}

	runID := r.newRunID()
	ctx = WithRunID(ctx, runID)
	log := r.logger.With("run_id", runID)
	log.Info("run started", "steps", p.Len(), "waves", len(waves))
	fire(ctx, r.hooks.OnRunStart, RunEvent{RunID: runID, Plan: p, Waves: waves})

	started := now()
	records := make([]StepRecord, p.Len())
	for i, s := range p.Steps {
		records[i] = pendingRecord(s)
	}
	ec := NewExecutionContext()

	for w, wave := range waves {
		if ctx.Err() == nil {
			log.Debug("releasing wave", "wave", w, "steps", wave)
			fire(ctx, r.hooks.OnWaveStart, WaveEvent{RunID: runID, Wave: w, Steps: append([]int(nil), wave...)})
		}

		g := new(errgroup.Group)
		if r.maxParallel > 0 {
			g.SetLimit(r.maxParallel)
		}
		for _, idx := range wave {
			g.Go(func() error {
				records[idx] = r.executor.RunStep(ctx, p.Steps[idx], ec)
				return nil
			})
		}
		// Barrier: every digest of wave w is written before wave w+1 reads.
		_ = g.Wait()
	}

	res := Aggregate(records)
	res.RunID = runID
	res.Waves = waves

	counts := res.Counts()
	log.Info("run finished",
		"duration", now().Sub(started),
		"succeeded", counts[StatusSucceeded],
		"failed", counts[StatusFailed],
		"error", res.OverallError,
	)
	fire(ctx, r.hooks.OnRunFinish, RunEvent{RunID: runID, Plan: p, Waves: waves, Result: &res})
	return &res, nil
}
