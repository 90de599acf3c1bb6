// Package summarize condenses a step's raw output into a bounded digest that
// can be forwarded to dependent steps.
//
// Short output passes through untouched. Long output is offered to a
// Compressor (usually a language model); if that fails, times out, or answers
// with something unusable, the deterministic Truncate fallback is used so a
// digest is always produced.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultThreshold is the length below which output is forwarded verbatim.
	DefaultThreshold = 800
	// DefaultBudget is the maximum digest length for compressed output.
	DefaultBudget = 500
	// DefaultTimeout bounds a single compression attempt.
	DefaultTimeout = 20 * time.Second
	// MinBudget is the smallest budget that leaves room for Marker after at
	// least one character of content.
	MinBudget = len(Marker) + 1
)

var (
	// ErrDegenerate indicates the compressor answered with nothing usable.
	ErrDegenerate = errors.New("summarize: degenerate compressor output")
	// ErrOverBudget indicates the compressor answered with a digest longer than the budget.
	ErrOverBudget = errors.New("summarize: compressor output over budget")
	// ErrCompressorPanic indicates the compressor panicked.
	ErrCompressorPanic = errors.New("summarize: compressor panicked")
)

// Hints tell a Compressor what to preserve and how long the result may be.
type Hints struct {
	Focus  string
	Budget int
}

// Compressor performs semantic compression of text. It is treated as
// unreliable: any error or unusable answer triggers the fallback.
type Compressor interface {
	Compress(ctx context.Context, text string, hints Hints) (string, error)
}

// Result is a digest plus how it was produced.
type Result struct {
	Digest string
	// Compressed is set when the Compressor's answer was used.
	Compressed bool
	// Degraded is set when a compression attempt failed and the digest came
	// from Truncate.
	Degraded bool
}

// Summarizer applies the two-tier digest policy.
type Summarizer struct {
	compressor Compressor
	threshold  int
	budget     int
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithThreshold sets the length at which compression starts.
func WithThreshold(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithBudget sets the maximum digest length. Values below MinBudget are
// ignored.
func WithBudget(n int) Option {
	return func(s *Summarizer) {
		if n >= MinBudget {
			s.budget = n
		}
	}
}

// WithTimeout bounds each compression attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Summarizer. A nil compressor means every long output goes
// straight to Truncate.
func New(c Compressor, opts ...Option) *Summarizer {
	s := &Summarizer{
		compressor: c,
		threshold:  DefaultThreshold,
		budget:     DefaultBudget,
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Budget reports the configured maximum digest length.
func (s *Summarizer) Budget() int { return s.budget }

// Threshold reports the length at which compression starts.
func (s *Summarizer) Threshold() int { return s.threshold }

// Summarize returns the digest of raw produced by a step run by handlerID.
// It never fails.
func (s *Summarizer) Summarize(ctx context.Context, raw, handlerID string) Result {
	length := utf8.RuneCountInString(raw)
	if length < s.threshold {
		return Result{Digest: raw}
	}
	if s.compressor == nil {
		return Result{Digest: Truncate(raw, s.budget)}
	}

	digest, err := s.compress(ctx, raw, Hints{Focus: FocusFor(handlerID), Budget: s.budget})
	if err != nil {
		s.logger.Warn("compression failed, truncating",
			"handler", handlerID,
			"input_len", length,
			"error", err,
		)
		return Result{Digest: Truncate(raw, s.budget), Degraded: true}
	}

	s.logger.Debug("compressed step output",
		"handler", handlerID,
		"input_len", length,
		"output_len", utf8.RuneCountInString(digest),
	)
	return Result{Digest: digest, Compressed: true}
}

type compressed struct {
	out string
	err error
}

// compress runs the compressor on its own goroutine so that one ignoring its
// context or panicking cannot hold up or crash the step.
func (s *Summarizer) compress(ctx context.Context, raw string, hints Hints) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan compressed, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- compressed{err: fmt.Errorf("%w: %v", ErrCompressorPanic, r)}
			}
		}()
		out, err := s.compressor.Compress(ctx, raw, hints)
		done <- compressed{out: out, err: err}
	}()

	var res compressed
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", fmt.Errorf("summarize: compression abandoned: %w", ctx.Err())
	}
	if res.err != nil {
		return "", res.err
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("summarize: compression abandoned: %w", ctx.Err())
	}

	out := strings.TrimSpace(res.out)
	if degenerate(out) {
		return "", ErrDegenerate
	}
	if n := utf8.RuneCountInString(out); n > s.budget {
		return "", fmt.Errorf("%w: %d > %d", ErrOverBudget, n, s.budget)
	}
	return out, nil
}

// degenerate reports output with no letters or digits at all.
func degenerate(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// FocusFor returns the preservation hint used for output of handlerID.
func FocusFor(handlerID string) string {
	switch handlerID {
	case "web_search":
		return "Preserve all URLs, titles, key facts, and numbers. Focus on the most relevant search results."
	case "code":
		return "Preserve key output values, error messages, and important results."
	default:
		return "Preserve the most important information and key details."
	}
}
