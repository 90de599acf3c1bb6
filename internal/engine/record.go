package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rahul/relay/internal/plan"
)

// now is overridden in tests to provide deterministic timings.
var now = time.Now

// Status captures the lifecycle of a step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StepRecord is the audit entry for one step. Exactly one exists per step of
// the plan, and only the goroutine running the step writes to it.
type StepRecord struct {
	Index          int       `json:"index"`
	HandlerID      string    `json:"handler"`
	Task           string    `json:"task"`
	Dependencies   []int     `json:"dependencies"`
	Status         Status    `json:"status"`
	RawOutput      string    `json:"raw_output,omitempty"`
	Digest         string    `json:"digest,omitempty"`
	DigestDegraded bool      `json:"digest_degraded,omitempty"`
	Kind           ErrorKind `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`

	Err error `json:"-"`
}

func pendingRecord(s plan.Step) StepRecord {
	return StepRecord{
		Index:        s.Index,
		HandlerID:    s.HandlerID,
		Task:         s.Task,
		Dependencies: append([]int{}, s.Dependencies...),
		Status:       StatusPending,
	}
}

// Duration is the time between start and finish.
func (r StepRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Output is the raw output of a succeeded terminal step.
type Output struct {
	Index     int    `json:"index"`
	HandlerID string `json:"handler"`
	RawOutput string `json:"raw_output"`
}

// RunResult is the read-only outcome of a run.
type RunResult struct {
	RunID        string       `json:"run_id"`
	Waves        [][]int      `json:"waves"`
	FinalOutputs []Output     `json:"final_outputs"`
	Records      []StepRecord `json:"records"`
	OverallError error        `json:"-"`
}

// Succeeded reports whether the run finished without an overall error.
func (r *RunResult) Succeeded() bool {
	return r.OverallError == nil
}

// Answer renders the final outputs as "<handler>: <output>" joined by " | ".
func (r *RunResult) Answer() string {
	if len(r.FinalOutputs) == 0 {
		return "No results"
	}
	parts := make([]string, len(r.FinalOutputs))
	for i, o := range r.FinalOutputs {
		parts[i] = fmt.Sprintf("%s: %s", o.HandlerID, strings.TrimSpace(o.RawOutput))
	}
	return strings.Join(parts, " | ")
}

// Counts tallies records by status.
func (r *RunResult) Counts() map[Status]int {
	out := make(map[Status]int, 4)
	for _, rec := range r.Records {
		out[rec.Status]++
	}
	return out
}
