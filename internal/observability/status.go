package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rahul/relay/internal/engine"
)

type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseRunning Phase = "RUNNING"
)

// StatusSnapshot is a copy of the tracker state.
type StatusSnapshot struct {
	Phase        Phase
	RunID        string
	Wave         int
	Waves        int
	ActiveSteps  []int
	Completed    int
	Total        int
	RunsFinished int
	LastRunID    string
	LastAnswer   string
	LastError    string
	LastFinished time.Time
	Since        time.Time
}

// StatusTracker follows the run in progress, if any, and the last finished
// one. Runs may overlap; the tracker reports the most recently started.
type StatusTracker struct {
	mu      sync.RWMutex
	state   StatusSnapshot
	active  map[int]bool
	started time.Time
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		state:   StatusSnapshot{Phase: PhaseIdle},
		active:  make(map[int]bool),
		started: time.Now(),
	}
}

// Snapshot retrieves a copy of the current status.
func (s *StatusTracker) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.state
	out.Since = s.started
	out.ActiveSteps = make([]int, 0, len(s.active))
	for idx := range s.active {
		out.ActiveSteps = append(out.ActiveSteps, idx)
	}
	sort.Ints(out.ActiveSteps)
	return out
}

func (s *StatusTracker) Hooks() engine.Hooks {
	return engine.Hooks{
		OnRunStart: func(_ context.Context, e engine.RunEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.state.Phase = PhaseRunning
			s.state.RunID = e.RunID
			s.state.Wave = 0
			s.state.Waves = len(e.Waves)
			s.state.Completed = 0
			s.state.Total = e.Plan.Len()
			s.active = make(map[int]bool)
		},
		OnWaveStart: func(_ context.Context, e engine.WaveEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if e.RunID == s.state.RunID {
				s.state.Wave = e.Wave
			}
		},
		OnStepStart: func(_ context.Context, e engine.StepEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if e.RunID == s.state.RunID {
				s.active[e.Record.Index] = true
			}
		},
		OnStepFinish: func(_ context.Context, e engine.StepEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if e.RunID == s.state.RunID {
				delete(s.active, e.Record.Index)
				s.state.Completed++
			}
		},
		OnRunFinish: func(_ context.Context, e engine.RunEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.state.RunsFinished++
			s.state.LastRunID = e.RunID
			s.state.LastFinished = time.Now()
			s.state.LastAnswer, s.state.LastError = "", ""
			if e.Result != nil {
				s.state.LastAnswer = e.Result.Answer()
				if e.Result.OverallError != nil {
					s.state.LastError = e.Result.OverallError.Error()
				}
			}
			if e.RunID == s.state.RunID {
				s.state.Phase = PhaseIdle
				s.state.RunID = ""
				s.active = make(map[int]bool)
			}
		},
	}
}
