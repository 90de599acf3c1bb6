package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rahul/relay/internal/engine"
)

// NewLogger builds the operational logger. format is "json" or "text".
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EventType defines the category of an audit event.
type EventType string

const (
	EventTypePlan         EventType = "plan"
	EventTypeStepStarted  EventType = "step_started"
	EventTypeStepFinished EventType = "step_finished"
	EventTypeRunFinished  EventType = "run_finished"
)

// Event is one line of the audit event log.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Step      *int      `json:"step,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

const defaultMaxSize = 10 * 1024 * 1024 // 10MB

// EventLog appends JSON lines to a file, an io.Writer, or both. The file is
// rotated to a single ".old" copy once it grows past maxSize.
type EventLog struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	out     io.Writer
	logger  *slog.Logger
}

// NewEventLog writes events to path. maxSize <= 0 selects 10MB.
func NewEventLog(path string, maxSize int64, logger *slog.Logger) *EventLog {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventLog{path: path, maxSize: maxSize, logger: logger}
}

// NewEventWriter writes events to w only.
func NewEventWriter(w io.Writer) *EventLog {
	return &EventLog{out: w, maxSize: defaultMaxSize, logger: slog.New(slog.DiscardHandler)}
}

// Log emits evt as a single JSON line.
func (l *EventLog) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		l.logger.Error("failed to marshal event", "type", evt.Type, "error", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		if _, err := l.out.Write(data); err != nil {
			l.logger.Error("failed to write event", "error", err)
		}
	}
	if l.path != "" {
		l.writeToFile(data)
	}
}

func (l *EventLog) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.logger.Error("failed to create log directory", "error", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.path)
	if err == nil && info.Size()+int64(len(data)) > l.maxSize {
		l.rotate()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("failed to open log file", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		l.logger.Error("failed to write to log file", "error", err)
	}
}

func (l *EventLog) rotate() {
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

func (l *EventLog) LogPlan(runID string, waves [][]int, p any) {
	l.Log(Event{
		Type:  EventTypePlan,
		RunID: runID,
		Data:  map[string]any{"plan": p, "waves": waves},
	})
}

func (l *EventLog) LogStep(t EventType, runID string, rec engine.StepRecord) {
	idx := rec.Index
	l.Log(Event{Type: t, RunID: runID, Step: &idx, Data: rec})
}

func (l *EventLog) LogRun(res *engine.RunResult) {
	data := map[string]any{
		"answer":        res.Answer(),
		"waves":         res.Waves,
		"final_outputs": res.FinalOutputs,
		"counts":        res.Counts(),
	}
	if res.OverallError != nil {
		data["error"] = res.OverallError.Error()
		data["error_kind"] = engine.KindOf(res.OverallError)
	}
	l.Log(Event{Type: EventTypeRunFinished, RunID: res.RunID, Data: data})
}

// Hooks records the plan, every step transition and the run outcome.
// Finished steps are written in completion order.
func (l *EventLog) Hooks() engine.Hooks {
	return engine.Hooks{
		OnRunStart: func(_ context.Context, e engine.RunEvent) {
			l.LogPlan(e.RunID, e.Waves, e.Plan)
		},
		OnStepStart: func(_ context.Context, e engine.StepEvent) {
			l.LogStep(EventTypeStepStarted, e.RunID, e.Record)
		},
		OnStepFinish: func(_ context.Context, e engine.StepEvent) {
			l.LogStep(EventTypeStepFinished, e.RunID, e.Record)
		},
		OnRunFinish: func(_ context.Context, e engine.RunEvent) {
			if e.Result != nil {
				l.LogRun(e.Result)
			}
		},
	}
}

// String describes the sink for startup logs.
func (l *EventLog) String() string {
	switch {
	case l.path != "" && l.out != nil:
		return fmt.Sprintf("%s+writer", l.path)
	case l.path != "":
		return l.path
	default:
		return "writer"
	}
}
