// Package store persists run audit trails and chat history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/plan"
)

// ErrRunNotFound indicates no run with the requested id was stored.
var ErrRunNotFound = errors.New("store: run not found")

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	DB     *sql.DB
	logger *slog.Logger
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         string
	Request    string
	Status     string
	Answer     string
	Error      string
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; steps of a wave finish concurrently.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			request TEXT,
			plan TEXT,
			status TEXT,
			answer TEXT DEFAULT '',
			error TEXT DEFAULT '',
			steps INTEGER,
			started_at TEXT,
			finished_at TEXT DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			step_index INTEGER,
			handler TEXT,
			task TEXT,
			dependencies TEXT,
			status TEXT,
			raw_output TEXT,
			digest TEXT,
			digest_degraded INTEGER,
			error_kind TEXT,
			error TEXT,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS steps_run ON steps (run_id, seq);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise schema: %w", err)
		}
	}

	return &Store{DB: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// BeginRun records a run as started.
func (s *Store) BeginRun(ctx context.Context, runID string, p plan.Plan, startedAt time.Time) error {
	planJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, request, plan, status, steps, started_at) VALUES (?, ?, ?, 'running', ?, ?)`,
		runID, p.Request, string(planJSON), p.Len(), startedAt.UTC().Format(timeLayout))
	return err
}

// RecordStep appends a finished step. Insertion order is completion order.
func (s *Store) RecordStep(ctx context.Context, runID string, rec engine.StepRecord) error {
	deps, err := json.Marshal(rec.Dependencies)
	if err != nil {
		return err
	}
	degraded := 0
	if rec.DigestDegraded {
		degraded = 1
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO steps (run_id, step_index, handler, task, dependencies, status, raw_output, digest, digest_degraded, error_kind, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Index, rec.HandlerID, rec.Task, string(deps), string(rec.Status), rec.RawOutput, rec.Digest,
		degraded, string(rec.Kind), rec.Error, formatTime(rec.StartedAt), formatTime(rec.FinishedAt))
	return err
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, res *engine.RunResult, finishedAt time.Time) error {
	status, errText := "succeeded", ""
	if res.OverallError != nil {
		status, errText = "failed", res.OverallError.Error()
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status = ?, answer = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, res.Answer(), errText, finishedAt.UTC().Format(timeLayout), res.RunID)
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, request, status, answer, error, steps, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Request, &r.Status, &r.Answer, &r.Error, &r.Steps, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run summary.
func (s *Store) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	var r RunSummary
	var started, finished string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, request, status, answer, error, steps, started_at, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Request, &r.Status, &r.Answer, &r.Error, &r.Steps, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunSummary{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// GetSteps returns the stored records of a run in completion order.
func (s *Store) GetSteps(ctx context.Context, runID string) ([]engine.StepRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT step_index, handler, task, dependencies, status, raw_output, digest, digest_degraded, error_kind, error, started_at, finished_at
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.StepRecord
	for rows.Next() {
		var rec engine.StepRecord
		var deps, status, kind, started, finished string
		var degraded int
		if err := rows.Scan(&rec.Index, &rec.HandlerID, &rec.Task, &deps, &status, &rec.RawOutput, &rec.Digest,
			&degraded, &kind, &rec.Error, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(deps), &rec.Dependencies); err != nil {
			return nil, fmt.Errorf("corrupt dependencies for step %d: %w", rec.Index, err)
		}
		rec.Status = engine.Status(status)
		rec.Kind = engine.ErrorKind(kind)
		rec.DigestDegraded = degraded != 0
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Hooks persists every run driven by an engine.Runner. Storage errors are
// logged and never affect the run.
func (s *Store) Hooks() engine.Hooks {
	return engine.Hooks{
		OnRunStart: func(ctx context.Context, e engine.RunEvent) {
			if err := s.BeginRun(context.WithoutCancel(ctx), e.RunID, e.Plan, time.Now()); err != nil {
				s.logger.Error("failed to store run", "run_id", e.RunID, "error", err)
			}
		},
		OnStepFinish: func(ctx context.Context, e engine.StepEvent) {
			if err := s.RecordStep(context.WithoutCancel(ctx), e.RunID, e.Record); err != nil {
				s.logger.Error("failed to store step", "run_id", e.RunID, "step", e.Record.Index, "error", err)
			}
		},
		OnRunFinish: func(ctx context.Context, e engine.RunEvent) {
			if e.Result == nil {
				return
			}
			if err := s.FinishRun(context.WithoutCancel(ctx), e.Result, time.Now()); err != nil {
				s.logger.Error("failed to finish run", "run_id", e.RunID, "error", err)
			}
		},
	}
}

func (s *Store) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.Exec(query, chatID, role, content)
	return err
}

func (s *Store) GetHistory(chatID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.TextParts(msgRole, content))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
