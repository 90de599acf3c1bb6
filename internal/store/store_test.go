package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "relay.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistory(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AddMessage("chat-1", "user", "first"))
	require.NoError(t, s.AddMessage("chat-1", "ai", "second"))
	require.NoError(t, s.AddMessage("chat-2", "user", "other chat"))
	require.NoError(t, s.AddMessage("chat-1", "user", "third"))

	history, err := s.GetHistory("chat-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, llms.ChatMessageTypeAI, history[0].Role)
	assert.Equal(t, llms.TextContent{Text: "second"}, history[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, history[1].Role)
	assert.Equal(t, llms.TextContent{Text: "third"}, history[1].Parts[0])
}

func TestRunAuditThroughHooks(t *testing.T) {
	s := openTestStore(t)

	handlers := engine.NewRegistry(map[string]engine.Handler{
		"echo": engine.HandlerFunc(func(_ context.Context, task, _ string) (string, error) {
			return strings.ToUpper(task), nil
		}),
		"broken": engine.HandlerFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("boom")
		}),
	})
	runner := engine.NewRunner(handlers,
		engine.WithHooks(s.Hooks()),
		engine.WithRunIDGenerator(func() string { return "run-audit" }),
	)

	p := plan.New(
		plan.Step{HandlerID: "echo", Task: "hello"},
		plan.Step{HandlerID: "broken", Task: "explode"},
		plan.Step{HandlerID: "echo", Task: "join", Dependencies: []int{0, 1}},
	)
	p.Request = "say hello"

	res, err := runner.Run(context.Background(), p)
	require.NoError(t, err)
	require.Error(t, res.OverallError)

	ctx := context.Background()
	run, err := s.GetRun(ctx, "run-audit")
	require.NoError(t, err)
	assert.Equal(t, "say hello", run.Request)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, 3, run.Steps)
	assert.NotEmpty(t, run.Error)
	assert.False(t, run.StartedAt.IsZero())
	assert.False(t, run.FinishedAt.IsZero())

	steps, err := s.GetSteps(ctx, "run-audit")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	byIndex := map[int]engine.StepRecord{}
	for _, rec := range steps {
		byIndex[rec.Index] = rec
	}
	assert.Equal(t, engine.StatusSucceeded, byIndex[0].Status)
	assert.Equal(t, "HELLO", byIndex[0].RawOutput)
	assert.Equal(t, engine.StatusFailed, byIndex[1].Status)
	assert.Equal(t, engine.KindHandlerFailure, byIndex[1].Kind)
	assert.Equal(t, engine.KindMissingDependencyContext, byIndex[2].Kind)
	assert.Equal(t, []int{0, 1}, byIndex[2].Dependencies)
	// Step 2 cannot finish before its wave is released.
	assert.Equal(t, 2, steps[2].Index)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-audit", runs[0].ID)
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	starts := map[string]time.Time{
		"whole-second": base,
		"half-second":  base.Add(500 * time.Millisecond),
		"nanos":        base.Add(500*time.Millisecond + 7),
		"earlier":      base.Add(-time.Second + 123456789),
	}
	for id, at := range starts {
		require.NoError(t, s.BeginRun(ctx, id, plan.New(plan.Step{HandlerID: "math", Task: "1+1"}), at))
	}

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"nanos", "half-second", "whole-second", "earlier"}, ids)
	assert.True(t, runs[0].StartedAt.Equal(starts["nanos"]))
}
