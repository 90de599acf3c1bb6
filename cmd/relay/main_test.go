package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/plan"
	"github.com/rahul/relay/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const scenarioPlan = `{"request": "multiply 2+3 by 5+6", "steps": [
	{"agent": "math", "task": "2+3", "dependencies": []},
	{"agent": "math", "task": "5+6", "dependencies": []},
	{"agent": "math", "task": "multiply previous two results", "dependencies": [0, 1]}
]}`

func TestPlanCommands(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "scenario.json", scenarioPlan)

	out, err := execute(t, "plan", "waves", path)
	require.NoError(t, err)
	assert.Equal(t, "wave 0: 0:math, 1:math\nwave 1: 2:math\n", out)

	out, err = execute(t, "plan", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PLAN OK: 3 steps")
	assert.Contains(t, out, "2. [math] multiply previous two results (after [0 1])")

	out, err = execute(t, "plan", "dot", path)
	require.NoError(t, err)
	assert.Contains(t, out, `digraph "scenario" {`)
	assert.Contains(t, out, "s1 -> s2;")
}

func TestPlanValidateRejectsUnknownHandler(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "bad.yaml", `
steps:
  - agent: astrology
    task: read the stars
`)
	_, err := execute(t, "plan", "validate", path)
	require.ErrorIs(t, err, plan.ErrUnknownHandler)
}

func TestRunRequiresRequest(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	cfgPath := writeTemp(t, dir, "config.yaml", "audit:\n  db_path: "+dbPath+"\n")

	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded\n", out)

	st, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	ctx := context.Background()
	p := plan.New(plan.Step{HandlerID: "math", Task: "2+3"})
	p.Request = "add"
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, st.BeginRun(ctx, "run-9", p, started))
	require.NoError(t, st.RecordStep(ctx, "run-9", engine.StepRecord{
		Index: 0, HandlerID: "math", Task: "2+3", Dependencies: []int{},
		Status: engine.StatusSucceeded, RawOutput: "5", Digest: "5",
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}))
	require.NoError(t, st.FinishRun(ctx, &engine.RunResult{
		RunID:        "run-9",
		FinalOutputs: []engine.Output{{Index: 0, HandlerID: "math", RawOutput: "5"}},
	}, started.Add(time.Second)))
	require.NoError(t, st.Close())

	out, err = execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-01-02 03:04:05  succeeded  1 steps  run-9")
	assert.Contains(t, out, "    add")

	out, err = execute(t, "--config", cfgPath, "--pretty=false", "history", "run-9")
	require.NoError(t, err)
	assert.Contains(t, out, "Answer: math: 5")
	assert.Contains(t, out, "✓ [0] math: 2+3 (1s)")

	_, err = execute(t, "--config", cfgPath, "history", "missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}
