package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/governance"
	"github.com/rahul/relay/internal/plan"
	"github.com/rahul/relay/internal/tools"
)

// scriptedModel replays choices in order and records every call.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*llms.ContentChoice
	calls   [][]llms.MessageContent
	options []llms.CallOptions
	err     error
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.calls = append(m.calls, append([]llms.MessageContent(nil), messages...))
	m.options = append(m.options, opts)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &llms.ContentResponse{}, nil
	}
	next := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{next}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolCall(id, name, args string) *llms.ContentChoice {
	return &llms.ContentChoice{ToolCalls: []llms.ToolCall{{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}}}
}

func text(s string) *llms.ContentChoice {
	return &llms.ContentChoice{Content: s}
}

func lastText(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.NotEmpty(t, msg.Parts)
	switch p := msg.Parts[0].(type) {
	case llms.TextContent:
		return p.Text
	case llms.ToolCallResponse:
		return p.Content
	}
	t.Fatalf("unexpected part %T", msg.Parts[0])
	return ""
}

type recordingTool struct {
	calls int
}

func (r *recordingTool) Name() string               { return "shell" }
func (r *recordingTool) Description() string        { return "records calls" }
func (r *recordingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (r *recordingTool) Execute(context.Context, string) (string, error) {
	r.calls++
	return "ran", nil
}

func TestToolAgentReActLoop(t *testing.T) {
	model := &scriptedModel{replies: []*llms.ContentChoice{
		toolCall("c1", "multiply", `{"a": 5, "b": 11}`),
		text("55"),
	}}
	a := &ToolAgent{
		Name:   "math",
		Model:  model,
		Tools:  tools.NewRegistry(tools.NewAddTool(), tools.NewMultiplyTool()),
		Prompt: "math prompt",
	}

	out, err := a.Invoke(context.Background(), "multiply previous two results", "[step 0]\n5\n\n[step 1]\n11")
	require.NoError(t, err)
	assert.Equal(t, "55", out)

	require.Len(t, model.calls, 2)
	first := model.calls[0]
	assert.Equal(t, llms.ChatMessageTypeSystem, first[0].Role)
	assert.Contains(t, lastText(t, first[1]), "CONTEXT FROM PREVIOUS STEPS:\n[step 0]\n5")
	assert.Len(t, model.options[0].Tools, 2)

	second := model.calls[1]
	toolMsg := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, toolMsg.Role)
	assert.Equal(t, "55", lastText(t, toolMsg))
}

func TestToolAgentPolicyBlocksCall(t *testing.T) {
	shell := &recordingTool{}
	model := &scriptedModel{replies: []*llms.ContentChoice{
		toolCall("c1", "shell", `{"command": "rm -rf /"}`),
		text("refused"),
	}}
	a := &ToolAgent{
		Name:   "code",
		Model:  model,
		Tools:  tools.NewRegistry(shell),
		Policy: governance.NewDestructiveCommandPolicy(),
	}

	out, err := a.Invoke(context.Background(), "clean up", "")
	require.NoError(t, err)
	assert.Equal(t, "refused", out)
	assert.Zero(t, shell.calls)

	msgs := model.calls[1]
	assert.Contains(t, lastText(t, msgs[len(msgs)-1]), "restricted pattern")
}

func TestToolAgentUnknownToolAndStepLimit(t *testing.T) {
	model := &scriptedModel{replies: []*llms.ContentChoice{
		toolCall("c1", "teleport", `{}`),
	}}
	a := &ToolAgent{Name: "math", Model: model, Tools: tools.NewRegistry(), MaxSteps: 3}

	_, err := a.Invoke(context.Background(), "loop forever", "")
	require.ErrorIs(t, err, ErrMaxSteps)
	require.Len(t, model.calls, 3)
	msgs := model.calls[1]
	assert.Equal(t, "Error: Tool teleport not found", lastText(t, msgs[len(msgs)-1]))
}

func TestToolAgentModelErrors(t *testing.T) {
	_, err := (&ToolAgent{Model: &scriptedModel{err: errors.New("quota")}}).Invoke(context.Background(), "x", "")
	assert.ErrorContains(t, err, "quota")

	_, err = (&ToolAgent{Model: &scriptedModel{}}).Invoke(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestPromptAgent(t *testing.T) {
	model := &scriptedModel{replies: []*llms.ContentChoice{text("  # Title\n\nBody  ")}}
	a := &PromptAgent{Name: "writer", Model: model, Prompt: "write", Temperature: 0.7, MaxTokens: 100}

	out, err := a.Invoke(context.Background(), "write about Go", "[step 0]\nGo is fast.")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", out)
	assert.Equal(t, 0.7, model.options[0].Temperature)
	assert.Equal(t, 100, model.options[0].MaxTokens)
	assert.Empty(t, model.options[0].Tools)
}

type staticHistory []llms.MessageContent

func (h staticHistory) GetHistory(string, int) ([]llms.MessageContent, error) {
	return h, nil
}

func TestPlannerToolCall(t *testing.T) {
	model := &scriptedModel{replies: []*llms.ContentChoice{
		toolCall("p1", "propose_plan", `{"steps":[{"agent":"math","task":"2+3","dependencies":[]},{"agent":"math","task":"5+6","dependencies":[]},{"agent":"math","task":"multiply previous two results","dependencies":[0,1]}]}`),
	}}
	history := staticHistory{llms.TextParts(llms.ChatMessageTypeHuman, "earlier question")}
	p := &Planner{Model: model, Handlers: plan.NewHandlerSet("math", "string"), History: history}

	got, err := p.Plan(context.Background(), "chat-1", "multiply 2+3 by 5+6")
	require.NoError(t, err)
	assert.Equal(t, "multiply 2+3 by 5+6", got.Request)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, []int{0, 1}, got.Steps[2].Dependencies)

	msgs := model.calls[0]
	require.Len(t, msgs, 3)
	system := lastText(t, msgs[0])
	assert.Contains(t, system, "- math: arithmetic")
	assert.NotContains(t, system, "- weather:")
	assert.Equal(t, "earlier question", lastText(t, msgs[1]))
	require.Len(t, model.options[0].Tools, 1)
	assert.Equal(t, "propose_plan", model.options[0].Tools[0].Function.Name)
}

func TestPlannerContentFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "fenced", content: "```json\n{\"steps\":[{\"agent\":\"string\",\"task\":\"count words\",\"dependencies\":[]}]}\n```"},
		{name: "legacy", content: `{"agent": "string", "task": "count letters"}`},
		{name: "unknown handler", content: `{"steps":[{"agent":"astrology","task":"read stars","dependencies":[]}]}`, wantErr: plan.ErrUnknownHandler},
		{name: "forward dependency", content: `{"steps":[{"agent":"string","task":"a","dependencies":[1]},{"agent":"string","task":"b","dependencies":[]}]}`, wantErr: plan.ErrBadDependency},
		{name: "prose", content: "I cannot help with that.", wantErr: plan.ErrInvalidPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{replies: []*llms.ContentChoice{text(tt.content)}}
			p := &Planner{Model: model, Handlers: plan.NewHandlerSet("string")}

			got, err := p.Plan(context.Background(), "", "request")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, plan.ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, got.Len())
			assert.Equal(t, "string", got.Steps[0].HandlerID)
		})
	}
}

func TestPromptManager(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"user.md":     "User Content",
		"identity.md": "Identity Content",
		"soul.md":     "Soul Content",
		"writer.md":   "Custom writer prompt",
		"notes.txt":   "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	pm := NewPromptManager(dir, nil)

	writer := pm.SystemPrompt("writer", "base writer")
	assert.True(t, strings.HasSuffix(writer, "Custom writer prompt"))
	assert.NotContains(t, writer, "base writer")
	assert.Less(t, strings.Index(writer, "Identity Content"), strings.Index(writer, "Soul Content"))
	assert.Less(t, strings.Index(writer, "Soul Content"), strings.Index(writer, "User Content"))

	math := pm.SystemPrompt("math", "base math")
	assert.True(t, strings.HasSuffix(math, "base math"))

	assert.Equal(t, "base", NewPromptManager("", nil).SystemPrompt("math", "base"))
}

func TestNewHandlers(t *testing.T) {
	reg := DefaultTools(t.TempDir(), nil)
	handlers := NewHandlers(Deps{Model: &scriptedModel{}, Tools: reg})

	for _, spec := range Catalog {
		require.Contains(t, handlers, spec.ID)
	}
	mathAgent, ok := handlers["math"].(*ToolAgent)
	require.True(t, ok)
	assert.Len(t, mathAgent.Tools.Tools, 3)
	assert.Nil(t, mathAgent.Tools.Get("shell"))

	_, ok = handlers["writer"].(*PromptAgent)
	assert.True(t, ok)
}
