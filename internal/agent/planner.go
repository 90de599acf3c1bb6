package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/plan"
)

// HistoryStore supplies recent conversation turns for a chat.
type HistoryStore interface {
	GetHistory(chatID string, limit int) ([]llms.MessageContent, error)
}

const plannerBasePrompt = `You are a routing agent. Break the user's request into steps and assign each step to one of the available agents.

Available agents:
%s

DEPENDENCIES: Use 'dependencies' to specify which steps must complete before a step.
- dependencies is a list of step indices (0-indexed) and may only point to earlier steps
- Empty list [] means the step can run immediately
- Steps with no dependencies run in PARALLEL
- A step receives the results of its dependencies as context

Examples:

INDEPENDENT TASKS (run in parallel):
{"steps": [
  {"agent": "math", "task": "Calculate 5 factorial", "dependencies": []},
  {"agent": "string", "task": "Count words in 'Hello World'", "dependencies": []}
]}

DEPENDENT TASKS (step 1 waits for step 0):
{"steps": [
  {"agent": "math", "task": "Calculate 5 times 3", "dependencies": []},
  {"agent": "math", "task": "Add 10 to the previous result", "dependencies": [0]}
]}

MIXED (steps 0 and 1 in parallel, step 2 waits for both):
{"steps": [
  {"agent": "web_search", "task": "Find the population of Paris", "dependencies": []},
  {"agent": "web_search", "task": "Find the population of Berlin", "dependencies": []},
  {"agent": "writer", "task": "Compare the two cities", "dependencies": [0, 1]}
]}

Submit the plan with the propose_plan tool. Always include 'dependencies' for each step, even if empty.`

var proposePlanTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_plan",
		Description: "Submit a structured plan consisting of one or more steps.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"agent": map[string]any{
								"type":        "string",
								"description": "Id of the agent that runs this step",
							},
							"task": map[string]any{
								"type":        "string",
								"description": "What the agent should do",
							},
							"dependencies": map[string]any{
								"type":        "array",
								"items":       map[string]any{"type": "integer"},
								"description": "Indices of earlier steps whose results this step needs",
							},
						},
						"required": []string{"agent", "task", "dependencies"},
					},
				},
			},
			"required": []string{"steps"},
		},
	},
}

// Planner turns a natural-language request into a validated plan.
type Planner struct {
	Model    llms.Model
	Catalog  []Spec
	Handlers plan.Handlers
	History  HistoryStore
	Prompts  *PromptManager
	Logger   *slog.Logger
}

// Plan asks the model for a plan. Whatever the model produces passes through
// plan.Parse and plan.Validate, so every failure is an invalid plan.
func (p *Planner) Plan(ctx context.Context, chatID, request string) (plan.Plan, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, p.systemPrompt()),
	}
	if p.History != nil && chatID != "" {
		history, err := p.History.GetHistory(chatID, 5)
		if err != nil {
			logger.Warn("failed to load history", "chat_id", chatID, "error", err)
		}
		messages = append(messages, history...)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, request))

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlanTool}))
	if err != nil {
		return plan.Plan{}, fmt.Errorf("planner call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return plan.Plan{}, fmt.Errorf("%w: %v", plan.ErrInvalidPlan, ErrNoChoices)
	}
	choice := resp.Choices[0]

	raw := choice.Content
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == proposePlanTool.Function.Name {
			raw = tc.FunctionCall.Arguments
			break
		}
	}

	parsed, err := plan.Parse([]byte(raw))
	if err != nil {
		logger.Warn("planner output rejected", "error", err, "raw", raw)
		return plan.Plan{}, err
	}
	parsed, err = plan.Validate(parsed, p.Handlers)
	if err != nil {
		logger.Warn("planner produced an invalid plan", "error", err)
		return plan.Plan{}, err
	}
	parsed.Request = request

	logger.Info("plan ready", "chat_id", chatID, "steps", parsed.Len())
	return parsed, nil
}

func (p *Planner) systemPrompt() string {
	catalog := p.Catalog
	if catalog == nil {
		catalog = Catalog
	}
	var lines []string
	for _, s := range catalog {
		if p.Handlers != nil && !p.Handlers.Has(s.ID) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", s.ID, s.Description))
	}
	base := fmt.Sprintf(plannerBasePrompt, strings.Join(lines, "\n"))
	if p.Prompts != nil {
		return p.Prompts.SystemPrompt("planner", base)
	}
	return base
}
