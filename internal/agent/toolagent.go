package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/governance"
	"github.com/rahul/relay/internal/tools"
)

// DefaultMaxSteps bounds the reasoning loop of a ToolAgent.
const DefaultMaxSteps = 10

var (
	// ErrMaxSteps indicates the model kept calling tools past the step limit.
	ErrMaxSteps = errors.New("agent: reached the maximum reasoning steps")
	// ErrNoChoices indicates the model returned an empty response.
	ErrNoChoices = errors.New("agent: model returned no choices")
)

// ToolAgent is a ReAct handler: the model alternates between calling tools
// and reading their results until it answers in plain text.
type ToolAgent struct {
	Name     string
	Model    llms.Model
	Tools    *tools.Registry
	Policy   governance.PolicyEngine
	Prompt   string
	MaxSteps int
	Logger   *slog.Logger
}

// Invoke implements engine.Handler.
func (a *ToolAgent) Invoke(ctx context.Context, task, input string) (string, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("handler", a.Name)

	messages := []llms.MessageContent{}
	if a.Prompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, a.Prompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, taskMessage(task, input)))

	llmTools := toolDefinitions(a.Tools)

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	for i := 0; i < maxSteps; i++ {
		var opts []llms.CallOption
		if len(llmTools) > 0 {
			opts = append(opts, llms.WithTools(llmTools))
		}
		resp, err := a.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoChoices
		}
		choice := resp.Choices[0]

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			result := a.callTool(ctx, logger, i+1, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxSteps, maxSteps)
}

// callTool runs one tool call and renders the observation handed back to the
// model. Errors become observations so the model can recover.
func (a *ToolAgent) callTool(ctx context.Context, logger *slog.Logger, step int, name, args string) string {
	var tool tools.Tool
	if a.Tools != nil {
		tool = a.Tools.Get(name)
	}
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", name)
	}

	if a.Policy != nil {
		verdict, err := a.Policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, Handler: a.Name})
		if err != nil {
			return fmt.Sprintf("Error: policy evaluation failed: %v", err)
		}
		if verdict.Effect == governance.EffectDeny {
			logger.Warn("tool call denied", "step", step, "tool", name, "reason", verdict.Reason)
			return "Error: " + verdict.Reason
		}
	}

	logger.Debug("executing tool", "step", step, "tool", name, "args", args)
	res, err := tool.Execute(ctx, args)
	if err != nil {
		res = fmt.Sprintf("Error: %v", err)
	}
	logger.Debug("tool returned", "step", step, "tool", name, "result_len", len(res))
	return res
}

func toolDefinitions(reg *tools.Registry) []llms.Tool {
	if reg == nil {
		return nil
	}
	var out []llms.Tool
	for _, t := range reg.List() {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// taskMessage renders the human turn for a step.
func taskMessage(task, input string) string {
	if strings.TrimSpace(input) == "" {
		return "TASK: " + task
	}
	return fmt.Sprintf("TASK: %s\n\nCONTEXT FROM PREVIOUS STEPS:\n%s", task, input)
}
