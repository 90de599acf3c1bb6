package agent

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// PromptAgent answers a step with a single completion under a fixed system
// prompt. The writer and editor handlers are PromptAgents.
type PromptAgent struct {
	Name        string
	Model       llms.Model
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Invoke implements engine.Handler.
func (a *PromptAgent) Invoke(ctx context.Context, task, input string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.Prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, taskMessage(task, input)),
	}

	var opts []llms.CallOption
	if a.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(a.Temperature))
	}
	if a.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(a.MaxTokens))
	}

	resp, err := a.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
