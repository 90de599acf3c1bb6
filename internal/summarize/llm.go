package summarize

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

const systemPromptTemplate = `You are a precise summarization assistant. Your job is to create concise summaries that preserve critical information.

%s

Rules:
- Keep the summary under %d characters
- Preserve specific numbers, dates, URLs, and named entities
- Maintain factual accuracy - never invent information
- Use clear, direct language
- Remove redundant or filler content

Return ONLY the summary, no preamble.`

// LLMCompressor compresses text with a chat model.
type LLMCompressor struct {
	Model       llms.Model
	Temperature float64
	MaxTokens   int
}

// NewLLMCompressor returns a compressor with a low temperature and a token
// cap sized for the default budget.
func NewLLMCompressor(model llms.Model) *LLMCompressor {
	return &LLMCompressor{
		Model:       model,
		Temperature: 0.3,
		MaxTokens:   400,
	}
}

// Compress implements Compressor.
func (c *LLMCompressor) Compress(ctx context.Context, text string, hints Hints) (string, error) {
	if c.Model == nil {
		return "", errors.New("summarize: no model configured")
	}
	budget := hints.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(systemPromptTemplate, hints.Focus, budget)),
		llms.TextParts(llms.ChatMessageTypeHuman, "Summarize this:\n\n"+text),
	}

	resp, err := c.Model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.Temperature),
		llms.WithMaxTokens(c.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("summarize: model call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("summarize: model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
