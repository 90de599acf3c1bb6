package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// CountTool counts something in a piece of text.
type CountTool struct {
	name        string
	description string
	count       func(s string) int
}

func NewWordCountTool() *CountTool {
	return &CountTool{
		name:        "word_count",
		description: "Counts the number of whitespace-separated words in the given text.",
		count:       func(s string) int { return len(strings.Fields(s)) },
	}
}

func NewLetterCountTool() *CountTool {
	return &CountTool{
		name:        "letter_count",
		description: "Counts the number of alphabetic characters in the given text.",
		count: func(s string) int {
			n := 0
			for _, r := range s {
				if unicode.IsLetter(r) {
					n++
				}
			}
			return n
		},
	}
}

func (t *CountTool) Name() string {
	return t.name
}

func (t *CountTool) Description() string {
	return t.description
}

func (t *CountTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to analyze",
			},
		},
		"required": []string{"text"},
	}
}

func (t *CountTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	return strconv.Itoa(t.count(args.Text)), nil
}
