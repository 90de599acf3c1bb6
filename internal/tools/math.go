package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ArithmeticTool applies a binary operation to two numbers.
type ArithmeticTool struct {
	name        string
	description string
	op          func(a, b float64) float64
}

func NewAddTool() *ArithmeticTool {
	return &ArithmeticTool{
		name:        "add",
		description: "Adds two numbers together and returns the sum.",
		op:          func(a, b float64) float64 { return a + b },
	}
}

func NewMultiplyTool() *ArithmeticTool {
	return &ArithmeticTool{
		name:        "multiply",
		description: "Multiplies two numbers and returns the product.",
		op:          func(a, b float64) float64 { return a * b },
	}
}

func NewPowerTool() *ArithmeticTool {
	return &ArithmeticTool{
		name:        "power",
		description: "Raises the base a to the exponent b.",
		op:          math.Pow,
	}
}

func (t *ArithmeticTool) Name() string {
	return t.name
}

func (t *ArithmeticTool) Description() string {
	return t.description
}

func (t *ArithmeticTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{
				"type":        "number",
				"description": "The first operand",
			},
			"b": map[string]any{
				"type":        "number",
				"description": "The second operand",
			},
		},
		"required": []string{"a", "b"},
	}
}

func (t *ArithmeticTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		A *float64 `json:"a"`
		B *float64 `json:"b"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.A == nil || args.B == nil {
		return "", fmt.Errorf("invalid input: both a and b are required")
	}

	result := t.op(*args.A, *args.B)
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return "", fmt.Errorf("%s(%v, %v) is not a finite number", t.name, *args.A, *args.B)
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}
