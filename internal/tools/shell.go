package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxShellOutput bounds the combined output returned to the model.
const maxShellOutput = 16000

type ShellTool struct {
	Shell   string
	Dir     string
	Timeout time.Duration
}

// NewShellTool returns a tool running commands with bash inside dir.
func NewShellTool(dir string) *ShellTool {
	return &ShellTool{
		Shell:   "bash",
		Dir:     dir,
		Timeout: 60 * time.Second,
	}
}

func (s *ShellTool) Name() string {
	return "shell"
}

func (s *ShellTool) Description() string {
	return "Execute a shell command in the workspace and return its combined output. Use it to run scripts (e.g. python3 -c '...') and inspect results."
}

func (s *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (s *ShellTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}

	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	if strings.TrimSpace(args.Command) == "" {
		return "Error: empty command", nil
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", args.Command)
	cmd.Dir = s.Dir

	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if len(result) > maxShellOutput {
		result = result[:maxShellOutput] + "\n... (output truncated) ..."
	}
	if result == "" {
		result = "(no output)"
	}

	// A failing command is an observation for the model, not a tool error.
	if err != nil {
		return fmt.Sprintf("Command failed with error: %v\nOutput: %s", err, result), nil
	}

	return result, nil
}
