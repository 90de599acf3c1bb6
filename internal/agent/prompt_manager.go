package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// preamble files are shared by every handler prompt, in this order.
var preambleOrder = map[string]int{
	"identity.md": 1,
	"soul.md":     2,
	"user.md":     3,
}

// PromptManager resolves system prompts, letting files in Directory override
// the built-in ones. A handler's prompt is "<handler>.md"; the planner's is
// "planner.md".
type PromptManager struct {
	Directory string
	logger    *slog.Logger
}

func NewPromptManager(dir string, logger *slog.Logger) *PromptManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PromptManager{Directory: dir, logger: logger}
}

// SystemPrompt returns the preamble followed by the prompt for name, using
// base when no override file exists.
func (pm *PromptManager) SystemPrompt(name, base string) string {
	body := base
	if override, err := pm.read(name + ".md"); err == nil && strings.TrimSpace(override) != "" {
		body = override
	}
	if pre := pm.Preamble(); pre != "" {
		return pre + "\n\n---\n\n" + body
	}
	return body
}

// Preamble concatenates the shared prompt files found in Directory.
func (pm *PromptManager) Preamble() string {
	if pm == nil || pm.Directory == "" {
		return ""
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return ""
	}

	var names []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if _, ok := preambleOrder[f.Name()]; ok {
			names = append(names, f.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return preambleOrder[names[i]] < preambleOrder[names[j]]
	})

	var contents []string
	for _, name := range names {
		data, err := pm.read(name)
		if err != nil {
			pm.logger.Warn("failed to read prompt file", "file", name, "error", err)
			continue
		}
		contents = append(contents, strings.TrimSpace(data))
	}
	return strings.Join(contents, "\n\n---\n\n")
}

func (pm *PromptManager) read(name string) (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", fmt.Errorf("no prompts directory")
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
