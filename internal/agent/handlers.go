package agent

import (
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/governance"
	"github.com/rahul/relay/internal/tools"
)

// Spec names a handler and tells the planner what it is good for.
type Spec struct {
	ID          string
	Description string
	Tools       []string
}

// Catalog lists the built-in handlers in the order the planner sees them.
var Catalog = []Spec{
	{ID: "math", Description: "arithmetic: addition, multiplication, powers, multi-step calculations", Tools: []string{"add", "multiply", "power"}},
	{ID: "string", Description: "text analysis: counting words and letters", Tools: []string{"word_count", "letter_count"}},
	{ID: "web_search", Description: "searching the web and reading pages for current facts", Tools: []string{"search", "scraper"}},
	{ID: "code", Description: "writing and running small programs or shell commands", Tools: []string{"shell", "workspace"}},
	{ID: "weather", Description: "current weather for a location", Tools: []string{"get_weather"}},
	{ID: "writer", Description: "drafting articles and prose from research"},
	{ID: "editor", Description: "reviewing and improving a draft"},
}

var basePrompts = map[string]string{
	"math": `You are a math agent. Solve the task using the arithmetic tools, one operation per call, and use results of earlier steps from the context when the task refers to them.
Answer with the final number only.`,
	"string": `You are a text analysis agent. Use the counting tools on exactly the text the task names.
Answer with the final count only.`,
	"web_search": `You are a web research agent. Search the web, read the most relevant pages with the scraper, and report the facts that answer the task.
Include the source URLs.`,
	"code": `You are a code execution agent. Write small programs to the workspace and run them with the shell tool, or run a single command directly.
Report the program output that answers the task. Never ask questions; make your best attempt.`,
	"weather": `You are a weather agent. Look up the current weather for the location in the task and summarise it in one sentence.`,
	"writer": `You are a professional content writer. Your job is to create well-structured, engaging content based on the research provided.

Write clear, informative content that:
- Has a compelling title (using # for markdown)
- Is well-organized with sections (using ## for subheadings)
- Synthesizes the research into coherent paragraphs
- Is approximately 200-400 words
- Uses proper markdown formatting

Return ONLY the written content, no preamble or explanation.`,
	"editor": `You are a professional content editor. Your job is to review and improve written content.

Review the content for clarity, structure, grammar and accuracy, then return an IMPROVED version that fixes the issues found,
keeps the original intent and key information, and keeps proper markdown formatting.

Return ONLY the improved content, no commentary or explanation about changes.`,
}

// Deps are the shared collaborators handlers are built from.
type Deps struct {
	Model   llms.Model
	Tools   *tools.Registry
	Policy  governance.PolicyEngine
	Prompts *PromptManager
	Logger  *slog.Logger
	// MaxSteps bounds the tool loop; zero selects DefaultMaxSteps.
	MaxSteps int
}

// NewHandlers builds every catalogued handler. Tool-driven handlers only see
// the tools listed for them in Catalog.
func NewHandlers(d Deps) map[string]engine.Handler {
	out := make(map[string]engine.Handler, len(Catalog))
	for _, spec := range Catalog {
		prompt := basePrompts[spec.ID]
		if d.Prompts != nil {
			prompt = d.Prompts.SystemPrompt(spec.ID, prompt)
		}

		switch spec.ID {
		case "writer":
			out[spec.ID] = &PromptAgent{Name: spec.ID, Model: d.Model, Prompt: prompt, Temperature: 0.7}
		case "editor":
			out[spec.ID] = &PromptAgent{Name: spec.ID, Model: d.Model, Prompt: prompt, Temperature: 0.3, MaxTokens: 2000}
		default:
			var reg *tools.Registry
			if d.Tools != nil {
				reg = d.Tools.Subset(spec.Tools...)
			}
			out[spec.ID] = &ToolAgent{
				Name:     spec.ID,
				Model:    d.Model,
				Tools:    reg,
				Policy:   d.Policy,
				Prompt:   prompt,
				MaxSteps: d.MaxSteps,
				Logger:   d.Logger,
			}
		}
	}
	return out
}

// DefaultTools builds the tool registry used by NewHandlers. workspace is the
// directory the code handler works in. A search tool that fails to start is
// left out.
func DefaultTools(workspace string, logger *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry(
		tools.NewAddTool(),
		tools.NewMultiplyTool(),
		tools.NewPowerTool(),
		tools.NewWordCountTool(),
		tools.NewLetterCountTool(),
		tools.NewScraperTool(),
		tools.NewShellTool(workspace),
		tools.NewWorkspaceTool(workspace),
		tools.NewWeatherTool(),
	)
	if search, err := tools.NewSearchTool(10); err != nil {
		if logger != nil {
			logger.Warn("search tool unavailable", "error", err)
		}
	} else {
		reg.Register(search)
	}
	return reg
}
