package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"
)

var (
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	embeddedJSON = regexp.MustCompile(`(?s)\{.*\}`)
)

type rawStep struct {
	Agent        string `json:"agent"`
	Task         string `json:"task"`
	Dependencies []int  `json:"dependencies"`
}

type rawPlan struct {
	Steps []rawStep `json:"steps"`

	// Single-step shape some planner prompts still produce.
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// Parse converts raw planner output into a Plan. It accepts a JSON object with
// a "steps" array, a bare array of steps, or the single-step {"agent","task"}
// form, optionally wrapped in a markdown code fence or surrounded by prose.
// Any failure is reported as ErrInvalidPlan.
func Parse(raw []byte) (Plan, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return Plan{}, fmt.Errorf("%w: empty planner output", ErrInvalidPlan)
	}

	candidates := [][]byte{body}
	if m := fencedJSON.FindSubmatch(body); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := embeddedJSON.Find(body); m != nil {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, c := range candidates {
		p, err := decodeJSON(c)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, lastErr)
}

func decodeJSON(data []byte) (Plan, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var steps []rawStep
		if err := json.Unmarshal(data, &steps); err != nil {
			return Plan{}, err
		}
		return fromRaw(steps), nil
	}

	var rp rawPlan
	if err := json.Unmarshal(data, &rp); err != nil {
		return Plan{}, err
	}
	if len(rp.Steps) == 0 && rp.Agent != "" && rp.Task != "" {
		return New(Step{HandlerID: rp.Agent, Task: rp.Task}), nil
	}
	if rp.Steps == nil {
		return Plan{}, fmt.Errorf("no steps field")
	}
	return fromRaw(rp.Steps), nil
}

func fromRaw(raw []rawStep) Plan {
	steps := make([]Step, len(raw))
	for i, r := range raw {
		steps[i] = Step{
			HandlerID:    strings.TrimSpace(r.Agent),
			Task:         r.Task,
			Dependencies: r.Dependencies,
		}
	}
	return New(steps...)
}

type hclPlan struct {
	Request string    `hcl:"request,optional"`
	Steps   []hclStep `hcl:"step,block"`
}

type hclStep struct {
	Agent     string `hcl:"agent,label"`
	Task      string `hcl:"task"`
	DependsOn []int  `hcl:"depends_on,optional"`
}

// LoadFile reads a hand-authored plan. The format is chosen by extension:
// .json, .yaml/.yml or .hcl.
func LoadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		p, err := Parse(data)
		if err != nil {
			return Plan{}, err
		}
		var meta struct {
			Request string `json:"request"`
		}
		_ = json.Unmarshal(data, &meta)
		return withRequest(p, meta.Request), nil
	case ".yaml", ".yml":
		var p Plan
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		return withRequest(New(p.Steps...), p.Request), nil
	case ".hcl":
		var hp hclPlan
		if err := hclsimple.Decode(filepath.Base(path), data, nil, &hp); err != nil {
			return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		steps := make([]Step, len(hp.Steps))
		for i, s := range hp.Steps {
			steps[i] = Step{HandlerID: s.Agent, Task: s.Task, Dependencies: s.DependsOn}
		}
		return withRequest(New(steps...), hp.Request), nil
	default:
		return Parse(data)
	}
}

func withRequest(p Plan, request string) Plan {
	p.Request = request
	return p
}
