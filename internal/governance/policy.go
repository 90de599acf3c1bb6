package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	Handler   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules. Implementations
// are called from concurrently running steps.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DestructivePatterns block commands that can damage the host.
var DestructivePatterns = []string{
	`rm\s+-(rf|fr)\b`,
	`\bmkfs(\.\w+)?\b`,
	`\bshutdown\b`,
	`\breboot\b`,
	`\bdd\s+if=`,
	`:\(\)\s*\{\s*:\|:&\s*\};:`,
}

// DefaultPolicyEngine denies whole tools, tools for a specific handler, or
// any call whose arguments match a pattern.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	DeniedTools map[string]bool
	DeniedPairs map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedPairs: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// NewDestructiveCommandPolicy returns an engine preloaded with
// DestructivePatterns.
func NewDestructiveCommandPolicy() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range DestructivePatterns {
		e.DeniedRegex = append(e.DeniedRegex, regexp.MustCompile(p))
	}
	return e
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedTools[name] = true
}

// DenyToolFor denies a tool only when called by handler.
func (e *DefaultPolicyEngine) DenyToolFor(handler, tool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedPairs[handler+"/"+tool] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}
	if req.Handler != "" && e.DeniedPairs[req.Handler+"/"+req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is not available to the %s handler", req.Tool, req.Handler),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
