// Package app joins the planner, the engine and chat history into the
// request/answer cycle used by the CLI and the gateways.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rahul/relay/internal/engine"
	"github.com/rahul/relay/internal/plan"
)

// Planner turns a request into a validated plan.
type Planner interface {
	Plan(ctx context.Context, chatID, request string) (plan.Plan, error)
}

// History records conversation turns.
type History interface {
	AddMessage(chatID, role, content string) error
}

// Service plans and executes requests. It is safe for concurrent use.
type Service struct {
	Planner Planner
	Runner  *engine.Runner
	History History
	Logger  *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Handle plans request and runs the plan. The returned plan is set whenever
// planning succeeded, even if the run could not start.
func (s *Service) Handle(ctx context.Context, chatID, request string) (plan.Plan, *engine.RunResult, error) {
	p, err := s.Planner.Plan(ctx, chatID, request)
	if err != nil {
		return plan.Plan{}, nil, fmt.Errorf("planning failed: %w", err)
	}
	s.logger().Info("executing plan", "chat_id", chatID, "steps", p.Len())

	res, err := s.Runner.Run(ctx, p)
	if err != nil {
		return p, nil, err
	}
	return p, res, nil
}

// Respond is Handle rendered as a chat reply. The request and the reply are
// stored in history.
func (s *Service) Respond(ctx context.Context, chatID, text string) string {
	s.remember(chatID, "user", text)

	_, res, err := s.Handle(ctx, chatID, text)
	reply := Reply(res, err)
	if err != nil {
		s.logger().Error("request failed", "chat_id", chatID, "error", err)
	}

	s.remember(chatID, "ai", reply)
	return reply
}

func (s *Service) remember(chatID, role, content string) {
	if s.History == nil || chatID == "" {
		return
	}
	if err := s.History.AddMessage(chatID, role, content); err != nil {
		s.logger().Warn("failed to store message", "chat_id", chatID, "role", role, "error", err)
	}
}

// Reply renders the outcome of Handle for a user.
func Reply(res *engine.RunResult, err error) string {
	switch {
	case errors.Is(err, plan.ErrInvalidPlan):
		return "I couldn't work out a plan for that request. Could you rephrase it?"
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case err != nil:
		return "I'm having trouble thinking right now..."
	case res == nil:
		return "No results"
	case res.OverallError != nil && len(res.FinalOutputs) == 0:
		return fmt.Sprintf("I couldn't finish that: %s", engine.KindOf(res.OverallError))
	default:
		return res.Answer()
	}
}
