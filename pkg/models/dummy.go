package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DummyPlanner never calls tools; it echoes the latest user message.
// Useful for running the binaries without API access.
type DummyPlanner struct {
	Prefix string
}

func NewDummyPlanner(prefix string) *DummyPlanner {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyPlanner{Prefix: prefix}
}

func (d *DummyPlanner) Decide(_ context.Context, req Request) (Decision, error) {
	last := ""
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == RoleUser {
			last = strings.TrimSpace(req.History[i].Content)
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return Decision{Content: fmt.Sprintf("%s %s", d.Prefix, last)}, nil
}

// ErrScriptExhausted is returned once a ScriptedPlanner has no steps left.
var ErrScriptExhausted = errors.New("scripted planner: no steps left")

// Step is one scripted planner answer. Err, when set, is returned instead
// of the decision.
type Step struct {
	Decision Decision
	Err      error
	// Block makes the step wait for context cancellation.
	Block bool
}

// ScriptedPlanner replays fixed steps in order and records every request.
type ScriptedPlanner struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

func NewScriptedPlanner(steps ...Step) *ScriptedPlanner {
	return &ScriptedPlanner{steps: steps}
}

// Call is a step that invokes a tool with JSON arguments.
func Call(name, arguments string) Step {
	return Step{Decision: Decision{Call: &ToolCall{Name: name, Arguments: arguments}}}
}

// Reply is a step that ends the turn with text.
func Reply(content string) Step {
	return Step{Decision: Decision{Content: content}}
}

func (s *ScriptedPlanner) Decide(ctx context.Context, req Request) (Decision, error) {
	s.mu.Lock()
	snapshot := req
	snapshot.History = append([]Message(nil), req.History...)
	s.requests = append(s.requests, snapshot)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return Decision{}, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return Decision{}, ctx.Err()
	}
	if step.Err != nil {
		return Decision{}, step.Err
	}
	return step.Decision, nil
}

// Requests returns the requests seen so far.
func (s *ScriptedPlanner) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

var (
	_ Planner = (*DummyPlanner)(nil)
	_ Planner = (*ScriptedPlanner)(nil)
)
