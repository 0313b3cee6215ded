package agent

import (
	"errors"
	"fmt"

	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
)

var (
	// ErrToolCallLimit ends a turn whose planner keeps asking for tools.
	ErrToolCallLimit = errors.New("tool call limit reached")
	// ErrPlannerTimeout ends a turn whose planner did not answer in time.
	ErrPlannerTimeout = errors.New("planner timed out")
)

// DispatchError reports a tool call that could not be routed: unknown tool
// or malformed arguments.
type DispatchError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch %s: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %s", e.Tool, e.Reason)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ExplanationStateError is returned by render tools when the session has no
// explanation yet.
type ExplanationStateError struct {
	Tool string
}

func (e *ExplanationStateError) Error() string {
	return fmt.Sprintf("%s needs an explanation for this session; call %s first", e.Tool, ToolExplain)
}

func (e *ExplanationStateError) Unwrap() error { return explain.ErrNoExplanation }

// PlannerProtocolError reports a planner answer the loop cannot act on.
type PlannerProtocolError struct {
	Reason string
}

func (e *PlannerProtocolError) Error() string {
	return "planner protocol: " + e.Reason
}
