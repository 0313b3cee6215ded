package agent

import (
	"context"

	"github.com/Protocol-Lattice/stroke-agent/pkg/render"
)

// ToolSpec describes how the agent should present a tool to the planner.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolRequest captures an invocation request for a tool.
type ToolRequest struct {
	SessionID    string
	Conversation *Conversation
	Arguments    map[string]any
	// Show hands an artifact to the display layer and records it on the
	// turn's reply.
	Show func(ctx context.Context, a render.Artifact) error
}

// ToolResponse carries the JSON payload fed back to the planner.
type ToolResponse struct {
	Content string
}

// Tool exposes structured metadata and an invocation handler.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error)
}
