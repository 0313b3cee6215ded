package models

import (
	"context"
)

// Message roles carried by a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message is one conversation entry. On function results Name holds the
// tool that produced Content, Arguments the call's raw JSON and CallID the
// provider's identifier for the call, when it issued one.
type Message struct {
	Role      string `json:"role" bson:"role"`
	Name      string `json:"name,omitempty" bson:"name,omitempty"`
	Content   string `json:"content" bson:"content"`
	CallID    string `json:"call_id,omitempty" bson:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty" bson:"arguments,omitempty"`
}

// FunctionSpec is one declared tool as presented to the planner.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a planner's request to run a tool. Arguments is raw JSON.
// ID is empty for providers that do not identify calls.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Decision is a planner's answer: either a tool call or free text.
type Decision struct {
	Content string
	Call    *ToolCall
}

// Request is everything a planner sees for one decision. Functions is nil
// on follow-up requests.
type Request struct {
	System    string
	History   []Message
	Functions []FunctionSpec
}

// Planner decides the next step of a conversation.
type Planner interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}
