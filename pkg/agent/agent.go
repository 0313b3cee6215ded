// Package agent runs the conversation loop in which a planner decides when
// to validate patient data, predict, explain and render attribution views.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
	"github.com/Protocol-Lattice/stroke-agent/pkg/render"
)

const (
	DefaultMaxToolCalls   = 8
	DefaultPlannerTimeout = 60 * time.Second
)

// User-visible replies for turns that could not finish.
const (
	replyToolCallLimit = "I could not finish this request because it needed too many steps. Please try again with a more specific question."
	replyTimeout       = "The assistant took too long to answer. Please try again."
	replyFailure       = "Sorry, something went wrong while preparing the answer. Please try again."
)

// Agent orchestrates planner decisions and tool calls.
type Agent struct {
	planner        models.Planner
	catalog        *ToolCatalog
	functions      []models.FunctionSpec
	display        render.Display
	systemPrompt   string
	maxToolCalls   int
	plannerTimeout time.Duration
	logger         *log.Logger
}

// Options configure a new Agent.
type Options struct {
	Planner        models.Planner
	Tools          []Tool
	Display        render.Display
	SystemPrompt   string
	MaxToolCalls   int
	PlannerTimeout time.Duration
	Logger         *log.Logger
}

// Reply is the outcome of one turn.
type Reply struct {
	Content   string            `json:"content"`
	ToolCalls []string          `json:"tool_calls,omitempty"`
	Artifacts []render.Artifact `json:"artifacts,omitempty"`
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Planner == nil {
		return nil, errors.New("agent requires a planner")
	}
	catalog, err := NewToolCatalog(opts.Tools...)
	if err != nil {
		return nil, err
	}

	maxCalls := opts.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = DefaultMaxToolCalls
	}
	timeout := opts.PlannerTimeout
	if timeout <= 0 {
		timeout = DefaultPlannerTimeout
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	a := &Agent{
		planner:        opts.Planner,
		catalog:        catalog,
		display:        opts.Display,
		systemPrompt:   systemPrompt,
		maxToolCalls:   maxCalls,
		plannerTimeout: timeout,
		logger:         logger,
	}
	for _, spec := range catalog.Specs() {
		a.functions = append(a.functions, models.FunctionSpec{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.InputSchema,
		})
	}
	return a, nil
}

// Tools returns the declared tool specifications in order.
func (a *Agent) Tools() []ToolSpec { return a.catalog.Specs() }

// Respond runs one turn: the user message is appended, then the planner is
// consulted until it answers without a tool call. The first request carries
// the tool schema, follow-ups do not.
//
// Turns that cannot finish still append a failure message as the assistant
// reply and return it together with the error.
func (a *Agent) Respond(ctx context.Context, sessionID string, conv *Conversation, userInput string) (Reply, error) {
	if strings.TrimSpace(userInput) == "" {
		return Reply{}, errors.New("user input is empty")
	}
	conv.Append(models.Message{Role: models.RoleUser, Content: userInput})

	var reply Reply
	decision, err := a.decide(ctx, conv, a.functions)
	for err == nil && decision.Call != nil {
		if len(reply.ToolCalls) >= a.maxToolCalls {
			return a.fail(conv, reply, replyToolCallLimit, fmt.Errorf("%w: %d calls", ErrToolCallLimit, a.maxToolCalls))
		}
		call := *decision.Call
		reply.ToolCalls = append(reply.ToolCalls, call.Name)
		payload := a.dispatch(ctx, sessionID, conv, call, &reply)
		conv.Append(models.Message{
			Role:      models.RoleFunction,
			Name:      call.Name,
			Content:   payload,
			CallID:    call.ID,
			Arguments: call.Arguments,
		})

		decision, err = a.decide(ctx, conv, nil)
	}
	if err != nil {
		if errors.Is(err, ErrPlannerTimeout) {
			return a.fail(conv, reply, replyTimeout, err)
		}
		return a.fail(conv, reply, replyFailure, err)
	}
	if strings.TrimSpace(decision.Content) == "" {
		return a.fail(conv, reply, replyFailure, &PlannerProtocolError{Reason: "answer has neither content nor a tool call"})
	}

	conv.Append(models.Message{Role: models.RoleAssistant, Content: decision.Content})
	reply.Content = decision.Content
	return reply, nil
}

// Clear resets the conversation history and its cached explanation.
func (a *Agent) Clear(conv *Conversation) {
	conv.Clear()
}

func (a *Agent) decide(ctx context.Context, conv *Conversation, functions []models.FunctionSpec) (models.Decision, error) {
	pctx, cancel := context.WithTimeout(ctx, a.plannerTimeout)
	defer cancel()

	d, err := a.planner.Decide(pctx, models.Request{
		System:    a.systemPrompt,
		History:   conv.Messages(),
		Functions: functions,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return models.Decision{}, fmt.Errorf("%w after %s", ErrPlannerTimeout, a.plannerTimeout)
		}
		return models.Decision{}, fmt.Errorf("planner: %w", err)
	}
	if d.Call != nil && strings.TrimSpace(d.Call.Name) == "" {
		return models.Decision{}, &PlannerProtocolError{Reason: "tool call without a name"}
	}
	return d, nil
}

func (a *Agent) fail(conv *Conversation, reply Reply, message string, err error) (Reply, error) {
	a.logger.Printf("turn failed: %v", err)
	conv.Append(models.Message{Role: models.RoleAssistant, Content: message})
	reply.Content = message
	return reply, err
}

// dispatch runs one tool call and always returns a JSON payload for the
// planner. Tool failures, including panics, become {"error": ...}.
func (a *Agent) dispatch(ctx context.Context, sessionID string, conv *Conversation, call models.ToolCall, reply *Reply) (payload string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("tool %s panicked: %v", call.Name, r)
			payload = errorPayload(fmt.Errorf("tool %s failed unexpectedly", call.Name))
		}
	}()

	tool, ok := a.catalog.Lookup(call.Name)
	if !ok {
		return errorPayload(&DispatchError{Tool: call.Name, Reason: "unknown tool"})
	}

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		dec := json.NewDecoder(strings.NewReader(call.Arguments))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return errorPayload(&DispatchError{Tool: call.Name, Reason: "malformed arguments", Err: err})
		}
	}

	resp, err := tool.Invoke(ctx, ToolRequest{
		SessionID:    sessionID,
		Conversation: conv,
		Arguments:    args,
		Show: func(ctx context.Context, art render.Artifact) error {
			reply.Artifacts = append(reply.Artifacts, art)
			if a.display == nil {
				return nil
			}
			return a.display.Show(ctx, sessionID, art)
		},
	})
	if err != nil {
		a.logger.Printf("tool %s: %v", call.Name, err)
		return errorPayload(err)
	}
	return resp.Content
}
