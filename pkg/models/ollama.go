package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	ollama "github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3.1"

// OllamaPlanner decides with a local Ollama server's chat endpoint and tools.
type OllamaPlanner struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaPlanner builds a planner for host, falling back to OLLAMA_HOST and
// then http://localhost:11434.
func NewOllamaPlanner(model, host string) (*OllamaPlanner, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if model == "" {
		model = defaultOllamaModel
	}
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
	}
	return &OllamaPlanner{Client: ollama.NewClient(u, httpClient), Model: model}, nil
}

func (o *OllamaPlanner) Decide(ctx context.Context, req Request) (Decision, error) {
	messages := make([]ollama.Message, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		mapped, err := ollamaMessages(m)
		if err != nil {
			return Decision{}, err
		}
		messages = append(messages, mapped...)
	}

	stream := false
	chat := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Stream:   &stream,
	}
	if len(req.Functions) > 0 {
		tools, err := ollamaTools(req.Functions)
		if err != nil {
			return Decision{}, err
		}
		chat.Tools = tools
	}

	var last ollama.ChatResponse
	if err := o.Client.Chat(ctx, chat, func(resp ollama.ChatResponse) error {
		last = resp
		return nil
	}); err != nil {
		return Decision{}, fmt.Errorf("ollama chat: %w", err)
	}

	d := Decision{Content: last.Message.Content}
	if len(last.Message.ToolCalls) > 0 {
		fn := last.Message.ToolCalls[0].Function
		args, err := json.Marshal(fn.Arguments)
		if err != nil {
			return Decision{}, fmt.Errorf("ollama: encode arguments of %s: %w", fn.Name, err)
		}
		d.Call = &ToolCall{Name: fn.Name, Arguments: string(args)}
	}
	return d, nil
}

// ollamaTools goes through JSON so the declared schemas map onto the
// server's tool types without copying them field by field.
func ollamaTools(functions []FunctionSpec) ([]ollama.Tool, error) {
	decls := make([]map[string]any, 0, len(functions))
	for _, f := range functions {
		decls = append(decls, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        f.Name,
				"description": f.Description,
				"parameters":  f.Parameters,
			},
		})
	}
	raw, err := json.Marshal(decls)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode tools: %w", err)
	}
	var tools []ollama.Tool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("ollama: decode tools: %w", err)
	}
	return tools, nil
}

// ollamaMessages replays a function result as the assistant's tool call
// followed by a tool message.
func ollamaMessages(m Message) ([]ollama.Message, error) {
	if m.Role != RoleFunction {
		return []ollama.Message{{Role: m.Role, Content: m.Content}}, nil
	}
	raw, err := json.Marshal(map[string]any{
		"function": map[string]any{
			"name":      m.Name,
			"arguments": callArguments(m.Arguments),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode call %s: %w", m.Name, err)
	}
	var call ollama.ToolCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("ollama: decode call %s: %w", m.Name, err)
	}
	return []ollama.Message{
		{Role: "assistant", ToolCalls: []ollama.ToolCall{call}},
		{Role: "tool", Content: m.Content},
	}, nil
}

var _ Planner = (*OllamaPlanner)(nil)
