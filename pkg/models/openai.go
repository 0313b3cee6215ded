package models

import (
	"context"
	"errors"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAIPlanner asks a chat completion model for the next step using
// function calling.
type OpenAIPlanner struct {
	Client *openai.Client
	Model  string
}

// NewOpenAIPlanner builds a planner. An empty apiKey falls back to
// OPENAI_API_KEY, then OPENAI_KEY. baseURL overrides the API endpoint.
func NewOpenAIPlanner(model, apiKey, baseURL string) *OpenAIPlanner {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIPlanner{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (o *OpenAIPlanner) Decide(ctx context.Context, req Request) (Decision, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openAIMessages(m)...)
	}

	ccr := openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: messages,
	}
	if len(req.Functions) > 0 {
		defs := make([]openai.FunctionDefinition, 0, len(req.Functions))
		for _, f := range req.Functions {
			defs = append(defs, openai.FunctionDefinition{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
			})
		}
		ccr.Functions = defs
		ccr.FunctionCall = "auto"
	}

	resp, err := o.Client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return Decision{}, err
	}
	if len(resp.Choices) == 0 {
		return Decision{}, errors.New("no response from OpenAI")
	}

	msg := resp.Choices[0].Message
	d := Decision{Content: msg.Content}
	switch {
	case msg.FunctionCall != nil:
		d.Call = &ToolCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}
	case len(msg.ToolCalls) > 0:
		// Some compatible servers answer with tool_calls even for functions.
		// The id is kept so the result can be sent back as a tool message.
		tc := msg.ToolCalls[0]
		d.Call = &ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return d, nil
}

// openAIMessages maps one history entry. Results of legacy function calls
// use the function role; results of identified tool calls are replayed as
// the assistant's tool call followed by a tool message answering it.
func openAIMessages(m Message) []openai.ChatCompletionMessage {
	if m.Role != RoleFunction {
		return []openai.ChatCompletionMessage{{Role: m.Role, Content: m.Content}}
	}
	if m.CallID == "" {
		return []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleFunction,
			Name:    m.Name,
			Content: m.Content,
		}}
	}
	return []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       m.CallID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: m.Name, Arguments: m.Arguments},
			}},
		},
		{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Content,
			ToolCallID: m.CallID,
		},
	}
}

var _ Planner = (*OpenAIPlanner)(nil)
