package models

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-latest"

// AnthropicPlanner decides with Anthropic's Messages API and tool use.
type AnthropicPlanner struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int64
}

// NewAnthropicPlanner builds a planner. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewAnthropicPlanner(model, apiKey, baseURL string) *AnthropicPlanner {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(baseURL))
	}
	cl := anthropic.NewClient(opts...)
	return &AnthropicPlanner{
		Client:    &cl,
		Model:     model,
		MaxTokens: 1024,
	}
}

// Decide sends the conversation with tool definitions when the request has
// functions. Tool blocks are only valid next to tool definitions, so
// follow-up requests replay function results as text.
func (a *AnthropicPlanner) Decide(ctx context.Context, req Request) (Decision, error) {
	native := len(req.Functions) > 0
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: a.MaxTokens,
		Messages:  anthropicMessages(req.History, native),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if native {
		params.Tools = anthropicTools(req.Functions)
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Decision{}, fmt.Errorf("anthropic: %w", err)
	}

	var (
		d    Decision
		text strings.Builder
	)
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			if d.Call == nil {
				d.Call = &ToolCall{ID: block.ID, Name: block.Name, Arguments: string(block.Input)}
			}
		}
	}
	d.Content = text.String()
	return d, nil
}

func anthropicTools(functions []FunctionSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(functions))
	for _, f := range functions {
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        f.Name,
			Description: anthropic.String(f.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: f.Parameters["properties"],
				Required:   stringList(f.Parameters["required"]),
			},
		}})
	}
	return tools
}

func anthropicMessages(history []Message, native bool) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for i, m := range history {
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleFunction:
			if !native {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(functionResultText(m))))
				continue
			}
			id := m.CallID
			if id == "" {
				id = fmt.Sprintf("toolu_%03d", i)
			}
			out = append(out,
				anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(id, callArguments(m.Arguments), m.Name)),
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)),
			)
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

var _ Planner = (*AnthropicPlanner)(nil)
