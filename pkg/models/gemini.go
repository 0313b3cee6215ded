package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// geminiCall is one generate request: the chat history plus the parts sent
// as the newest turn.
type geminiCall struct {
	Model   string
	System  *genai.Content
	Tools   []*genai.Tool
	History []*genai.Content
	Parts   []genai.Part
}

// GeminiPlanner decides with Gemini function calling.
type GeminiPlanner struct {
	Client *genai.Client
	Model  string

	send func(ctx context.Context, call geminiCall) (*genai.GenerateContentResponse, error)
}

// NewGeminiPlanner builds a planner. An empty apiKey falls back to
// GOOGLE_API_KEY, then GEMINI_API_KEY. baseURL overrides the endpoint.
func NewGeminiPlanner(ctx context.Context, model, apiKey, baseURL string) (*GeminiPlanner, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	g := &GeminiPlanner{Client: client, Model: model}
	g.send = g.sendChat
	return g, nil
}

func (g *GeminiPlanner) sendChat(ctx context.Context, call geminiCall) (*genai.GenerateContentResponse, error) {
	model := g.Client.GenerativeModel(call.Model)
	model.SystemInstruction = call.System
	model.Tools = call.Tools
	cs := model.StartChat()
	cs.History = call.History
	return cs.SendMessage(ctx, call.Parts...)
}

// Close releases the underlying client.
func (g *GeminiPlanner) Close() error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Close()
}

// Decide sends the conversation with function declarations when the request
// has functions; follow-up requests replay function results as text.
func (g *GeminiPlanner) Decide(ctx context.Context, req Request) (Decision, error) {
	native := len(req.Functions) > 0
	contents := geminiContents(req.History, native)
	if len(contents) == 0 {
		return Decision{}, errors.New("gemini: empty conversation")
	}
	last := contents[len(contents)-1]
	call := geminiCall{
		Model:   g.Model,
		History: contents[:len(contents)-1],
		Parts:   last.Parts,
	}
	if req.System != "" {
		call.System = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if native {
		call.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(req.Functions)}}
	}

	resp, err := g.send(ctx, call)
	if err != nil {
		return Decision{}, fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Decision{}, errors.New("gemini: empty response")
	}

	var d Decision
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			d.Content += string(p)
		case genai.FunctionCall:
			if d.Call != nil {
				continue
			}
			args, err := json.Marshal(p.Args)
			if err != nil {
				return Decision{}, fmt.Errorf("gemini: encode arguments of %s: %w", p.Name, err)
			}
			d.Call = &ToolCall{Name: p.Name, Arguments: string(args)}
		}
	}
	return d, nil
}

// geminiContents maps the history onto user/model turns, merging adjacent
// turns of the same role.
func geminiContents(history []Message, native bool) []*genai.Content {
	var out []*genai.Content
	add := func(role string, parts ...genai.Part) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			add("model", genai.Text(m.Content))
		case RoleFunction:
			if !native {
				add("user", genai.Text(functionResultText(m)))
				continue
			}
			add("model", genai.FunctionCall{Name: m.Name, Args: callArguments(m.Arguments)})
			add("user", genai.FunctionResponse{Name: m.Name, Response: resultObject(m.Content)})
		default:
			add("user", genai.Text(m.Content))
		}
	}
	return out
}

func geminiDeclarations(functions []FunctionSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(functions))
	for _, f := range functions {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  geminiSchema(f.Parameters),
		})
	}
	return decls
}

// geminiSchema converts the JSON schema subset used by tool parameters.
func geminiSchema(v any) *genai.Schema {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	}
	s.Description, _ = m["description"].(string)
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			s.Properties[name] = geminiSchema(p)
		}
	}
	if items, ok := m["items"]; ok {
		s.Items = geminiSchema(items)
	}
	return s
}

var _ Planner = (*GeminiPlanner)(nil)
