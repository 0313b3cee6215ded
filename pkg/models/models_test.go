package models

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDummyPlannerDefaultPrefix(t *testing.T) {
	p := NewDummyPlanner("")
	d, err := p.Decide(context.Background(), Request{History: []Message{
		{Role: RoleUser, Content: "line1"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "line2"},
	}})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Content != "Dummy response: line2" || d.Call != nil {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDummyPlannerHandlesEmptyHistory(t *testing.T) {
	d, _ := NewDummyPlanner("Prefix").Decide(context.Background(), Request{})
	if d.Content != "Prefix <empty prompt>" {
		t.Fatalf("unexpected response: %q", d.Content)
	}
}

func TestNewPlannerErrorsOnUnknownProvider(t *testing.T) {
	ctx := context.Background()
	if _, err := NewPlanner(ctx, "unknown", "model", "", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if p, err := NewPlanner(ctx, "dummy", "", "", ""); err != nil || p == nil {
		t.Fatalf("dummy provider: %v", err)
	}
}

func TestScriptedPlanner(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedPlanner(Call("validate_input", `{}`), Step{Err: boom}, Reply("done"))
	ctx := context.Background()

	d, err := p.Decide(ctx, Request{History: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil || d.Call == nil || d.Call.Name != "validate_input" {
		t.Fatalf("first step: %+v %v", d, err)
	}
	if _, err := p.Decide(ctx, Request{}); !errors.Is(err, boom) {
		t.Fatalf("second step should fail with boom, got %v", err)
	}
	if d, _ := p.Decide(ctx, Request{}); d.Content != "done" {
		t.Fatalf("third step: %+v", d)
	}
	if _, err := p.Decide(ctx, Request{}); !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if n := len(p.Requests()); n != 4 {
		t.Fatalf("expected 4 recorded requests, got %d", n)
	}
}

func TestScriptedPlannerBlockHonoursContext(t *testing.T) {
	p := NewScriptedPlanner(Step{Block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Decide(ctx, Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestOpenAIPlannerFunctionCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"function_call","message":{"role":"assistant","content":"",
			"function_call":{"name":"get_stroke_prediction","arguments":"{\"person_data\":{}}"}}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIPlanner("m", "test-key", srv.URL+"/v1")
	d, err := p.Decide(context.Background(), Request{
		System: "sys",
		History: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleFunction, Name: "validate_input", Content: `{"valid":true}`},
		},
		Functions: []FunctionSpec{{Name: "get_stroke_prediction", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Call == nil || d.Call.Name != "get_stroke_prediction" || d.Call.Arguments != `{"person_data":{}}` {
		t.Fatalf("unexpected decision: %+v", d)
	}

	if got["function_call"] != "auto" {
		t.Fatalf("function_call not set: %v", got["function_call"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected system + 2 history messages, got %d", len(msgs))
	}
	fn, _ := msgs[2].(map[string]any)
	if fn["role"] != "function" || fn["name"] != "validate_input" {
		t.Fatalf("function result not forwarded: %v", fn)
	}
}

func TestOpenAIPlannerOmitsFunctionsOnFollowUp(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c2","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"final"}}]}`)
	}))
	defer srv.Close()

	d, err := NewOpenAIPlanner("m", "k", srv.URL+"/v1").Decide(context.Background(), Request{
		History: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil || d.Content != "final" || d.Call != nil {
		t.Fatalf("unexpected decision %+v err=%v", d, err)
	}
	if _, ok := got["functions"]; ok {
		t.Fatalf("functions must be omitted on follow-up requests")
	}
	if _, ok := got["function_call"]; ok {
		t.Fatalf("function_call must be omitted on follow-up requests")
	}
}
