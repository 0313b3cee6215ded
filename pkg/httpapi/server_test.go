package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/classifier"
	"github.com/Protocol-Lattice/stroke-agent/pkg/internal/fixture"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
	"github.com/Protocol-Lattice/stroke-agent/pkg/runtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, planner models.Planner, opts ...runtime.Option) *gin.Engine {
	t.Helper()
	base := []runtime.Option{
		runtime.WithArtifacts(runtime.Artifacts{
			Codec:      fixture.Codec(),
			Model:      classifier.Func(fixture.Logistic),
			Background: fixture.Background(),
		}),
		runtime.WithPlanner(func(context.Context) (models.Planner, error) { return planner, nil }),
		runtime.WithLogger(log.New(io.Discard, "", 0)),
	}
	rt, err := runtime.New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return NewRouter(rt, Options{Quiet: true})
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostMessageRunsTurn(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"person_data": fixture.Candidate()})
	planner := models.NewScriptedPlanner(
		models.Call(agent.ToolExplain, string(args)),
		models.Call(agent.ToolWaterfall, `{"max_display":5}`),
		models.Reply("Age contributes the most."),
	)
	r := newTestRouter(t, planner)

	w := do(t, r, http.MethodPost, "/sessions/abc/messages", `{"message":"Why is my risk high?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	var resp messageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "abc" || resp.Reply.Content != "Age contributes the most." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Reply.Artifacts) != 1 || len(resp.Reply.Artifacts[0].Entries) != 6 {
		t.Fatalf("expected one waterfall artifact with 5+1 entries: %+v", resp.Reply.Artifacts)
	}

	w = do(t, r, http.MethodGet, "/sessions/abc/messages", "")
	var tr transcriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if len(tr.Messages) != 2 {
		t.Fatalf("transcript should hide function results, got %d messages", len(tr.Messages))
	}
}

func TestPostMessageValidation(t *testing.T) {
	r := newTestRouter(t, models.NewDummyPlanner(""))
	if w := do(t, r, http.MethodPost, "/sessions/x/messages", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/sessions/x/messages", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/sessions/x/messages", `{"message":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", w.Code)
	}
}

func TestPostMessagePlannerTimeout(t *testing.T) {
	r := newTestRouter(t, models.NewScriptedPlanner(models.Step{Block: true}), runtime.WithPlannerTimeout(10*time.Millisecond))
	w := do(t, r, http.MethodPost, "/sessions/slow/messages", `{"message":"hello"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", w.Code)
	}
	var resp messageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Reply.Content == "" || resp.Error == "" {
		t.Fatalf("timeout should carry a user-visible reply and an error: %+v", resp)
	}
}

func TestClearSession(t *testing.T) {
	r := newTestRouter(t, models.NewDummyPlanner(""))
	do(t, r, http.MethodPost, "/sessions/c1/messages", `{"message":"hello"}`)

	if w := do(t, r, http.MethodDelete, "/sessions/c1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/sessions/c1/messages", "")
	var tr transcriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if len(tr.Messages) != 0 {
		t.Fatalf("history should be empty after clear, got %+v", tr.Messages)
	}
}

func TestCreateSessionAndMetadata(t *testing.T) {
	r := newTestRouter(t, models.NewDummyPlanner(""))

	w := do(t, r, http.MethodPost, "/sessions", "")
	var created map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if w.Code != http.StatusCreated || created["session_id"] == "" {
		t.Fatalf("unexpected create response %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/variables", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Residence_type") {
		t.Fatalf("unexpected variables response %s", w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/tools", "")
	var tools struct {
		Version string           `json:"version"`
		Tools   []agent.ToolSpec `json:"tools"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &tools)
	if tools.Version != agent.ToolSchemaVersion || len(tools.Tools) != 6 {
		t.Fatalf("unexpected tools response %s", w.Body.String())
	}

	if w := do(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", w.Code)
	}
}
