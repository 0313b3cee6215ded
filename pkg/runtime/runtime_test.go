package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/classifier"
	"github.com/Protocol-Lattice/stroke-agent/pkg/config"
	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
	"github.com/Protocol-Lattice/stroke-agent/pkg/internal/fixture"
	"github.com/Protocol-Lattice/stroke-agent/pkg/memory/store"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

var quiet = log.New(io.Discard, "", 0)

func testArtifacts() Artifacts {
	return Artifacts{
		Codec:      fixture.Codec(),
		Model:      classifier.Func(fixture.Logistic),
		Background: fixture.Background(),
	}
}

func plannerOf(p models.Planner) PlannerLoader {
	return func(context.Context) (models.Planner, error) { return p, nil }
}

func newTestRuntime(t *testing.T, p models.Planner, opts ...Option) *Runtime {
	t.Helper()
	base := []Option{WithArtifacts(testArtifacts()), WithPlanner(plannerOf(p)), WithLogger(quiet)}
	rt, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("runtime.New returned error: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRuntimeNewValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, WithArtifacts(testArtifacts())); err == nil {
		t.Fatalf("expected error when planner is missing")
	}
	if _, err := New(ctx, WithPlanner(plannerOf(models.NewDummyPlanner("")))); err == nil {
		t.Fatalf("expected error when artifacts are missing")
	}

	failingStore := func(context.Context) (store.HistoryStore, error) {
		return nil, errors.New("boom")
	}
	if _, err := New(ctx, WithArtifacts(testArtifacts()), WithPlanner(plannerOf(models.NewDummyPlanner(""))), WithStore(failingStore)); err == nil {
		t.Fatalf("expected error when store factory fails")
	}

	failingPlanner := func(context.Context) (models.Planner, error) { return nil, errors.New("no key") }
	if _, err := New(ctx, WithArtifacts(testArtifacts()), WithPlanner(failingPlanner)); err == nil {
		t.Fatalf("expected error when planner loader fails")
	}
}

func TestRuntimeGeneratePersistsHistory(t *testing.T) {
	history := store.NewInMemoryStore()
	planner := models.NewScriptedPlanner(
		models.Call(agent.ToolValidate, `{"person_data":{"age":67}}`),
		models.Reply("Some fields are missing."),
	)
	rt := newTestRuntime(t, planner, WithStore(func(context.Context) (store.HistoryStore, error) { return history, nil }))

	reply, err := rt.Generate(context.Background(), "patient-1", "Check my data")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Content != "Some fields are missing." {
		t.Fatalf("unexpected reply %q", reply.Content)
	}

	saved, _ := history.Load(context.Background(), "patient-1")
	if len(saved) != 3 || saved[1].Role != models.RoleFunction {
		t.Fatalf("history not persisted: %+v", saved)
	}
	if !strings.Contains(saved[1].Content, `"valid":false`) {
		t.Fatalf("unexpected function result %s", saved[1].Content)
	}
	if ids := rt.ActiveSessions(); len(ids) != 1 || ids[0] != "patient-1" {
		t.Fatalf("unexpected active sessions %v", ids)
	}
}

func TestRuntimeRestoresAndClearsSession(t *testing.T) {
	ctx := context.Background()
	history := store.NewInMemoryStore()
	_ = history.Save(ctx, "returning", []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleFunction, Name: agent.ToolPredict, Content: `{}`},
		{Role: models.RoleAssistant, Content: "hello"},
	})
	rt := newTestRuntime(t, models.NewDummyPlanner(""), WithStore(func(context.Context) (store.HistoryStore, error) { return history, nil }))

	s, err := rt.OpenSession(ctx, "returning")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Transcript(); len(got) != 2 || got[1].Content != "hello" {
		t.Fatalf("history not restored: %+v", got)
	}
	again, _ := rt.OpenSession(ctx, "returning")
	if again != s {
		t.Fatalf("open should return the active session")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Transcript()) != 0 {
		t.Fatalf("transcript not cleared")
	}
	if saved, _ := history.Load(ctx, "returning"); len(saved) != 0 {
		t.Fatalf("store not cleared: %+v", saved)
	}

	rt.RemoveSession("returning")
	if _, err := rt.GetSession("returning"); err == nil {
		t.Fatalf("expected removed session to be gone")
	}
}

func TestRuntimeGeneratesSessionIDs(t *testing.T) {
	rt := newTestRuntime(t, models.NewDummyPlanner(""))
	a, _ := rt.OpenSession(context.Background(), "")
	b, _ := rt.OpenSession(context.Background(), "  ")
	if a.ID() == b.ID() {
		t.Fatalf("generated ids must be unique")
	}
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Fatalf("expected uuid session id, got %q", a.ID())
	}
}

func TestSessionTurnsAreSerialized(t *testing.T) {
	rt := newTestRuntime(t, models.NewDummyPlanner("echo:"))
	s, _ := rt.OpenSession(context.Background(), "busy")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Ask(context.Background(), "ping"); err != nil {
				t.Errorf("Ask: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs := s.Transcript()
	if len(msgs) != 32 {
		t.Fatalf("expected 32 messages, got %d", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Role != models.RoleUser || msgs[i+1].Role != models.RoleAssistant {
			t.Fatalf("turns interleaved at %d: %+v %+v", i, msgs[i], msgs[i+1])
		}
	}
}

func TestSessionFailureReplyIsPersisted(t *testing.T) {
	history := store.NewInMemoryStore()
	planner := models.NewScriptedPlanner(models.Step{Err: errors.New("upstream down")})
	rt := newTestRuntime(t, planner, WithStore(func(context.Context) (store.HistoryStore, error) { return history, nil }))

	reply, err := rt.Generate(context.Background(), "s", "hello")
	if err == nil || reply.Content == "" {
		t.Fatalf("expected failure reply and error, got %q / %v", reply.Content, err)
	}
	saved, _ := history.Load(context.Background(), "s")
	if len(saved) != 2 || saved[1].Content != reply.Content {
		t.Fatalf("failure reply should be persisted: %+v", saved)
	}
}

func writeArtifacts(t *testing.T, width int) (string, string, string) {
	t.Helper()
	dir := t.TempDir()

	params, err := yaml.Marshal(fixture.Params())
	if err != nil {
		t.Fatal(err)
	}
	paramsPath := filepath.Join(dir, "preprocessor.yaml")
	if err := os.WriteFile(paramsPath, params, 0o644); err != nil {
		t.Fatal(err)
	}

	weights := append([]float64(nil), fixture.Weights...)
	network, _ := json.Marshal(classifier.NetworkArtifact{
		Version:    "stroke-mlp/test",
		InputWidth: width,
		Layers: []classifier.Layer{{
			Weights:    [][]float64{weights[:width]},
			Bias:       []float64{fixture.Bias},
			Activation: "sigmoid",
		}},
	})
	modelPath := filepath.Join(dir, "model.json")
	if err := os.WriteFile(modelPath, network, 0o644); err != nil {
		t.Fatal(err)
	}

	background, _ := json.Marshal(explain.BackgroundArtifact{Version: "bg/test", Rows: fixture.Background()})
	backgroundPath := filepath.Join(dir, "background.json")
	if err := os.WriteFile(backgroundPath, background, 0o644); err != nil {
		t.Fatal(err)
	}
	return paramsPath, modelPath, backgroundPath
}

func TestLoadArtifacts(t *testing.T) {
	a, err := LoadArtifacts(writeArtifacts(t, 22))
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	vec, err := a.Codec.Encode(fixture.Record())
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.Model.Infer(vec)
	if err != nil {
		t.Fatal(err)
	}
	if want := fixture.Logistic(vec); math.Abs(got-want) > 1e-12 {
		t.Fatalf("loaded model scores %v, want %v", got, want)
	}
	if len(a.Background) != 6 {
		t.Fatalf("expected 6 background rows, got %d", len(a.Background))
	}

	if _, err := LoadArtifacts(writeArtifacts(t, 21)); err == nil || !strings.Contains(err.Error(), "expects 21 inputs") {
		t.Fatalf("expected width mismatch error, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Artifacts.Preprocessor, cfg.Artifacts.Model, cfg.Artifacts.Background = writeArtifacts(t, 22)
	cfg.Planner.Provider = "dummy"
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "history.db")

	opts, err := OptionsFromConfig(cfg, quiet)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	rt, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	reply, err := rt.Generate(context.Background(), "cfg", "hello")
	if err != nil || reply.Content != "Dummy response: hello" {
		t.Fatalf("unexpected reply %q %v", reply.Content, err)
	}

	cfg.Agent.SystemPromptFile = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := OptionsFromConfig(cfg, quiet); err == nil {
		t.Fatalf("expected error for missing prompt file")
	}
}

func TestShippedArtifacts(t *testing.T) {
	a, err := LoadArtifacts("../../artifacts/preprocessor.yaml", "../../artifacts/model.json", "../../artifacts/background.json")
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	vec, err := a.Codec.Encode(fixture.Record())
	if err != nil {
		t.Fatal(err)
	}
	p, err := a.Model.Infer(vec)
	if err != nil {
		t.Fatal(err)
	}
	// The example model must stay discriminative: neither saturated on the
	// reference patient nor high across the background population.
	if p < 0.05 || p > 0.95 {
		t.Fatalf("reference probability should be moderate, got %v", p)
	}
	if len(a.Background) == 0 {
		t.Fatalf("background should not be empty")
	}
	var sum, low float64
	low = 1
	for _, row := range a.Background {
		q, err := a.Model.Infer(row)
		if err != nil {
			t.Fatal(err)
		}
		sum += q
		low = math.Min(low, q)
	}
	if mean := sum / float64(len(a.Background)); mean >= 0.5 || mean >= p {
		t.Fatalf("background mean %v should be low and below the reference %v", mean, p)
	}
	if low > 0.1 {
		t.Fatalf("some background patients should be low risk, minimum is %v", low)
	}
}

type closingPlanner struct {
	models.Planner
	closed int
	err    error
}

func (c *closingPlanner) Close() error {
	c.closed++
	return c.err
}

func TestRuntimeCloseReleasesPlanner(t *testing.T) {
	p := &closingPlanner{Planner: models.NewDummyPlanner(""), err: errors.New("close failed")}
	rt, err := New(context.Background(), WithArtifacts(testArtifacts()), WithPlanner(plannerOf(p)), WithLogger(quiet))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Close(); err == nil || !strings.Contains(err.Error(), "close failed") {
		t.Fatalf("expected planner close error, got %v", err)
	}
	if p.closed != 1 {
		t.Fatalf("planner closed %d times, want 1", p.closed)
	}
}
