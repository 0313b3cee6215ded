// Package runtime wires the fitted artifacts, the planner and the history
// store into sessions that can be driven from a terminal or HTTP.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/classifier"
	"github.com/Protocol-Lattice/stroke-agent/pkg/codec"
	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
	"github.com/Protocol-Lattice/stroke-agent/pkg/memory/store"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
	"github.com/Protocol-Lattice/stroke-agent/pkg/predictor"
	"github.com/Protocol-Lattice/stroke-agent/pkg/render"
)

// PlannerLoader constructs the planner consulted on every turn.
type PlannerLoader func(ctx context.Context) (models.Planner, error)

// StoreFactory creates the history store used by the runtime.
type StoreFactory func(ctx context.Context) (store.HistoryStore, error)

// Artifacts are the fitted, read-only inputs shared by every session.
type Artifacts struct {
	Codec      *codec.Codec
	Model      classifier.Model
	Background [][]float64
}

// LoadArtifacts reads the codec parameters (YAML), the network (JSON) and
// the encoded background sample (JSON).
func LoadArtifacts(paramsPath, modelPath, backgroundPath string) (Artifacts, error) {
	c, err := codec.LoadParams(paramsPath)
	if err != nil {
		return Artifacts{}, fmt.Errorf("load codec params: %w", err)
	}
	network, err := classifier.LoadNetwork(modelPath)
	if err != nil {
		return Artifacts{}, fmt.Errorf("load model: %w", err)
	}
	if network.InputWidth() != c.Width() {
		return Artifacts{}, fmt.Errorf("model %s expects %d inputs, codec %s encodes %d", network.Version(), network.InputWidth(), c.Version(), c.Width())
	}
	background, err := explain.LoadBackground(backgroundPath, c.Width())
	if err != nil {
		return Artifacts{}, fmt.Errorf("load background: %w", err)
	}
	return Artifacts{Codec: c, Model: network, Background: background}, nil
}

// Option configures runtime construction.
type Option func(*config)

type config struct {
	artifacts      Artifacts
	planner        PlannerLoader
	storeFactory   StoreFactory
	display        render.Display
	systemPrompt   string
	maxToolCalls   int
	plannerTimeout time.Duration
	explainOptions []explain.Option
	logger         *log.Logger
}

func defaultConfig() *config {
	return &config{
		storeFactory: func(context.Context) (store.HistoryStore, error) {
			return store.NewInMemoryStore(), nil
		},
		maxToolCalls:   agent.DefaultMaxToolCalls,
		plannerTimeout: agent.DefaultPlannerTimeout,
	}
}

func (c *config) validate() error {
	if c.planner == nil {
		return errors.New("runtime requires a planner loader")
	}
	if c.artifacts.Codec == nil || c.artifacts.Model == nil || len(c.artifacts.Background) == 0 {
		return errors.New("runtime requires codec, model and background artifacts")
	}
	if c.storeFactory == nil {
		return errors.New("runtime requires a store factory")
	}
	return nil
}

// WithArtifacts sets the fitted codec, model and background sample.
func WithArtifacts(a Artifacts) Option {
	return func(c *config) {
		c.artifacts = a
	}
}

// WithPlanner sets the loader responsible for constructing the planner.
func WithPlanner(loader PlannerLoader) Option {
	return func(c *config) {
		c.planner = loader
	}
}

// WithStore supplies a custom history store factory.
func WithStore(factory StoreFactory) Option {
	return func(c *config) {
		if factory != nil {
			c.storeFactory = factory
		}
	}
}

// WithDisplay sets where rendered artifacts are shown.
func WithDisplay(d render.Display) Option {
	return func(c *config) {
		c.display = d
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithMaxToolCalls bounds the tool calls of a single turn.
func WithMaxToolCalls(n int) Option {
	return func(c *config) {
		c.maxToolCalls = n
	}
}

// WithPlannerTimeout bounds each planner round-trip.
func WithPlannerTimeout(d time.Duration) Option {
	return func(c *config) {
		c.plannerTimeout = d
	}
}

// WithExplainOptions tunes the attribution engine.
func WithExplainOptions(opts ...explain.Option) Option {
	return func(c *config) {
		c.explainOptions = append(c.explainOptions, opts...)
	}
}

// WithLogger sets the logger shared by the runtime and its components.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Runtime owns the agent, the history store and the active sessions.
type Runtime struct {
	agent    *agent.Agent
	planner  models.Planner
	store    store.HistoryStore
	logger   *log.Logger
	sessions *sessionManager
}

// New builds a runtime based on the supplied configuration options.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		logger = log.Default()
	}

	a := cfg.artifacts
	pred, err := predictor.New(a.Codec, a.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("create predictor: %w", err)
	}
	engine, err := explain.NewEngine(a.Codec, a.Model, a.Background, cfg.explainOptions...)
	if err != nil {
		return nil, fmt.Errorf("create explainer: %w", err)
	}

	planner, err := cfg.planner(ctx)
	if err != nil {
		return nil, fmt.Errorf("load planner: %w", err)
	}

	history, err := cfg.storeFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("create history store: %w", err)
	}

	agentInstance, err := agent.New(agent.Options{
		Planner:        planner,
		Tools:          agent.StrokeTools(pred, engine),
		Display:        cfg.display,
		SystemPrompt:   cfg.systemPrompt,
		MaxToolCalls:   cfg.maxToolCalls,
		PlannerTimeout: cfg.plannerTimeout,
		Logger:         logger,
	})
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("initialise agent: %w", err)
	}

	rt := &Runtime{
		agent:   agentInstance,
		planner: planner,
		store:   history,
		logger:  logger,
	}
	rt.sessions = newSessionManager(rt)
	return rt, nil
}

// Agent exposes the underlying orchestrator.
func (rt *Runtime) Agent() *agent.Agent {
	return rt.agent
}

// Close releases the history store and, when it holds connections, the
// planner.
func (rt *Runtime) Close() error {
	err := rt.store.Close()
	if c, ok := rt.planner.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// OpenSession returns the active session with id, restoring its history from
// the store when it is not active yet. An empty id creates a new session.
func (rt *Runtime) OpenSession(ctx context.Context, id string) (*Session, error) {
	return rt.sessions.open(ctx, id)
}

// GetSession retrieves an active session by its ID.
func (rt *Runtime) GetSession(id string) (*Session, error) {
	return rt.sessions.get(strings.TrimSpace(id))
}

// RemoveSession removes a session from the active sessions map. Its history
// stays in the store.
func (rt *Runtime) RemoveSession(id string) {
	rt.sessions.remove(strings.TrimSpace(id))
}

// ActiveSessions returns a copy of all active session IDs.
func (rt *Runtime) ActiveSessions() []string {
	return rt.sessions.activeIDs()
}

// Generate opens the session and runs one turn in it.
func (rt *Runtime) Generate(ctx context.Context, sessionID string, userInput string) (agent.Reply, error) {
	session, err := rt.OpenSession(ctx, sessionID)
	if err != nil {
		return agent.Reply{}, err
	}
	return session.Ask(ctx, userInput)
}

// Session is one conversation. Turns within a session are serialized.
type Session struct {
	runtime *Runtime
	id      string

	mu   sync.Mutex
	conv *agent.Conversation
}

// ID returns the unique identifier associated with the session.
func (s *Session) ID() string { return s.id }

// Ask runs one turn and persists the history afterwards, including turns
// that ended with a failure reply.
func (s *Session) Ask(ctx context.Context, userInput string) (agent.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.runtime.agent.Respond(ctx, s.id, s.conv, userInput)
	if reply.Content == "" && err != nil {
		return reply, err
	}
	if ferr := s.flushLocked(ctx); ferr != nil {
		s.runtime.logger.Printf("session %s: %v", s.id, ferr)
	}
	return reply, err
}

// Transcript returns the user-visible part of the history.
func (s *Session) Transcript() []models.Message {
	return s.conv.Transcript()
}

// Clear drops the history and the cached explanation, here and in the store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtime.agent.Clear(s.conv)
	if err := s.runtime.store.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("clear session %s: %w", s.id, err)
	}
	return nil
}

// Flush persists the session history.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	if err := s.runtime.store.Save(ctx, s.id, s.conv.Messages()); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
