package runtime

import (
	"context"
	"log"

	"github.com/Protocol-Lattice/stroke-agent/pkg/config"
	"github.com/Protocol-Lattice/stroke-agent/pkg/explain"
	"github.com/Protocol-Lattice/stroke-agent/pkg/memory/store"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

// OptionsFromConfig loads the configured artifacts and system prompt and
// translates cfg into runtime options.
func OptionsFromConfig(cfg *config.Config, logger *log.Logger) ([]Option, error) {
	artifacts, err := LoadArtifacts(cfg.Artifacts.Preprocessor, cfg.Artifacts.Model, cfg.Artifacts.Background)
	if err != nil {
		return nil, err
	}
	prompt, err := cfg.SystemPrompt()
	if err != nil {
		return nil, err
	}

	p := cfg.Planner
	e := cfg.Explain
	return []Option{
		WithArtifacts(artifacts),
		WithPlanner(func(ctx context.Context) (models.Planner, error) {
			return models.NewPlanner(ctx, p.Provider, p.Model, p.APIKey, p.BaseURL)
		}),
		WithStore(func(ctx context.Context) (store.HistoryStore, error) {
			return cfg.Store.Open(ctx)
		}),
		WithSystemPrompt(prompt),
		WithMaxToolCalls(cfg.Agent.MaxToolCalls),
		WithPlannerTimeout(p.Timeout),
		WithExplainOptions(
			explain.WithExactMaxFeatures(e.ExactMaxFeatures),
			explain.WithPermutations(e.Permutations),
			explain.WithSeed(e.Seed),
			explain.WithWorkers(e.Workers),
			explain.WithCache(e.CacheSize, e.CacheTTL),
		),
		WithLogger(logger),
	}, nil
}
