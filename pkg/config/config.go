// Package config loads strokebot settings from a YAML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/stroke-agent/pkg/memory/store"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the full strokebot configuration.
type Config struct {
	Artifacts Artifacts `yaml:"artifacts"`
	Planner   Planner   `yaml:"planner"`
	Agent     Agent     `yaml:"agent"`
	Explain   Explain   `yaml:"explain"`
	Store     Store     `yaml:"store"`
	Server    Server    `yaml:"server"`
}

// Artifacts locates the fitted model files.
type Artifacts struct {
	Preprocessor string `yaml:"preprocessor"`
	Model        string `yaml:"model"`
	Background   string `yaml:"background"`
}

type Planner struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	// APIKey only comes from the environment.
	APIKey string `yaml:"-"`
}

type Agent struct {
	SystemPromptFile string `yaml:"system_prompt_file"`
	MaxToolCalls     int    `yaml:"max_tool_calls"`
}

// Explain tunes the attribution engine.
type Explain struct {
	ExactMaxFeatures int           `yaml:"exact_max_features"`
	Permutations     int           `yaml:"permutations"`
	Seed             int64         `yaml:"seed"`
	Workers          int           `yaml:"workers"`
	CacheSize        int           `yaml:"cache_size"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// Store selects where conversation history is kept.
type Store struct {
	Backend         string `yaml:"backend"`
	SQLitePath      string `yaml:"sqlite_path"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

type Server struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Artifacts: Artifacts{
			Preprocessor: "artifacts/preprocessor.yaml",
			Model:        "artifacts/model.json",
			Background:   "artifacts/background.json",
		},
		Planner: Planner{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Agent: Agent{MaxToolCalls: 8},
		Explain: Explain{
			ExactMaxFeatures: 12,
			Permutations:     10,
			Seed:             42,
			Workers:          8,
			CacheSize:        256,
			CacheTTL:         time.Hour,
		},
		Store: Store{
			Backend:         BackendMemory,
			SQLitePath:      "strokebot.db",
			MongoDatabase:   "strokebot",
			MongoCollection: "chat_history",
		},
		Server: Server{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
		},
	}
}

// Load reads path (if not empty) over the defaults, loads envFiles (".env"
// when none are given; missing files are ignored) and applies environment
// overrides.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", path, err)
		}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerKeyVars lists the API key variables each planner provider reads.
var providerKeyVars = map[string][]string{
	"":          {"OPENAI_API_KEY", "OPENAI_KEY"},
	"openai":    {"OPENAI_API_KEY", "OPENAI_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"claude":    {"ANTHROPIC_API_KEY"},
	"gemini":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"google":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

// ApplyEnv overrides settings from STROKEBOT_* variables and the selected
// provider's API key variable.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	str(&c.Artifacts.Preprocessor, "STROKEBOT_PREPROCESSOR")
	str(&c.Artifacts.Model, "STROKEBOT_MODEL_PATH")
	str(&c.Artifacts.Background, "STROKEBOT_BACKGROUND")
	str(&c.Planner.Provider, "STROKEBOT_PLANNER_PROVIDER")
	str(&c.Planner.Model, "STROKEBOT_PLANNER_MODEL")
	str(&c.Planner.BaseURL, "STROKEBOT_PLANNER_BASE_URL", "STROKEBOT_OPENAI_BASE_URL")
	str(&c.Planner.APIKey, append([]string{"STROKEBOT_PLANNER_API_KEY"}, providerKeyVars[strings.ToLower(c.Planner.Provider)]...)...)
	str(&c.Agent.SystemPromptFile, "STROKEBOT_SYSTEM_PROMPT_FILE")
	str(&c.Store.Backend, "STROKEBOT_STORE_BACKEND")
	str(&c.Store.SQLitePath, "STROKEBOT_SQLITE_PATH")
	str(&c.Store.PostgresDSN, "STROKEBOT_POSTGRES_DSN", "DATABASE_URL")
	str(&c.Store.MongoURI, "STROKEBOT_MONGO_URI")
	str(&c.Store.MongoDatabase, "STROKEBOT_MONGO_DATABASE")
	str(&c.Store.MongoCollection, "STROKEBOT_MONGO_COLLECTION")
	str(&c.Server.Addr, "STROKEBOT_ADDR")

	if v, ok := lookup("STROKEBOT_PLANNER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STROKEBOT_PLANNER_TIMEOUT: %w", err)
		}
		c.Planner.Timeout = d
	}
	if v, ok := lookup("STROKEBOT_MAX_TOOL_CALLS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STROKEBOT_MAX_TOOL_CALLS: %w", err)
		}
		c.Agent.MaxToolCalls = n
	}
	if v, ok := lookup("STROKEBOT_ALLOW_ORIGINS"); ok && v != "" {
		c.Server.AllowOrigins = strings.Split(v, ",")
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Agent.MaxToolCalls <= 0 {
		return errors.New("agent.max_tool_calls must be positive")
	}
	if c.Planner.Timeout <= 0 {
		return errors.New("planner.timeout must be positive")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres backend")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// SystemPrompt returns the contents of the configured prompt file, or ""
// when none is set.
func (c *Config) SystemPrompt() (string, error) {
	if c.Agent.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Agent.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", c.Agent.SystemPromptFile, err)
	}
	return string(data), nil
}

// Open connects the configured history store.
func (s Store) Open(ctx context.Context) (store.HistoryStore, error) {
	switch s.Backend {
	case BackendMemory, "":
		return store.NewInMemoryStore(), nil
	case BackendSQLite:
		return store.OpenSQLiteStore(s.SQLitePath)
	case BackendPostgres:
		return store.NewPostgresStore(ctx, s.PostgresDSN)
	case BackendMongo:
		return store.NewMongoStore(ctx, s.MongoURI, s.MongoDatabase, s.MongoCollection)
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}
