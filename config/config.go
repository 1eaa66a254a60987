package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/prospectmesh/agent"
	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/engine"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration of prospectmesh.
type Config struct {
	Engine     EngineConfig     `yaml:"engine,omitempty"`
	Agents     AgentsConfig     `yaml:"agents,omitempty"`
	Services   ServicesConfig   `yaml:"services,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Embedder   EmbedderConfig   `yaml:"embedder,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty"`
	Vector     VectorConfig     `yaml:"vector,omitempty"`
	Compliance ComplianceConfig `yaml:"compliance,omitempty"`
	Stream     StreamConfig     `yaml:"stream,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// Parallelism bounds the prospects processed at once.
	// Default: 4
	Parallelism int `yaml:"parallelism,omitempty"`

	// MaxStageRetries is the number of extra attempts after a retryable error.
	// Default: 3
	MaxStageRetries *int `yaml:"max_stage_retries,omitempty"`

	// Default: 200ms / 5s
	BackoffInitial Duration `yaml:"backoff_initial,omitempty"`
	BackoffMax     Duration `yaml:"backoff_max,omitempty"`

	// BackoffJitter is the +/- fraction applied to backoff sleeps.
	// Default: 0.2
	BackoffJitter float64 `yaml:"backoff_jitter,omitempty"`

	// StageTimeout bounds one stage attempt. Zero disables it.
	StageTimeout Duration `yaml:"stage_timeout,omitempty"`

	// MaxGenerations caps LLM generations per run. Zero is unlimited.
	MaxGenerations int `yaml:"max_generations,omitempty"`
}

// AgentsConfig tunes the agent chain.
type AgentsConfig struct {
	// Default: 168h
	FactTTL Duration `yaml:"fact_ttl,omitempty"`

	// Default: 5 / 0.75
	SimilarityK         int     `yaml:"similarity_k,omitempty"`
	SimilarityThreshold float32 `yaml:"similarity_threshold,omitempty"`

	// PartialFacts is "compute" (default) or "suppress".
	PartialFacts string `yaml:"partial_facts,omitempty"`

	// MinFitScore disqualifies prospects scoring below it.
	MinFitScore float64 `yaml:"min_fit_score,omitempty"`

	// Default: 60s
	LLMTimeout  Duration `yaml:"llm_timeout,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`

	// PromptFile replaces the built-in draft prompt template.
	PromptFile string `yaml:"prompt_file,omitempty"`

	// Default: 0.95
	DuplicateThreshold float32 `yaml:"duplicate_threshold,omitempty"`

	// Default: 3
	MaxSlots int `yaml:"max_slots,omitempty"`
}

// ServicesConfig locates the RPC collaborators. An empty URL leaves the
// collaborator unset.
type ServicesConfig struct {
	SearchURL   string `yaml:"search_url,omitempty"`
	EmailURL    string `yaml:"email_url,omitempty"`
	CalendarURL string `yaml:"calendar_url,omitempty"`
	StoreURL    string `yaml:"store_url,omitempty"`

	// Timeout bounds every call.
	// Default: 10s
	Timeout Duration `yaml:"timeout,omitempty"`

	// RateLimitRPS throttles all outbound calls together. Zero is unlimited.
	RateLimitRPS float64 `yaml:"rate_limit_rps,omitempty"`
}

// LLMConfig selects the draft generator.
type LLMConfig struct {
	// Provider is one of mock, openai, anthropic, gemini or ollama.
	// Default: mock
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// EmbedderConfig selects the embedding source of the vector index.
type EmbedderConfig struct {
	// Provider is one of hash, openai or ollama.
	// Default: hash
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`

	// Dimensions of the hash embedder.
	// Default: 256
	Dimensions int `yaml:"dimensions,omitempty"`
}

// StoreConfig selects the prospect store.
type StoreConfig struct {
	// Driver is one of memory, sqlite or rpc.
	// Default: sqlite
	Driver string `yaml:"driver,omitempty"`

	// Path of the sqlite database.
	// Default: prospectmesh.db
	Path string `yaml:"path,omitempty"`
}

// VectorConfig configures index persistence.
type VectorConfig struct {
	// PersistPath is loaded at start and written after each run. Empty keeps
	// the index in memory only.
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// ComplianceConfig configures the suppression list and footers.
type ComplianceConfig struct {
	// SuppressionFile is loaded at start.
	SuppressionFile string `yaml:"suppression_file,omitempty"`

	// Watch reloads SuppressionFile whenever it changes.
	Watch bool `yaml:"watch,omitempty"`

	Sender compliance.Sender `yaml:"sender,omitempty"`
}

// StreamConfig configures the event bus.
type StreamConfig struct {
	// Default: 256
	SubscriberBuffer int `yaml:"subscriber_buffer,omitempty"`

	// ReplayBufferSize keeps the last events of a run for late subscribers.
	ReplayBufferSize int `yaml:"replay_buffer_size,omitempty"`

	// SlowSubscriberTimeout evicts a subscriber that stops reading.
	// Default: 5s
	SlowSubscriberTimeout Duration `yaml:"slow_subscriber_timeout,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Backend is slog (default) or zap.
	Backend string `yaml:"backend,omitempty"`

	// Level is debug, info (default), warn or error.
	Level string `yaml:"level,omitempty"`

	// Format is json (default) or text.
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Addr serves /metrics while a command runs.
	// Default: :9090
	Addr string `yaml:"addr,omitempty"`

	// Default: prospectmesh
	Namespace string `yaml:"namespace,omitempty"`
}

// Load reads .env files, the YAML file at path (optional), applies
// PROSPECTMESH_* overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes a YAML document after expanding ${VAR} references. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	c.Engine.SetDefaults()
	c.Agents.SetDefaults()

	if c.Services.Timeout == 0 {
		c.Services.Timeout = Duration(10 * time.Second)
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "mock"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "hash"
	}
	if c.Embedder.Dimensions == 0 {
		c.Embedder.Dimensions = 256
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "prospectmesh.db"
	}
	if c.Compliance.Sender == (compliance.Sender{}) {
		c.Compliance.Sender = compliance.DefaultSender()
	}
	if c.Stream.SubscriberBuffer == 0 {
		c.Stream.SubscriberBuffer = 256
	}
	if c.Stream.SlowSubscriberTimeout == 0 {
		c.Stream.SlowSubscriberTimeout = Duration(5 * time.Second)
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "slog"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "prospectmesh"
	}
}

// SetDefaults applies the engine defaults.
func (c *EngineConfig) SetDefaults() {
	d := engine.DefaultConfig
	if c.Parallelism == 0 {
		c.Parallelism = d.Parallelism
	}
	if c.MaxStageRetries == nil {
		n := d.MaxStageRetries
		c.MaxStageRetries = &n
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = Duration(d.BackoffInitial)
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = Duration(d.BackoffMax)
	}
	if c.BackoffJitter == 0 {
		c.BackoffJitter = d.BackoffJitterFrac
	}
}

// SetDefaults applies the agent defaults.
func (c *AgentsConfig) SetDefaults() {
	d := agent.DefaultOptions()
	if c.FactTTL == 0 {
		c.FactTTL = Duration(d.FactTTL)
	}
	if c.SimilarityK == 0 {
		c.SimilarityK = d.SimilarityK
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.PartialFacts == "" {
		c.PartialFacts = d.PartialFacts.String()
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = Duration(d.LLMTimeout)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature == nil {
		t := d.Temperature
		c.Temperature = &t
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = d.DuplicateThreshold
	}
	if c.MaxSlots == 0 {
		c.MaxSlots = d.MaxSlots
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Engine.Parallelism < 1 {
		add("engine.parallelism must be at least 1, got %d", c.Engine.Parallelism)
	}
	if c.Engine.MaxStageRetries != nil && *c.Engine.MaxStageRetries < 0 {
		add("engine.max_stage_retries must not be negative")
	}
	if c.Engine.BackoffMax < c.Engine.BackoffInitial {
		add("engine.backoff_max (%s) is below engine.backoff_initial (%s)", c.Engine.BackoffMax, c.Engine.BackoffInitial)
	}
	if c.Engine.BackoffJitter < 0 || c.Engine.BackoffJitter >= 1 {
		add("engine.backoff_jitter must be in [0, 1), got %g", c.Engine.BackoffJitter)
	}
	if _, err := agent.ParsePartialFactsPolicy(c.Agents.PartialFacts); err != nil {
		add("agents.partial_facts: %v", err)
	}
	if c.Agents.MinFitScore < 0 || c.Agents.MinFitScore > 1 {
		add("agents.min_fit_score must be in [0, 1], got %g", c.Agents.MinFitScore)
	}
	if c.Agents.SimilarityThreshold < -1 || c.Agents.SimilarityThreshold > 1 {
		add("agents.similarity_threshold must be in [-1, 1], got %g", c.Agents.SimilarityThreshold)
	}
	if c.Services.RateLimitRPS < 0 {
		add("services.rate_limit_rps must not be negative")
	}

	switch c.LLM.Provider {
	case "mock", "openai", "anthropic", "gemini", "ollama":
	default:
		add("llm.provider %q is not supported", c.LLM.Provider)
	}
	switch c.Embedder.Provider {
	case "hash", "openai", "ollama":
	default:
		add("embedder.provider %q is not supported", c.Embedder.Provider)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "rpc":
		if c.Services.StoreURL == "" {
			add("store.driver rpc requires services.store_url")
		}
	default:
		add("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Compliance.Watch && c.Compliance.SuppressionFile == "" {
		add("compliance.watch requires compliance.suppression_file")
	}
	switch c.Logging.Backend {
	case "slog", "zap":
	default:
		add("logging.backend %q is not supported", c.Logging.Backend)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		add("logging.format %q is not supported", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// EngineConfig converts to the orchestrator tuning.
func (c *Config) EngineConfig() engine.Config {
	retries := engine.DefaultConfig.MaxStageRetries
	if c.Engine.MaxStageRetries != nil {
		retries = *c.Engine.MaxStageRetries
	}
	return engine.Config{
		Parallelism:       c.Engine.Parallelism,
		MaxStageRetries:   retries,
		BackoffInitial:    c.Engine.BackoffInitial.Duration(),
		BackoffMax:        c.Engine.BackoffMax.Duration(),
		BackoffJitterFrac: c.Engine.BackoffJitter,
		StageTimeout:      c.Engine.StageTimeout.Duration(),
		MaxGenerations:    c.Engine.MaxGenerations,
	}
}

// AgentOptions converts to agent chain options. The prompt file, if any, is
// read here.
func (c *Config) AgentOptions() (func(o *agent.Options), error) {
	policy, err := agent.ParsePartialFactsPolicy(c.Agents.PartialFacts)
	if err != nil {
		return nil, err
	}

	var (
		prompt    agent.Instruction
		hasPrompt bool
	)
	if c.Agents.PromptFile != "" {
		data, err := os.ReadFile(c.Agents.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = agent.NewInstructionFromText(string(data))
		hasPrompt = true
	}

	a := c.Agents
	return func(o *agent.Options) {
		o.FactTTL = a.FactTTL.Duration()
		o.SimilarityK = a.SimilarityK
		o.SimilarityThreshold = a.SimilarityThreshold
		o.PartialFacts = policy
		o.MinFitScore = a.MinFitScore
		o.LLMTimeout = a.LLMTimeout.Duration()
		o.MaxTokens = a.MaxTokens
		if a.Temperature != nil {
			o.Temperature = *a.Temperature
		}
		o.DuplicateThreshold = a.DuplicateThreshold
		o.MaxSlots = a.MaxSlots
		if hasPrompt {
			o.Prompt = prompt
		}
	}, nil
}
