// Package config defines the ragmark configuration surface.
//
// Configuration is an explicit struct loaded once at startup and validated
// before any collaborator is touched. Credentials come in through ${ENV}
// expansion in the YAML file; nothing in the harness reads environment
// variables at first use.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for an evaluation run.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Run     RunConfig     `yaml:"run"`
	Dataset DatasetConfig `yaml:"dataset"`
	Index   IndexConfig   `yaml:"index"`
	Trace   TraceConfig   `yaml:"trace"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation and judge collaborators.
type LLMConfig struct {
	// Provider selects the completion backend: "openai" or "anthropic".
	// When empty the provider is inferred from the model name.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string `yaml:"api_key"`

	// AnthropicAPIKey authenticates against the Anthropic endpoint.
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// BaseURL overrides the OpenAI API base URL (proxies, Azure, local).
	BaseURL string `yaml:"base_url"`

	// Model is the generation model identifier.
	Model string `yaml:"model"`

	// JudgeModel is the model used for groundedness scoring. Defaults to
	// Model when empty.
	JudgeModel string `yaml:"judge_model"`

	// EmbeddingModel is used for query embeddings during retrieval.
	EmbeddingModel string `yaml:"embedding_model"`

	// Temperature is the fixed decoding temperature, captured verbatim in
	// the run snapshot.
	Temperature float32 `yaml:"temperature"`

	// ReasoningEffort is passed through to models that accept it
	// ("minimal", "low", "medium", "high"). Empty means provider default.
	ReasoningEffort string `yaml:"reasoning_effort"`

	// Timeout bounds every individual collaborator call.
	Timeout time.Duration `yaml:"timeout"`
}

// RunConfig controls one evaluation execution.
type RunConfig struct {
	// DatasetName names the labeled dataset to replay.
	DatasetName string `yaml:"dataset"`

	// NamePrefix is prepended to the generated run name.
	NamePrefix string `yaml:"name_prefix"`

	// Description is a human-readable label stored on the RunRecord.
	Description string `yaml:"description"`

	// K is the retrieval depth per question.
	K int `yaml:"k"`

	// Workers bounds concurrent item processing. 1 (the default) matches
	// the single-threaded cooperative model; higher values fan out while
	// preserving dataset order in the recorded output.
	Workers int `yaml:"workers"`

	// ItemTimeout bounds the processing of a single item end to end.
	ItemTimeout time.Duration `yaml:"item_timeout"`

	// ResultsDir receives one JSONL results file per run.
	ResultsDir string `yaml:"results_dir"`
}

// DatasetConfig locates the dataset store.
type DatasetConfig struct {
	// Path is the SQLite database file holding labeled datasets.
	Path string `yaml:"path"`
}

// IndexConfig locates the local retrieval index.
type IndexConfig struct {
	// Path is the SQLite database file holding indexed documents.
	Path string `yaml:"path"`

	// WeightDense and WeightLexical control hybrid score fusion. Zero
	// values fall back to 0.7/0.3.
	WeightDense   float64 `yaml:"weight_dense"`
	WeightLexical float64 `yaml:"weight_lexical"`
}

// TraceConfig configures the trace sink.
type TraceConfig struct {
	// Endpoint is the OTLP gRPC collector endpoint (e.g. "localhost:4317").
	// Empty disables export; records still land in the recovery file.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// ServiceName identifies the harness in exported traces.
	ServiceName string `yaml:"service_name"`

	// Environment tags exported traces (dev, staging, production).
	Environment string `yaml:"environment"`

	// RecoveryPath is the JSONL file that receives records the sink
	// rejected after retries.
	RecoveryPath string `yaml:"recovery_path"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (e.g. ":9464").
	// Empty disables the listener; counters are still maintained.
	Addr string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigError reports a fatal configuration problem. Runs abort before any
// item is processed when validation returns one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns a Config with defaults applied everywhere a zero value
// has a sensible stand-in.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          "gpt-5-nano",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        60 * time.Second,
		},
		Run: RunConfig{
			K:           4,
			Workers:     1,
			ItemTimeout: 2 * time.Minute,
			ResultsDir:  "results",
		},
		Dataset: DatasetConfig{Path: "ragmark.db"},
		Index: IndexConfig{
			Path:          "ragmark-index.db",
			WeightDense:   0.7,
			WeightLexical: 0.3,
		},
		Trace: TraceConfig{
			ServiceName:  "ragmark",
			RecoveryPath: "ragmark-recovery.jsonl",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// ResolveProvider returns the completion provider for this config,
// inferring from the model name when Provider is unset.
func (c *LLMConfig) ResolveProvider() string {
	if p := strings.ToLower(strings.TrimSpace(c.Provider)); p != "" {
		return p
	}
	if strings.HasPrefix(strings.TrimSpace(c.Model), "claude") {
		return "anthropic"
	}
	return "openai"
}

// Validate checks the configuration and returns the first fatal problem
// as a *ConfigError. It must pass before any collaborator is constructed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.Model) == "" {
		return &ConfigError{Field: "llm.model", Reason: "model identifier is required"}
	}
	switch c.LLM.ResolveProvider() {
	case "openai":
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			return &ConfigError{Field: "llm.api_key", Reason: "required for provider openai"}
		}
	case "anthropic":
		if strings.TrimSpace(c.LLM.AnthropicAPIKey) == "" {
			return &ConfigError{Field: "llm.anthropic_api_key", Reason: "required for provider anthropic"}
		}
		// Query embeddings still go through the OpenAI endpoint.
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			return &ConfigError{Field: "llm.api_key", Reason: "required for embeddings"}
		}
	default:
		return &ConfigError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return &ConfigError{Field: "llm.temperature", Reason: "must be in [0, 2]"}
	}
	switch c.LLM.ReasoningEffort {
	case "", "minimal", "low", "medium", "high":
	default:
		return &ConfigError{Field: "llm.reasoning_effort", Reason: "must be one of minimal, low, medium, high"}
	}
	if c.LLM.Timeout <= 0 {
		return &ConfigError{Field: "llm.timeout", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.Run.DatasetName) == "" {
		return &ConfigError{Field: "run.dataset", Reason: "dataset name is required"}
	}
	if c.Run.K <= 0 {
		return &ConfigError{Field: "run.k", Reason: "retrieval depth must be positive"}
	}
	if c.Run.Workers <= 0 {
		return &ConfigError{Field: "run.workers", Reason: "worker bound must be positive"}
	}
	if c.Run.ItemTimeout <= 0 {
		return &ConfigError{Field: "run.item_timeout", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.Dataset.Path) == "" {
		return &ConfigError{Field: "dataset.path", Reason: "store path is required"}
	}
	if strings.TrimSpace(c.Index.Path) == "" {
		return &ConfigError{Field: "index.path", Reason: "index path is required"}
	}
	if c.Index.WeightDense < 0 || c.Index.WeightLexical < 0 {
		return &ConfigError{Field: "index.weights", Reason: "fusion weights must be non-negative"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return &ConfigError{Field: "logging.level", Reason: "must be debug, info, warn or error"}
	}
	return nil
}

// Snapshot returns the run configuration snapshot persisted with every
// item record. Values are captured verbatim for reproducibility.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"model":            c.LLM.Model,
		"judge_model":      c.JudgeModel(),
		"embedding_model":  c.LLM.EmbeddingModel,
		"temperature":      c.LLM.Temperature,
		"reasoning_effort": c.LLM.ReasoningEffort,
		"k_retrieval":      c.Run.K,
		"name_prefix":      c.Run.NamePrefix,
		"workers":          c.Run.Workers,
	}
}

// JudgeModel returns the effective judge model identifier.
func (c *Config) JudgeModel() string {
	if strings.TrimSpace(c.LLM.JudgeModel) != "" {
		return c.LLM.JudgeModel
	}
	return c.LLM.Model
}
