// Package config loads and validates application configuration.
//
// Precedence, lowest to highest: built-in defaults < vodrag.yaml < environment
// variables. Runtime-tunable values (RAG weights, chunking parameters) are
// additionally seeded into the settings table on first boot and read from
// there afterwards.
package config

import (
	"fmt"
	"log/slog"
)

// Config is the root configuration shared by the API and the worker.
type Config struct {
	Queue     *QueueConfig     `yaml:"queue"`
	Pipeline  *PipelineConfig  `yaml:"pipeline"`
	Media     *MediaConfig     `yaml:"media"`
	LLM       *LLMConfig       `yaml:"llm"`
	Embedding *EmbeddingConfig `yaml:"embedding"`
	STT       *STTConfig       `yaml:"stt"`
	RAG       *RAGConfig       `yaml:"rag"`
	Retention *RetentionConfig `yaml:"retention"`
}

// Initialize loads, merges, and validates configuration from configDir.
// A missing vodrag.yaml is not an error — defaults plus environment apply.
func Initialize(configDir string) (*Config, error) {
	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.TargetTokens <= 0 {
		return fmt.Errorf("pipeline.target_tokens must be positive, got %d", c.Pipeline.TargetTokens)
	}
	if c.Pipeline.OverlapTokens < 0 || c.Pipeline.OverlapTokens >= c.Pipeline.TargetTokens {
		return fmt.Errorf("pipeline.overlap_tokens must be in [0, target_tokens), got %d", c.Pipeline.OverlapTokens)
	}
	if c.Pipeline.AvgCharsPerToken <= 0 {
		return fmt.Errorf("pipeline.avg_chars_per_token must be positive, got %d", c.Pipeline.AvgCharsPerToken)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if w := c.RAG.VectorWeight + c.RAG.TextWeight; w <= 0 {
		return fmt.Errorf("rag weights must sum to a positive value, got %f", w)
	}
	return nil
}

// sensitiveEnvKeys are never logged in the boot summary.
var sensitiveEnvKeys = map[string]bool{
	"OPENAI_API_KEY": true,
	"DATABASE_URL":   true,
}

// Redact masks a value for logging unless the key is known to be safe.
func Redact(key, value string) string {
	if !sensitiveEnvKeys[key] {
		return value
	}
	if value == "" {
		return ""
	}
	return "********"
}

// LogSummary logs the effective configuration at startup with sensitive
// values masked.
func (c *Config) LogSummary(component string) {
	slog.Info("Configuration loaded",
		"component", component,
		"poll_interval", c.Queue.PollInterval,
		"listen_timeout", c.Queue.ListenTimeout,
		"target_tokens", c.Pipeline.TargetTokens,
		"overlap_tokens", c.Pipeline.OverlapTokens,
		"embedding_model", c.Embedding.Model,
		"embedding_dimensions", c.Embedding.Dimensions,
		"llm_model", c.LLM.Model,
		"llm_api_key", Redact("OPENAI_API_KEY", c.LLM.APIKey),
		"rag_top_k", c.RAG.TopK,
		"rag_vector_weight", c.RAG.VectorWeight,
		"rag_text_weight", c.RAG.TextWeight,
	)
}
