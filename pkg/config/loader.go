package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the optional override file inside the config directory.
const configFileName = "vodrag.yaml"

// load builds the Config from defaults, the optional YAML file, and
// environment variable overrides, in that order.
func load(configDir string) (*Config, error) {
	cfg := &Config{
		Queue:     DefaultQueueConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Media:     DefaultMediaConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		STT:       DefaultSTTConfig(),
		RAG:       DefaultRAGConfig(),
		Retention: DefaultRetentionConfig(),
	}

	if configDir != "" {
		fileCfg, err := loadYAML(filepath.Join(configDir, configFileName))
		if err != nil {
			return nil, err
		}
		if fileCfg != nil {
			// Non-zero file values override defaults, section by section.
			if err := mergeSections(cfg, fileCfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadYAML reads the override file. A missing file returns (nil, nil).
func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return &fileCfg, nil
}

func mergeSections(dst, src *Config) error {
	sections := []struct {
		name string
		dst  any
		src  any
	}{
		{"queue", dst.Queue, src.Queue},
		{"pipeline", dst.Pipeline, src.Pipeline},
		{"media", dst.Media, src.Media},
		{"llm", dst.LLM, src.LLM},
		{"embedding", dst.Embedding, src.Embedding},
		{"stt", dst.STT, src.STT},
		{"rag", dst.RAG, src.RAG},
		{"retention", dst.Retention, src.Retention},
	}
	for _, s := range sections {
		if isNilSection(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}
	return nil
}

func isNilSection(v any) bool {
	switch s := v.(type) {
	case *QueueConfig:
		return s == nil
	case *PipelineConfig:
		return s == nil
	case *MediaConfig:
		return s == nil
	case *LLMConfig:
		return s == nil
	case *EmbeddingConfig:
		return s == nil
	case *STTConfig:
		return s == nil
	case *RAGConfig:
		return s == nil
	case *RetentionConfig:
		return s == nil
	}
	return v == nil
}

// applyEnvOverrides applies deploy-critical environment variables on top of
// the merged configuration.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.Model, "OPENAI_MODEL")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE")
	setString(&cfg.STT.BaseURL, "STT_BASE_URL")
	setString(&cfg.STT.Model, "WHISPER_MODEL_SIZE")
	setString(&cfg.STT.Device, "WHISPER_DEVICE")
	setString(&cfg.STT.ComputeType, "WHISPER_COMPUTE_TYPE")
	setString(&cfg.Pipeline.AudioDir, "AUDIO_DIR")
	setInt(&cfg.Queue.WorkerCount, "WORKER_COUNT")
	setDuration(&cfg.Queue.PollInterval, "WORKER_POLL_INTERVAL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
