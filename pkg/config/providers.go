package config

import "time"

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"-"` // env only, never from file
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultLLMConfig returns the built-in LLM client defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		Timeout:     120 * time.Second,
	}
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint serving
// the sentence encoder.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"-"` // env only, never from file
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultEmbeddingConfig returns the built-in encoder defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		BaseURL:    "http://localhost:8081/v1",
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
		BatchSize:  32,
		Timeout:    60 * time.Second,
	}
}

// STTConfig points at a speech-to-text service exposing a transcription
// endpoint over HTTP.
type STTConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Device and ComputeType are forwarded to the STT service as hints.
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`

	// VADFilter enables voice-activity filtering.
	VADFilter bool `yaml:"vad_filter"`

	Timeout time.Duration `yaml:"timeout"`
}

// DefaultSTTConfig returns the built-in speech-to-text defaults.
func DefaultSTTConfig() *STTConfig {
	return &STTConfig{
		BaseURL:     "http://localhost:8082",
		Model:       "large-v3",
		Device:      "gpu",
		ComputeType: "float16",
		VADFilter:   true,
		Timeout:     30 * time.Minute,
	}
}

// RAGConfig holds retrieval and answer-path tuning.
type RAGConfig struct {
	// TopK is the default number of chunks retrieved.
	TopK int `yaml:"top_k"`

	// VectorWeight and TextWeight blend the two rankings.
	VectorWeight float64 `yaml:"vector_weight"`
	TextWeight   float64 `yaml:"text_weight"`

	// EmbedWaitPollInterval and EmbedWaitTimeout bound the wait for the
	// worker-computed question embedding.
	EmbedWaitPollInterval time.Duration `yaml:"embed_wait_poll_interval"`
	EmbedWaitTimeout      time.Duration `yaml:"embed_wait_timeout"`

	// MaxVideosPerChat caps how many channel videos a chat draws when the
	// caller does not restrict them.
	MaxVideosPerChat int `yaml:"max_videos_per_chat"`

	// MaxSummariesPerVideo caps the per-video summaries fed to the
	// cross-video answer path.
	MaxSummariesPerVideo int `yaml:"max_summaries_per_video"`

	// ChatContextMessages is how many recent messages are folded into the
	// answer prompt.
	ChatContextMessages int `yaml:"chat_context_messages"`
}

// DefaultRAGConfig returns the built-in RAG defaults.
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		TopK:                  8,
		VectorWeight:          0.7,
		TextWeight:            0.3,
		EmbedWaitPollInterval: 200 * time.Millisecond,
		EmbedWaitTimeout:      30 * time.Second,
		MaxVideosPerChat:      200,
		MaxSummariesPerVideo:  20,
		ChatContextMessages:   6,
	}
}
