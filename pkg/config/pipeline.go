package config

// PipelineConfig controls the per-video processing stages.
type PipelineConfig struct {
	// AudioDir is where downloaded WAV files are written.
	AudioDir string `yaml:"audio_dir"`

	// Language is the transcription language hint.
	Language string `yaml:"language"`

	// TargetTokens is the estimated token budget of one chunk.
	TargetTokens int `yaml:"target_tokens"`

	// OverlapTokens is the estimated token overlap carried between
	// consecutive chunks.
	OverlapTokens int `yaml:"overlap_tokens"`

	// AvgCharsPerToken converts character counts to token estimates.
	AvgCharsPerToken int `yaml:"avg_chars_per_token"`

	// EmbedBatchSize is how many chunks are encoded per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		AudioDir:         "data/audio",
		Language:         "es",
		TargetTokens:     512,
		OverlapTokens:    100,
		AvgCharsPerToken: 4,
		EmbedBatchSize:   32,
	}
}
