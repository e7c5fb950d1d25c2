package config

import "time"

// RetentionConfig controls the cleanup of internal embed_question tasks.
// User-submitted pipeline tasks are never swept; they are deleted only
// explicitly through the API.
type RetentionConfig struct {
	// EmbedTaskTTL is how long terminal embed_question rows are kept.
	EmbedTaskTTL time.Duration `yaml:"embed_task_ttl"`

	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		EmbedTaskTTL:  24 * time.Hour,
		SweepInterval: 1 * time.Hour,
	}
}
