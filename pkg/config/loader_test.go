package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every environment variable the loader reads so the
// surrounding environment cannot leak into assertions.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"EMBEDDING_BASE_URL", "EMBEDDING_MODEL", "EMBEDDING_BATCH_SIZE",
		"STT_BASE_URL", "WHISPER_MODEL_SIZE", "WHISPER_DEVICE", "WHISPER_COMPUTE_TYPE",
		"AUDIO_DIR", "WORKER_COUNT", "WORKER_POLL_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestInitializeDefaults(t *testing.T) {
	clearConfigEnv(t)

	// An empty config dir and no config dir at all both yield pure defaults.
	for _, dir := range []string{"", t.TempDir()} {
		cfg, err := Initialize(dir)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 1, cfg.Queue.WorkerCount)
		assert.Equal(t, 5*time.Second, cfg.Queue.PollInterval)
		assert.Equal(t, 512, cfg.Pipeline.TargetTokens)
		assert.Equal(t, 100, cfg.Pipeline.OverlapTokens)
		assert.Equal(t, "es", cfg.Pipeline.Language)
		assert.Equal(t, 384, cfg.Embedding.Dimensions)
		assert.Equal(t, 32, cfg.Embedding.BatchSize)
		assert.Equal(t, 8, cfg.RAG.TopK)
		assert.InDelta(t, 0.7, cfg.RAG.VectorWeight, 1e-9)
		assert.InDelta(t, 0.3, cfg.RAG.TextWeight, 1e-9)
		assert.Equal(t, 24*time.Hour, cfg.Retention.EmbedTaskTTL)
	}
}

func TestInitializeYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)
	configDir := t.TempDir()

	override := `
pipeline:
  target_tokens: 256
  overlap_tokens: 64
rag:
  vector_weight: 0.5
  text_weight: 0.5
queue:
  worker_count: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "vodrag.yaml"), []byte(override), 0644))

	cfg, err := Initialize(configDir)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Pipeline.TargetTokens)
	assert.Equal(t, 64, cfg.Pipeline.OverlapTokens)
	assert.InDelta(t, 0.5, cfg.RAG.VectorWeight, 1e-9)
	assert.Equal(t, 3, cfg.Queue.WorkerCount)

	// Untouched fields in overridden sections keep their defaults.
	assert.Equal(t, 4, cfg.Pipeline.AvgCharsPerToken)
	assert.Equal(t, 5*time.Second, cfg.Queue.PollInterval)
	// Sections absent from the file stay at defaults entirely.
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
}

func TestInitializeEnvBeatsFile(t *testing.T) {
	clearConfigEnv(t)
	configDir := t.TempDir()

	override := `
embedding:
  model: "from-file"
queue:
  worker_count: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "vodrag.yaml"), []byte(override), 0644))

	t.Setenv("EMBEDDING_MODEL", "from-env")
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("WORKER_POLL_INTERVAL", "10s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Initialize(configDir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Embedding.Model)
	assert.Equal(t, 7, cfg.Queue.WorkerCount)
	assert.Equal(t, 10*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestInitializeInvalidYAML(t *testing.T) {
	clearConfigEnv(t)
	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "vodrag.yaml"), []byte("{{{"), 0644))

	_, err := Initialize(configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeValidationFailure(t *testing.T) {
	clearConfigEnv(t)
	configDir := t.TempDir()

	// Overlap must stay below the chunk target.
	bad := `
pipeline:
  target_tokens: 100
  overlap_tokens: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "vodrag.yaml"), []byte(bad), 0644))

	_, err := Initialize(configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "overlap_tokens")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "********", Redact("OPENAI_API_KEY", "sk-secret"))
	assert.Equal(t, "", Redact("OPENAI_API_KEY", ""))
	assert.Equal(t, "visible", Redact("WORKER_COUNT", "visible"))
}
