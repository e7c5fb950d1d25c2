package services

import (
	"strconv"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/models"
)

// DefaultBackendSettings returns the API component's seed rows, with values
// drawn from the static config so the first boot mirrors it.
func DefaultBackendSettings(cfg *config.Config) []models.Setting {
	return []models.Setting{
		intSetting("rag", "rag_top_k", cfg.RAG.TopK, "Backend RAG top k"),
		floatSetting("rag", "rag_text_weight", cfg.RAG.TextWeight, "Backend RAG text weight"),
		floatSetting("rag", "rag_vector_weight", cfg.RAG.VectorWeight, "Backend RAG vector weight"),
		stringSetting("llm", "llm_model", cfg.LLM.Model, "Backend LLM model"),
	}
}

// DefaultWorkerSettings returns the worker component's seed rows.
func DefaultWorkerSettings(cfg *config.Config) []models.Setting {
	return []models.Setting{
		stringSetting("transcribing", "whisper_compute_type", cfg.STT.ComputeType, ""),
		stringSetting("transcribing", "whisper_device", cfg.STT.Device, ""),
		stringSetting("embedding", "embedding_model", cfg.Embedding.Model, ""),
		intSetting("embedding", "embedding_batch_size", cfg.Embedding.BatchSize, ""),
		intSetting("chunking", "target_tokens", cfg.Pipeline.TargetTokens, ""),
		intSetting("chunking", "overlap_tokens", cfg.Pipeline.OverlapTokens, ""),
		intSetting("chunking", "avg_chars_per_token", cfg.Pipeline.AvgCharsPerToken, ""),
	}
}

func intSetting(section, key string, value int, description string) models.Setting {
	return seedSetting(section, key, strconv.Itoa(value), models.SettingTypeInt, description)
}

func floatSetting(section, key string, value float64, description string) models.Setting {
	return seedSetting(section, key, strconv.FormatFloat(value, 'g', -1, 64), models.SettingTypeFloat, description)
}

func stringSetting(section, key, value, description string) models.Setting {
	return seedSetting(section, key, value, models.SettingTypeString, description)
}

func seedSetting(section, key, value, valueType, description string) models.Setting {
	st := models.Setting{
		Section:   section,
		Key:       key,
		Value:     value,
		ValueType: valueType,
	}
	if description != "" {
		st.Description = &description
	}
	return st
}
