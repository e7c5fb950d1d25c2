package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/store"
)

// RetrieverService runs hybrid search with the component's tuned weights.
// Weights and top_k are read from the runtime settings on every call so
// operator edits take effect without a restart; the static config supplies
// the fallbacks.
type RetrieverService struct {
	chunks   *store.ChunkStore
	settings *SettingsService
	cfg      *config.RAGConfig
}

// NewRetrieverService creates a new RetrieverService.
func NewRetrieverService(chunks *store.ChunkStore, settings *SettingsService, cfg *config.RAGConfig) *RetrieverService {
	return &RetrieverService{chunks: chunks, settings: settings, cfg: cfg}
}

// Search returns the top chunks for the query over the given videos,
// blending vector and full-text rankings. An empty video set yields no
// results; an empty query vector degrades to text-only search.
func (s *RetrieverService) Search(httpCtx context.Context, query string, queryVector []float32, videoIDs []string, target store.SearchTarget) ([]store.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewValidationError("query", "required")
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	params := store.SearchParams{
		QueryVector:  queryVector,
		Query:        query,
		TopK:         s.settings.IntSetting(ctx, ComponentBackend, "rag", "rag_top_k", s.cfg.TopK),
		VectorWeight: s.settings.FloatSetting(ctx, ComponentBackend, "rag", "rag_vector_weight", s.cfg.VectorWeight),
		TextWeight:   s.settings.FloatSetting(ctx, ComponentBackend, "rag", "rag_text_weight", s.cfg.TextWeight),
		Target:       target,
		VideoIDs:     videoIDs,
	}
	if params.TopK < 1 {
		params.TopK = s.cfg.TopK
	}

	results, err := s.chunks.HybridSearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return results, nil
}
