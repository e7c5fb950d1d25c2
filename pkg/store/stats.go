package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

// StatsStore aggregates library-wide pipeline counters.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a StatsStore using an existing pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// PipelineStats returns the ingestion counters across the whole library.
func (s *StatsStore) PipelineStats(ctx context.Context) (*models.PipelineStats, error) {
	var st models.PipelineStats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM channels),
		        (SELECT count(*) FROM videos),
		        (SELECT count(*) FROM videos WHERE downloaded),
		        (SELECT count(*) FROM videos WHERE transcribed),
		        (SELECT count(*) FROM chunks),
		        (SELECT count(*) FROM chunks WHERE embedding IS NOT NULL)`,
	).Scan(&st.TotalChannels, &st.TotalVideos, &st.VideosDownloaded,
		&st.VideosTranscribed, &st.TotalChunks, &st.ChunksEmbedded)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline stats: %w", err)
	}
	return &st, nil
}
