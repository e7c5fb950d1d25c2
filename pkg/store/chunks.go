package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mediateca/vodrag/pkg/models"
)

// SearchTarget selects which index pair hybrid search runs against.
type SearchTarget string

const (
	// SearchTargetChunks searches the raw transcript text and its embedding.
	SearchTargetChunks SearchTarget = "chunks"
	// SearchTargetSummaries searches the chunk summaries and their embedding.
	SearchTargetSummaries SearchTarget = "summaries"
)

// columns returns the vector and tsvector column pair for the target.
func (t SearchTarget) columns() (vcol, tcol string) {
	if t == SearchTargetSummaries {
		return "summary_embedding", "summary_search_vector"
	}
	return "embedding", "search_vector"
}

// SearchParams parameterizes one hybrid search.
type SearchParams struct {
	QueryVector  []float32
	Query        string
	TopK         int
	VectorWeight float64
	TextWeight   float64
	Target       SearchTarget
	VideoIDs     []string
}

// ScoredChunk is a chunk with its hybrid relevance score.
type ScoredChunk struct {
	models.Chunk
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`
	Score       float64 `json:"score"`
}

// ChunkEmbedding pairs a chunk with its freshly computed vectors. The summary
// vector is nil for chunks without a summary and leaves the column untouched.
type ChunkEmbedding struct {
	ChunkID          int64
	Embedding        pgvector.Vector
	SummaryEmbedding *pgvector.Vector
}

// ChunkStore persists chunks, their vectors, and runs hybrid search.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore creates a ChunkStore using an existing pool.
func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// Replace swaps the video's chunk sequence in one transaction: all existing
// chunks for the video are deleted, then the new sequence is inserted.
// Rerunning the chunk stage therefore converges instead of accumulating.
func (s *ChunkStore) Replace(ctx context.Context, videoID string, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (video_id, chunk_index, start_time, end_time, text, summary)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			videoID, c.ChunkIndex, c.StartTime, c.EndTime, c.Text, c.Summary)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// PendingEmbedding returns chunks still missing a vector, optionally
// restricted to a set of videos. A summary vector is only expected for
// chunks that have a summary; unsummarized chunks stop being pending
// once their text vector is stored.
func (s *ChunkStore) PendingEmbedding(ctx context.Context, videoIDs []string) ([]models.Chunk, error) {
	const pendingCond = `embedding IS NULL OR (summary IS NOT NULL AND summary_embedding IS NULL)`

	var (
		rows pgx.Rows
		err  error
	)
	if len(videoIDs) > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT id, video_id, chunk_index, start_time, end_time, text, summary
			 FROM chunks
			 WHERE (`+pendingCond+`) AND video_id = ANY($1)
			 ORDER BY video_id, chunk_index`,
			videoIDs)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, video_id, chunk_index, start_time, end_time, text, summary
			 FROM chunks
			 WHERE `+pendingCond+`
			 ORDER BY video_id, chunk_index`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// UpdateEmbeddings writes one batch of vectors in a single transaction, so a
// failed batch leaves no partially embedded rows behind.
func (s *ChunkStore) UpdateEmbeddings(ctx context.Context, batch []ChunkEmbedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin embedding transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, e := range batch {
		if e.SummaryEmbedding != nil {
			_, err = tx.Exec(ctx,
				`UPDATE chunks SET embedding = $2, summary_embedding = $3 WHERE id = $1`,
				e.ChunkID, e.Embedding, *e.SummaryEmbedding)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE chunks SET embedding = $2 WHERE id = $1`,
				e.ChunkID, e.Embedding)
		}
		if err != nil {
			return fmt.Errorf("failed to update chunk embedding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// VideoSummaries returns up to perVideo summarized chunks per video, ordered
// by position within each video.
func (s *ChunkStore) VideoSummaries(ctx context.Context, videoIDs []string, perVideo int) ([]models.Chunk, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, chunk_index, start_time, end_time, text, summary
		 FROM (
		     SELECT id, video_id, chunk_index, start_time, end_time, text, summary,
		            row_number() OVER (PARTITION BY video_id ORDER BY chunk_index) AS rn
		     FROM chunks
		     WHERE video_id = ANY($1) AND summary IS NOT NULL AND summary <> ''
		 ) ranked
		 WHERE rn <= $2
		 ORDER BY video_id, chunk_index`,
		videoIDs, perVideo)
	if err != nil {
		return nil, fmt.Errorf("failed to list video summaries: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// HybridSearch runs weighted vector+text retrieval over the chunks of the
// given videos and returns the top K results by combined score.
//
// The vector candidates are the K nearest rows by L2 distance; the text
// candidates are the K best rows by Spanish full-text rank. Both sets are
// joined on chunk id and scored as
//
//	vector_weight*(1-distance) + text_weight*rank
//
// with a missing side contributing zero. An empty video set returns no
// results without querying; an empty query vector degrades to text-only
// search.
func (s *ChunkStore) HybridSearch(ctx context.Context, p SearchParams) ([]ScoredChunk, error) {
	if len(p.VideoIDs) == 0 {
		return nil, nil
	}

	vcol, tcol := p.Target.columns()

	var (
		rows pgx.Rows
		err  error
	)
	if len(p.QueryVector) > 0 {
		query := fmt.Sprintf(`
			WITH vector_results AS (
			    SELECT id, video_id, chunk_index, start_time, end_time, text, summary,
			           (%[1]s <-> $1)::float8 AS distance
			    FROM chunks
			    WHERE video_id = ANY($2) AND %[1]s IS NOT NULL
			    ORDER BY %[1]s <-> $1
			    LIMIT $3
			), text_results AS (
			    SELECT id, video_id, chunk_index, start_time, end_time, text, summary,
			           ts_rank(%[2]s, plainto_tsquery('spanish', $4))::float8 AS rank
			    FROM chunks
			    WHERE video_id = ANY($2) AND %[2]s @@ plainto_tsquery('spanish', $4)
			    ORDER BY rank DESC
			    LIMIT $3
			)
			SELECT COALESCE(v.id, t.id),
			       COALESCE(v.video_id, t.video_id),
			       COALESCE(v.chunk_index, t.chunk_index),
			       COALESCE(v.start_time, t.start_time),
			       COALESCE(v.end_time, t.end_time),
			       COALESCE(v.text, t.text),
			       COALESCE(v.summary, t.summary),
			       v.distance, t.rank
			FROM vector_results v
			FULL OUTER JOIN text_results t ON v.id = t.id`, vcol, tcol)

		rows, err = s.pool.Query(ctx, query,
			pgvector.NewVector(p.QueryVector), p.VideoIDs, p.TopK, p.Query)
	} else {
		query := fmt.Sprintf(`
			SELECT id, video_id, chunk_index, start_time, end_time, text, summary,
			       NULL::float8 AS distance,
			       ts_rank(%[1]s, plainto_tsquery('spanish', $2))::float8 AS rank
			FROM chunks
			WHERE video_id = ANY($1) AND %[1]s @@ plainto_tsquery('spanish', $2)
			ORDER BY rank DESC
			LIMIT $3`, tcol)

		rows, err = s.pool.Query(ctx, query, p.VideoIDs, p.Query, p.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run hybrid search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var (
			sc       ScoredChunk
			distance *float64
			rank     *float64
		)
		err := rows.Scan(&sc.ID, &sc.VideoID, &sc.ChunkIndex, &sc.StartTime,
			&sc.EndTime, &sc.Text, &sc.Summary, &distance, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if distance != nil {
			sc.VectorScore = 1 - *distance
		}
		if rank != nil {
			sc.TextScore = *rank
		}
		sc.Score = p.VectorWeight*sc.VectorScore + p.TextWeight*sc.TextScore
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > p.TopK {
		results = results[:p.TopK]
	}
	return results, nil
}

func collectChunks(rows pgx.Rows) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		err := rows.Scan(&c.ID, &c.VideoID, &c.ChunkIndex, &c.StartTime,
			&c.EndTime, &c.Text, &c.Summary)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
