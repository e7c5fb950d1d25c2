package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

const videoColumns = `video_id, channel_id, title, description, published_at, duration, audio_path, downloaded, transcribed, created_at`

// VideoStore persists videos and their transcript segments.
type VideoStore struct {
	pool *pgxpool.Pool
}

// NewVideoStore creates a VideoStore using an existing pool.
func NewVideoStore(pool *pgxpool.Pool) *VideoStore {
	return &VideoStore{pool: pool}
}

// Insert registers a video, skipping silently when the video_id already
// exists. Returns true when a new row was created.
func (s *VideoStore) Insert(ctx context.Context, v *models.Video) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO videos (video_id, channel_id, title, description, published_at, duration)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (video_id) DO NOTHING`,
		v.VideoID, v.ChannelID, v.Title, v.Description, v.PublishedAt, v.Duration)
	if err != nil {
		return false, fmt.Errorf("failed to insert video: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns a video by ID.
func (s *VideoStore) Get(ctx context.Context, videoID string) (*models.Video, error) {
	v, err := scanVideo(s.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, videoID))
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// GetDetail returns a video together with its chunk and segment counts.
func (s *VideoStore) GetDetail(ctx context.Context, videoID string) (*models.VideoDetail, error) {
	var d models.VideoDetail
	err := s.pool.QueryRow(ctx,
		`SELECT `+videoColumns+`,
		        (SELECT count(*) FROM chunks WHERE video_id = $1),
		        (SELECT count(*) FROM segments WHERE video_id = $1)
		 FROM videos WHERE video_id = $1`,
		videoID,
	).Scan(&d.VideoID, &d.ChannelID, &d.Title, &d.Description, &d.PublishedAt,
		&d.Duration, &d.AudioPath, &d.Downloaded, &d.Transcribed, &d.CreatedAt,
		&d.ChunkCount, &d.SegmentCount)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get video detail: %w", err)
	}
	return &d, nil
}

// List returns videos, optionally restricted to a channel. Channel listings
// are ordered by publication date, newest first.
func (s *VideoStore) List(ctx context.Context, channelID *int64, skip, limit int) ([]models.Video, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if channelID != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+videoColumns+`
			 FROM videos WHERE channel_id = $1
			 ORDER BY published_at DESC NULLS LAST
			 OFFSET $2 LIMIT $3`,
			*channelID, skip, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+videoColumns+`
			 FROM videos
			 ORDER BY created_at DESC
			 OFFSET $1 LIMIT $2`,
			skip, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// PendingDownload returns videos not yet downloaded, optionally restricted to
// a channel.
func (s *VideoStore) PendingDownload(ctx context.Context, channelID *int64) ([]models.Video, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if channelID != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+videoColumns+`
			 FROM videos WHERE NOT downloaded AND channel_id = $1
			 ORDER BY created_at ASC`,
			*channelID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+videoColumns+`
			 FROM videos WHERE NOT downloaded
			 ORDER BY created_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending downloads: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// PendingTranscription returns downloaded videos without a transcript yet.
func (s *VideoStore) PendingTranscription(ctx context.Context) ([]models.Video, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+videoColumns+`
		 FROM videos WHERE downloaded AND NOT transcribed
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transcriptions: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// MarkDownloaded records the audio file location and flips downloaded.
func (s *VideoStore) MarkDownloaded(ctx context.Context, videoID, audioPath string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE videos SET audio_path = $2, downloaded = TRUE WHERE video_id = $1`,
		videoID, audioPath)
	if err != nil {
		return fmt.Errorf("failed to mark video downloaded: %w", err)
	}
	return nil
}

// SaveTranscript replaces the video's segments and flips transcribed in one
// transaction, so a transcript is either fully visible or not at all.
func (s *VideoStore) SaveTranscript(ctx context.Context, videoID string, segments []models.Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transcript transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("failed to delete old segments: %w", err)
	}

	for _, seg := range segments {
		_, err := tx.Exec(ctx,
			`INSERT INTO segments (video_id, start_time, end_time, text)
			 VALUES ($1, $2, $3, $4)`,
			videoID, seg.StartTime, seg.EndTime, seg.Text)
		if err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE videos SET transcribed = TRUE WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("failed to mark video transcribed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}
	return nil
}

// Segments returns the video's transcript ordered by start time.
func (s *VideoStore) Segments(ctx context.Context, videoID string) ([]models.Segment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, start_time, end_time, text
		 FROM segments WHERE video_id = $1
		 ORDER BY start_time ASC, id ASC`,
		videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var seg models.Segment
		if err := rows.Scan(&seg.ID, &seg.VideoID, &seg.StartTime, &seg.EndTime, &seg.Text); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ChatVideoIDs resolves the videos a chat may retrieve from: the requested
// IDs that actually belong to the channel, or, when none were requested, the
// channel's most recent videos up to limit.
func (s *VideoStore) ChatVideoIDs(ctx context.Context, channelID int64, videoIDs []string, limit int) ([]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(videoIDs) > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT video_id FROM videos
			 WHERE channel_id = $1 AND video_id = ANY($2)
			 ORDER BY published_at DESC NULLS LAST`,
			channelID, videoIDs)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT video_id FROM videos
			 WHERE channel_id = $1
			 ORDER BY published_at DESC NULLS LAST
			 LIMIT $2`,
			channelID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chat videos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan video id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.VideoID, &v.ChannelID, &v.Title, &v.Description,
		&v.PublishedAt, &v.Duration, &v.AudioPath, &v.Downloaded, &v.Transcribed, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVideos(rows pgx.Rows) ([]models.Video, error) {
	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}
