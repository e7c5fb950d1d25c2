package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

const channelColumns = `id, name, url, created_at, updated_at`

// ChannelStore persists channels.
type ChannelStore struct {
	pool *pgxpool.Pool
}

// NewChannelStore creates a ChannelStore using an existing pool.
func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

// Create inserts a new channel. A duplicate URL surfaces as a unique
// violation (check with IsUniqueViolation).
func (s *ChannelStore) Create(ctx context.Context, name, url string) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`INSERT INTO channels (name, url)
		 VALUES ($1, $2)
		 RETURNING `+channelColumns,
		name, url,
	).Scan(&ch.ID, &ch.Name, &ch.URL, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return &ch, nil
}

// GetOrCreate returns the channel with the given URL, inserting it first if
// unseen. The no-op conflict update makes RETURNING work on both paths.
func (s *ChannelStore) GetOrCreate(ctx context.Context, name, url string) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`INSERT INTO channels (name, url)
		 VALUES ($1, $2)
		 ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
		 RETURNING `+channelColumns,
		name, url,
	).Scan(&ch.ID, &ch.Name, &ch.URL, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create channel: %w", err)
	}
	return &ch, nil
}

// Get returns a channel by ID.
func (s *ChannelStore) Get(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.Name, &ch.URL, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &ch, nil
}

// GetStats returns a channel together with its video counters.
func (s *ChannelStore) GetStats(ctx context.Context, id int64) (*models.ChannelStats, error) {
	var st models.ChannelStats
	err := s.pool.QueryRow(ctx,
		`SELECT c.id, c.name, c.url, c.created_at, c.updated_at,
		        count(v.video_id),
		        count(v.video_id) FILTER (WHERE v.downloaded),
		        count(v.video_id) FILTER (WHERE v.transcribed)
		 FROM channels c
		 LEFT JOIN videos v ON v.channel_id = c.id
		 WHERE c.id = $1
		 GROUP BY c.id`,
		id,
	).Scan(&st.ID, &st.Name, &st.URL, &st.CreatedAt, &st.UpdatedAt,
		&st.VideoCount, &st.DownloadedCount, &st.TranscribedCount)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}
	return &st, nil
}

// List returns channels ordered by creation time.
func (s *ChannelStore) List(ctx context.Context, skip, limit int) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+`
		 FROM channels
		 ORDER BY created_at ASC
		 OFFSET $1 LIMIT $2`,
		skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// UpdateName renames a channel.
func (s *ChannelStore) UpdateName(ctx context.Context, id int64, name string) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`UPDATE channels SET name = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+channelColumns,
		id, name,
	).Scan(&ch.ID, &ch.Name, &ch.URL, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update channel: %w", err)
	}
	return &ch, nil
}

// Delete removes a channel and, via cascade, its videos, segments, and chunks.
// Returns pgx.ErrNoRows when it does not exist.
func (s *ChannelStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
