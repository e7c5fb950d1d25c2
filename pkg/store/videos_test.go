package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/models"
)

func TestInsertVideoIsIdempotent(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")

	duration := 600
	published := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	v := &models.Video{
		VideoID:     "vid1",
		ChannelID:   ch.ID,
		Title:       "Primer video",
		Description: "descripción",
		PublishedAt: &published,
		Duration:    &duration,
	}

	created, err := stores.Videos.Insert(ctx, v)
	require.NoError(t, err)
	assert.True(t, created)

	// Re-ingesting the same playlist entry is a no-op.
	created, err = stores.Videos.Insert(ctx, v)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := stores.Videos.Get(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "Primer video", got.Title)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 600, *got.Duration)
	assert.False(t, got.Downloaded)
	assert.False(t, got.Transcribed)
}

func TestPendingDownloadAndTranscription(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")
	createTestVideo(ctx, t, stores, ch.ID, "vid2")

	pending, err := stores.Videos.PendingDownload(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, stores.Videos.MarkDownloaded(ctx, "vid1", "/data/audio/vid1.wav"))

	pending, err = stores.Videos.PendingDownload(ctx, &ch.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "vid2", pending[0].VideoID)

	transcribable, err := stores.Videos.PendingTranscription(ctx)
	require.NoError(t, err)
	require.Len(t, transcribable, 1)
	assert.Equal(t, "vid1", transcribable[0].VideoID)

	got, err := stores.Videos.Get(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, got.Downloaded)
	require.NotNil(t, got.AudioPath)
	assert.Equal(t, "/data/audio/vid1.wav", *got.AudioPath)
}

func TestSaveTranscriptReplacesSegments(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")

	first := []models.Segment{
		{VideoID: "vid1", StartTime: 0, EndTime: 4.5, Text: "hola a todos"},
		{VideoID: "vid1", StartTime: 4.5, EndTime: 9, Text: "bienvenidos al canal"},
	}
	require.NoError(t, stores.Videos.SaveTranscript(ctx, "vid1", first))

	got, err := stores.Videos.Get(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, got.Transcribed)

	// A rerun replaces the transcript instead of appending to it.
	second := []models.Segment{
		{VideoID: "vid1", StartTime: 0, EndTime: 5, Text: "nueva transcripción"},
	}
	require.NoError(t, stores.Videos.SaveTranscript(ctx, "vid1", second))

	segments, err := stores.Videos.Segments(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "nueva transcripción", segments[0].Text)
	assert.Equal(t, 0.0, segments[0].StartTime)
	assert.Equal(t, 5.0, segments[0].EndTime)
}

func TestSegmentsOrderedByStartTime(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")

	segments := []models.Segment{
		{VideoID: "vid1", StartTime: 10, EndTime: 15, Text: "tercero"},
		{VideoID: "vid1", StartTime: 0, EndTime: 5, Text: "primero"},
		{VideoID: "vid1", StartTime: 5, EndTime: 10, Text: "segundo"},
	}
	require.NoError(t, stores.Videos.SaveTranscript(ctx, "vid1", segments))

	got, err := stores.Videos.Segments(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "primero", got[0].Text)
	assert.Equal(t, "segundo", got[1].Text)
	assert.Equal(t, "tercero", got[2].Text)
}

func TestVideoDetailCounts(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")

	require.NoError(t, stores.Videos.SaveTranscript(ctx, "vid1", []models.Segment{
		{VideoID: "vid1", StartTime: 0, EndTime: 5, Text: "hola"},
		{VideoID: "vid1", StartTime: 5, EndTime: 10, Text: "mundo"},
	}))
	require.NoError(t, stores.Chunks.Replace(ctx, "vid1", []models.Chunk{
		{VideoID: "vid1", ChunkIndex: 0, StartTime: 0, EndTime: 10, Text: "hola mundo"},
	}))

	detail, err := stores.Videos.GetDetail(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.SegmentCount)
	assert.Equal(t, 1, detail.ChunkCount)
}

func TestListVideosByChannel(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	other := createTestChannel(ctx, t, stores, "https://www.youtube.com/@otro")

	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := stores.Videos.Insert(ctx, &models.Video{VideoID: "vid1", ChannelID: ch.ID, Title: "viejo", PublishedAt: &older})
	require.NoError(t, err)
	_, err = stores.Videos.Insert(ctx, &models.Video{VideoID: "vid2", ChannelID: ch.ID, Title: "nuevo", PublishedAt: &newer})
	require.NoError(t, err)
	createTestVideo(ctx, t, stores, other.ID, "ajeno")

	videos, err := stores.Videos.List(ctx, &ch.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "vid2", videos[0].VideoID, "channel listing must be newest publication first")
	assert.Equal(t, "vid1", videos[1].VideoID)

	all, err := stores.Videos.List(ctx, nil, 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestChatVideoIDs(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	other := createTestChannel(ctx, t, stores, "https://www.youtube.com/@otro")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")
	createTestVideo(ctx, t, stores, ch.ID, "vid2")
	createTestVideo(ctx, t, stores, other.ID, "ajeno")

	// Requested IDs are filtered to the channel's own videos.
	ids, err := stores.Videos.ChatVideoIDs(ctx, ch.ID, []string{"vid1", "ajeno", "desconocido"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"vid1"}, ids)

	// Without requested IDs the channel's videos apply, capped at limit.
	ids, err = stores.Videos.ChatVideoIDs(ctx, ch.ID, nil, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
