package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/test/util"
)

// embeddingDims matches the vector column width in the schema.
const embeddingDims = 384

func newTestStores(t *testing.T) (*Stores, *pgxpool.Pool) {
	t.Helper()
	pool, _ := util.SetupTestDatabase(t)
	return NewStores(pool), pool
}

func createTestChannel(ctx context.Context, t *testing.T, stores *Stores, url string) *models.Channel {
	t.Helper()
	ch, err := stores.Channels.Create(ctx, models.ChannelNameFromURL(url), url)
	require.NoError(t, err)
	return ch
}

func createTestVideo(ctx context.Context, t *testing.T, stores *Stores, channelID int64, videoID string) *models.Video {
	t.Helper()
	v := &models.Video{
		VideoID:   videoID,
		ChannelID: channelID,
		Title:     "Video " + videoID,
	}
	created, err := stores.Videos.Insert(ctx, v)
	require.NoError(t, err)
	require.True(t, created)
	return v
}

// testVector builds an embedding whose first component carries the seed, so
// distances between test vectors are predictable.
func testVector(seed float32) []float32 {
	v := make([]float32, embeddingDims)
	v[0] = seed
	return v
}

func enqueueTestTask(ctx context.Context, t *testing.T, stores *Stores, i int) *models.Task {
	t.Helper()
	task, err := stores.Tasks.Enqueue(ctx, models.TaskTypePipeline, models.PipelineRequest{
		ChannelURL: fmt.Sprintf("https://www.youtube.com/@canal%d", i),
		MaxVideos:  5,
		Download:   true,
	})
	require.NoError(t, err)
	return task
}
