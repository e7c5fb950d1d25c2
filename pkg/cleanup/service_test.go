package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
	testdb "github.com/mediateca/vodrag/test/database"
)

func TestService_SweepsOldEmbedTasks(t *testing.T) {
	stores, pool := testdb.NewTestStores(t)
	ctx := context.Background()

	task, err := stores.Tasks.Enqueue(ctx, models.TaskTypeEmbedQuestion,
		models.EmbedQuestionRequest{Question: "old question"})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = 'completed', completed_at = now() - interval '2 days'
		 WHERE id = $1`, task.ID)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{EmbedTaskTTL: 24 * time.Hour, SweepInterval: time.Hour}
	svc := NewService(cfg, stores.Tasks)
	svc.sweepEmbedTasks(ctx)

	_, err = stores.Tasks.Get(ctx, task.ID)
	assert.True(t, store.IsNotFound(err), "expired embed task should be gone")
}

func TestService_PreservesRecentEmbedTasks(t *testing.T) {
	stores, pool := testdb.NewTestStores(t)
	ctx := context.Background()

	task, err := stores.Tasks.Enqueue(ctx, models.TaskTypeEmbedQuestion,
		models.EmbedQuestionRequest{Question: "recent question"})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = 'completed', completed_at = now()
		 WHERE id = $1`, task.ID)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{EmbedTaskTTL: 24 * time.Hour, SweepInterval: time.Hour}
	svc := NewService(cfg, stores.Tasks)
	svc.sweepEmbedTasks(ctx)

	kept, err := stores.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, kept.Status)
}

func TestService_NeverSweepsPipelineTasks(t *testing.T) {
	stores, pool := testdb.NewTestStores(t)
	ctx := context.Background()

	task, err := stores.Tasks.Enqueue(ctx, models.TaskTypePipeline,
		models.PipelineRequest{ChannelURL: "https://www.youtube.com/@somechannel", MaxVideos: 5, Download: true})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = 'completed', completed_at = now() - interval '30 days'
		 WHERE id = $1`, task.ID)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{EmbedTaskTTL: 24 * time.Hour, SweepInterval: time.Hour}
	svc := NewService(cfg, stores.Tasks)
	svc.sweepEmbedTasks(ctx)

	kept, err := stores.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypePipeline, kept.Type)
}

func TestService_StartStop(t *testing.T) {
	stores, _ := testdb.NewTestStores(t)

	cfg := &config.RetentionConfig{EmbedTaskTTL: 24 * time.Hour, SweepInterval: time.Hour}
	svc := NewService(cfg, stores.Tasks)

	svc.Start(context.Background())
	svc.Start(context.Background()) // second call is a no-op
	svc.Stop()
}
