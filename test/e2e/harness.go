// Package e2e boots complete vodrag instances — real database, real worker
// pool, real HTTP server — against mocked model services and a scripted
// media fetcher.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/api"
	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/embedding"
	"github.com/mediateca/vodrag/pkg/events"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/pipeline"
	"github.com/mediateca/vodrag/pkg/queue"
	"github.com/mediateca/vodrag/pkg/services"
	"github.com/mediateca/vodrag/pkg/store"
	"github.com/mediateca/vodrag/pkg/stt"
	testdb "github.com/mediateca/vodrag/test/database"
)

// TestApp is one booted vodrag instance. API server and worker pool run in
// the same process, sharing a schema-isolated database.
type TestApp struct {
	Config *config.Config
	Stores *store.Stores
	DB     *pgxpool.Pool
	DSN    string

	// Test wiring
	Models  *ModelServer
	Fetcher *ScriptedFetcher

	// Real infrastructure
	Listener   *events.NotifyListener
	WorkerPool *queue.Pool
	Server     *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg         *config.Config
	models      *ModelServer
	fetcher     *ScriptedFetcher
	workerCount int

	// injected database (for tests running several instances on one schema)
	stores *store.Stores
	db     *pgxpool.Pool
	dsn    string
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config. Queue worker count and model endpoints
// are still overridden with test values.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithModels shares a pre-created model server, so several instances report
// into the same call counters.
func WithModels(m *ModelServer) TestAppOption {
	return func(c *testAppConfig) { c.models = m }
}

// WithFetcher sets the scripted channel listing.
func WithFetcher(f *ScriptedFetcher) TestAppOption {
	return func(c *testAppConfig) { c.fetcher = f }
}

// WithWorkerCount sets the number of claim loops in the worker pool.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithDatabase injects an existing schema instead of creating a fresh one.
// Used by multi-instance tests where two worker pools claim from one queue.
func WithDatabase(stores *store.Stores, db *pgxpool.Pool, dsn string) TestAppOption {
	return func(c *testAppConfig) {
		c.stores = stores
		c.db = db
		c.dsn = dsn
	}
}

// NewTestApp creates and starts a full vodrag test instance. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{workerCount: 1}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = newTestConfig()
	}
	if tc.models == nil {
		tc.models = NewModelServer(t)
	}
	if tc.fetcher == nil {
		tc.fetcher = NewScriptedFetcher(t)
	}

	cfg := tc.cfg
	cfg.Queue.WorkerCount = tc.workerCount

	// All three model clients point at the mock server.
	cfg.LLM.BaseURL = tc.models.URL() + "/v1"
	cfg.Embedding.BaseURL = tc.models.URL() + "/v1"
	cfg.STT.BaseURL = tc.models.URL()

	// 1. Database — schema-isolated unless injected.
	stores, db, dsn := tc.stores, tc.db, tc.dsn
	if stores == nil {
		stores, db, dsn = testdb.NewTestStoresWithDSN(t)
	}

	ctx := context.Background()

	// 2. Settings — both components, exactly like the two binaries seed them.
	settingsService := services.NewSettingsService(stores.Settings)
	require.NoError(t, settingsService.Seed(ctx, services.ComponentBackend, services.DefaultBackendSettings(cfg)))
	require.NoError(t, settingsService.Seed(ctx, services.ComponentWorker, services.DefaultWorkerSettings(cfg)))

	// 3. NotifyListener — real LISTEN connection on the schema-scoped DSN.
	listener := events.NewNotifyListener(dsn, events.TaskQueueChannel)
	require.NoError(t, listener.Start(ctx))

	// 4. Model clients — the real HTTP implementations, against the mock.
	llmClient := llm.NewOpenAIClient(cfg.LLM)
	transcriber := stt.NewHTTPTranscriber(cfg.STT)
	encoder := embedding.NewHTTPEncoder(cfg.Embedding)

	// 5. Worker pool with the real executor.
	executor := pipeline.NewExecutor(cfg.Pipeline, stores, tc.fetcher, transcriber, encoder, llmClient)
	workerPool := queue.NewPool(fmt.Sprintf("e2e-%s", t.Name()), stores.Tasks, cfg.Queue, executor, listener.Wakeup())
	require.NoError(t, workerPool.Start(ctx))

	// 6. Domain services.
	channelService := services.NewChannelService(stores.Channels)
	videoService := services.NewVideoService(stores.Videos)
	chatService := services.NewChatService(stores.Chats)
	taskService := services.NewTaskService(stores.Tasks, stores.Stats)
	retriever := services.NewRetrieverService(stores.Chunks, settingsService, cfg.RAG)
	sqlAgent := services.NewSQLAgentService(db, llmClient)
	ragService := services.NewRAGService(
		stores.Chats, stores.Videos, stores.Chunks, stores.Tasks,
		retriever, sqlAgent, llmClient, cfg.RAG,
	)

	// 7. HTTP server on a random port.
	server := api.NewServer(
		channelService, videoService, chatService,
		taskService, settingsService, ragService,
		stores.Tasks,
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:     cfg,
		Stores:     stores,
		DB:         db,
		DSN:        dsn,
		Models:     tc.models,
		Fetcher:    tc.fetcher,
		Listener:   listener,
		WorkerPool: workerPool,
		Server:     server,
		BaseURL:    fmt.Sprintf("http://%s", ln.Addr().String()),
		t:          t,
	}

	// Register cleanup in reverse-creation order.
	t.Cleanup(func() {
		workerPool.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		listener.Stop(context.Background())
		// DB cleanup handled by testdb.NewTestStoresWithDSN
	})

	return app
}

// newTestConfig builds the defaults with queue and wait timing tightened
// for tests.
func newTestConfig() *config.Config {
	cfg := &config.Config{
		Queue:     config.DefaultQueueConfig(),
		Pipeline:  config.DefaultPipelineConfig(),
		Media:     config.DefaultMediaConfig(),
		LLM:       config.DefaultLLMConfig(),
		Embedding: config.DefaultEmbeddingConfig(),
		STT:       config.DefaultSTTConfig(),
		RAG:       config.DefaultRAGConfig(),
		Retention: config.DefaultRetentionConfig(),
	}
	cfg.Queue.PollInterval = 100 * time.Millisecond
	cfg.Queue.PollIntervalJitter = 25 * time.Millisecond
	cfg.Queue.TaskTimeout = 2 * time.Minute
	cfg.Queue.GracefulShutdownTimeout = 15 * time.Second
	cfg.RAG.EmbedWaitPollInterval = 50 * time.Millisecond
	cfg.RAG.EmbedWaitTimeout = 15 * time.Second
	return cfg
}
