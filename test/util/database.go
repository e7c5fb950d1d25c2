// Package util holds the shared PostgreSQL fixture used by integration tests.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mediateca/vodrag/pkg/database"
)

// One database serves every test in a package; isolation comes from a schema
// per test, which is far cheaper than a container per test.
var (
	baseOnce sync.Once
	baseConn string
	baseErr  error
)

// SetupTestDatabase gives the test its own migrated schema on the shared
// PostgreSQL instance and returns a pool bound to it, plus the schema-scoped
// connection string for code that must open dedicated connections (LISTEN).
// CI provides the server through CI_DATABASE_URL; local runs start one
// pgvector testcontainer per package. The schema is dropped on cleanup.
func SetupTestDatabase(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	base := baseDSN(t)
	schema := newSchema(ctx, t, base)

	// search_path keeps public: the vector extension is installed there once
	// by the init script and its types must stay resolvable.
	scoped := scopedDSN(base, schema)
	require.NoError(t, database.Migrate(ctx, scoped))

	poolCfg, err := pgxpool.ParseConfig(scoped)
	require.NoError(t, err)
	poolCfg.MaxConns = 10
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		dropSchema(t, base, schema)
	})

	return pool, scoped
}

// baseDSN resolves the shared server: the CI-provided one if configured,
// otherwise a lazily started container.
func baseDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("CI_DATABASE_URL"); dsn != "" {
		return dsn
	}

	baseOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"pgvector/pgvector:pg17",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			postgres.WithInitScripts(initScriptPath()),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			baseErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}
		baseConn, baseErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	require.NoError(t, baseErr, "shared test database unavailable")
	return baseConn
}

// newSchema creates a uniquely named schema for this test and returns its
// name. The name embeds the test name so leftovers from crashed runs are
// attributable.
func newSchema(ctx context.Context, t *testing.T, base string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("test_")
	for _, r := range strings.ToLower(t.Name()) {
		if b.Len() >= 45 { // stay clear of the 63-byte identifier limit
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	fmt.Fprintf(&b, "_%s", hex.EncodeToString(suffix))
	schema := b.String()

	conn, err := pgx.Connect(ctx, base)
	require.NoError(t, err)
	defer func() { _ = conn.Close(ctx) }()
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	return schema
}

func dropSchema(t *testing.T, base, schema string) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, base)
	if err != nil {
		t.Logf("schema %s not dropped: %v", schema, err)
		return
	}
	defer func() { _ = conn.Close(ctx) }()
	if _, err := conn.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
		t.Logf("schema %s not dropped: %v", schema, err)
	}
}

// scopedDSN appends search_path so every pooled connection lands in the test
// schema. pgx passes unrecognized URL parameters through as session settings.
func scopedDSN(base, schema string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s,public", base, sep, schema)
}

// initScriptPath locates deploy/postgres-init/01-init.sql relative to this
// source file, so tests resolve it from any package directory.
func initScriptPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("initScriptPath: runtime.Caller failed")
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	return filepath.Join(root, "deploy", "postgres-init", "01-init.sql")
}
