// Package database provides schema-isolated PostgreSQL pools for tests.
package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/store"
	"github.com/mediateca/vodrag/test/util"
)

// NewTestPool creates a migrated, schema-isolated connection pool.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: spins up a pgvector testcontainer.
// The schema and connections are cleaned up when the test ends.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, _ := util.SetupTestDatabase(t)
	return pool
}

// NewTestStores creates the full store set on a fresh test schema.
func NewTestStores(t *testing.T) (*store.Stores, *pgxpool.Pool) {
	t.Helper()
	pool, _ := util.SetupTestDatabase(t)
	return store.NewStores(pool), pool
}

// NewTestStoresWithDSN additionally returns the schema-scoped connection
// string for code that opens its own dedicated connection, e.g. a LISTEN
// session.
func NewTestStoresWithDSN(t *testing.T) (*store.Stores, *pgxpool.Pool, string) {
	t.Helper()
	pool, dsn := util.SetupTestDatabase(t)
	return store.NewStores(pool), pool, dsn
}
