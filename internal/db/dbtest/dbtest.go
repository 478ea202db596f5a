// Package dbtest opens a schema-initialized in-memory store for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"ms-qrinventory/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func New(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// one connection keeps a single in-memory database and serializes
	// concurrent transactions the way row locks would
	sqldb.SetMaxOpenConns(1)

	store := db.New(bun.NewDB(sqldb, sqlitedialect.New()))
	require.NoError(t, store.CreateSchema(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}
