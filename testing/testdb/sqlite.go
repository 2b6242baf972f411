package testdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"course-service/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var sqliteSeq atomic.Int64

// NewSQLite opens a private in-memory SQLite database for one test.
// No container is needed, so these tests also run in short mode.
func NewSQLite(t *testing.T, models ...interface{}) *bun.DB {
	t.Helper()

	name := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_foreign_keys=on", sqliteSeq.Add(1))
	database, err := db.NewSQLite(name)
	require.NoError(t, err)

	// Every connection to a named in-memory database shares it, but the
	// database disappears with the last connection; keep exactly one open.
	database.SetMaxOpenConns(1)
	database.SetConnMaxLifetime(0)
	database.SetConnMaxIdleTime(0)

	t.Cleanup(func() { database.Close() })

	if len(models) > 0 {
		Migrate(t, database, models...)
	}
	return database
}

// Migrate registers models with bun and creates their tables in order.
// Join tables come last for creation but must be registered before the
// models that reference them through m2m, so registration runs in reverse.
func Migrate(t *testing.T, database *bun.DB, models ...interface{}) {
	t.Helper()

	for i := len(models) - 1; i >= 0; i-- {
		database.RegisterModel(models[i])
	}
	err := db.RunMigrations(context.Background(), database, models...)
	require.NoError(t, err, "failed to create tables")
}
