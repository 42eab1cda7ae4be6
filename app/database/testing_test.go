package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)

	return db
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := ParseTime(value)
	require.NoError(t, err)
	return ts
}

func createMessage(t *testing.T, repo *MessageRepo, m Message) int64 {
	t.Helper()
	id, err := repo.CreateMessage(context.Background(), &m)
	require.NoError(t, err)
	return id
}
