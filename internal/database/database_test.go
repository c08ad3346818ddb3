package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBPath(t *testing.T) {
	expected := filepath.Join("data", "weather-terminal.db")
	if got := DBPath("data"); got != expected {
		t.Errorf("DBPath() = %v, want %v", got, expected)
	}
}

func TestOpen_CreatesDirectoryAndTables(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", FileName)

	db, err := Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"favorites", "weather_cache", "app_state"} {
		ok, err := TableExists(ctx, db, table)
		require.NoError(t, err)
		assert.True(t, ok, "table %s should exist", table)
	}

	ok, err := TableExists(ctx, db, "zipcodes")
	require.NoError(t, err)
	assert.False(t, ok)
}
