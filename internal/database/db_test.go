// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"path/filepath"
	"testing"

	"github.com/cardforge/cardforge/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var tables []string
	err = db.Select(&tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)

	assert.Contains(t, tables, "users")
	assert.Contains(t, tables, "reset_codes")
	assert.Contains(t, tables, "user_settings")
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "app.db")

	db, err := database.Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
	assert.FileExists(t, path)
}

func TestOpen_WithExistingParams(t *testing.T) {
	// Existing parameters are kept, defaults are appended.
	db, err := database.Open(":memory:?cache=shared")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
}

func TestOpen_PragmasApplied(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.Get(&journalMode, "PRAGMA journal_mode"))
	assert.NotEmpty(t, journalMode)
}
