package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	for _, table := range []string{"session_tokens", "recipes", "generations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpenForTestingIsolated(t *testing.T) {
	first, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	second, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	_, err = first.Exec("INSERT INTO session_tokens (id, token) VALUES (1, 'abc')")
	require.NoError(t, err)

	var count int
	require.NoError(t, second.QueryRow("SELECT COUNT(*) FROM session_tokens").Scan(&count))
	assert.Zero(t, count)
}

func TestOpenFileAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fridgechef.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO recipes (title, duration) VALUES ('Omelette', 10)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-run applied migrations.
	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM recipes").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecipesDurationMustBePositive(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("INSERT INTO recipes (title, duration) VALUES ('Nothing', 0)")
	assert.Error(t, err)
}
