package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "trees.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestMigrate_CreatesTables(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, Migrate(db, nil))

	assert.True(t, tableExists(t, db, "build_runs"))
	assert.True(t, tableExists(t, db, "tree_nodes"))

	// A second run applies nothing.
	require.NoError(t, Migrate(db, nil))
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrationManager_OrdersAndSkipsInvalidNames(t *testing.T) {
	db := openTemp(t)
	source := fstest.MapFS{
		"sql/002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER REFERENCES first(id));")},
		"sql/001_first.sql":  {Data: []byte("CREATE TABLE first (id INTEGER PRIMARY KEY);")},
		"sql/notes.txt":      {Data: []byte("ignored")},
		"sql/draft.sql":      {Data: []byte("not sql at all")},
	}

	m := NewMigrationManager(db, source, "sql", nil)
	migrations, err := m.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_first", migrations[0].Name)

	require.NoError(t, m.RunMigrations())
	assert.True(t, tableExists(t, db, "second"))
}

func TestMigrationManager_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTemp(t)
	source := fstest.MapFS{
		"sql/001_broken.sql": {Data: []byte("CREATE TABLE oops (")},
	}

	m := NewMigrationManager(db, source, "sql", nil)
	require.Error(t, m.RunMigrations())

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestTransaction(t *testing.T) {
	db := openTemp(t)
	_, err := db.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = Transaction(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO kv VALUES ('a', '1')"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&count))
	assert.Zero(t, count)

	require.NoError(t, Transaction(db, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO kv VALUES ('b', '2')")
		return err
	}))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&count))
	assert.Equal(t, 1, count)
}
