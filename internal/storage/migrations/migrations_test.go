package migrations

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	createWidgets = Migration{
		Version:     1,
		Description: "create widgets",
		Up:          `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		Down:        `DROP TABLE widgets`,
	}
	addColor = Migration{
		Version:     2,
		Description: "add widget color",
		Up:          `ALTER TABLE widgets ADD COLUMN color TEXT NOT NULL DEFAULT ''`,
		Down:        `ALTER TABLE widgets DROP COLUMN color`,
	}
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyInVersionOrder(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	// Registered out of order on purpose
	m := NewManager(addColor, createWidgets)
	version, err := m.Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec("INSERT INTO widgets (id, name, color) VALUES (1, 'a', 'red')")
	require.NoError(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	m := NewManager(createWidgets)
	_, err := m.Apply(ctx, db)
	require.NoError(t, err)

	m.Register(addColor)
	version, err := m.Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	version, err = m.Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	m := NewManager(createWidgets)
	_, err := m.Apply(ctx, db)
	require.NoError(t, err)

	require.NoError(t, m.Rollback(ctx, db))
	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'a')")
	assert.Error(t, err, "table should be gone")

	assert.Error(t, m.Rollback(ctx, db))
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	broken := Migration{Version: 1, Description: "broken", Up: "CREATE TABLE ("}
	_, err := NewManager(broken).Apply(ctx, db)
	require.Error(t, err)

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestApplyRefusesNewerDatabase(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	_, err := NewManager(createWidgets, addColor).Apply(ctx, db)
	require.NoError(t, err)

	version, err := NewManager(createWidgets).Apply(ctx, db)
	assert.True(t, errors.Is(err, ErrNewerSchema), "got %v", err)
	assert.Equal(t, 2, version)
}

func TestApplyRejectsDuplicateVersions(t *testing.T) {
	dup := addColor
	dup.Version = 1
	_, err := NewManager(createWidgets, dup).Apply(context.Background(), openDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestRollbackWithoutDown(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	oneWay := Migration{Version: 1, Description: "one way", Up: createWidgets.Up}
	m := NewManager(oneWay)
	_, err := m.Apply(ctx, db)
	require.NoError(t, err)

	err = m.Rollback(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be rolled back")

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
