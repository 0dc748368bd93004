package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("duckdb", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int

	err := db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", name,
	).Scan(&count)
	require.NoError(t, err)

	return count > 0
}

func TestMigrationManager_MigrateUp(t *testing.T) {
	db := openRawDB(t)
	mm := NewMigrationManager(db)
	ctx := context.Background()

	require.NoError(t, mm.MigrateUp(ctx))

	assert.True(t, tableExists(t, db, "snapshots"))
	assert.True(t, tableExists(t, db, "snapshot_columns"))

	current, err := mm.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, mm.LatestVersion(), current)

	// idempotent
	require.NoError(t, mm.MigrateUp(ctx))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
}

func TestMigrationManager_ApplyTwiceFails(t *testing.T) {
	db := openRawDB(t)
	mm := NewMigrationManager(db)
	ctx := context.Background()

	require.NoError(t, mm.MigrateUp(ctx))

	err := mm.ApplyMigration(ctx, mm.GetMigrations()[0])
	require.ErrorContains(t, err, "already applied")
}

func TestMigrationManager_MigrateDown(t *testing.T) {
	db := openRawDB(t)
	mm := NewMigrationManager(db)
	ctx := context.Background()

	require.NoError(t, mm.MigrateUp(ctx))
	require.NoError(t, mm.MigrateDown(ctx, 1))

	current, err := mm.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.True(t, tableExists(t, db, "snapshots"))

	require.NoError(t, mm.MigrateDown(ctx, 0))
	assert.False(t, tableExists(t, db, "snapshots"))
	assert.False(t, tableExists(t, db, "snapshot_columns"))

	err = mm.RollbackMigration(ctx, mm.GetMigrations()[0])
	require.ErrorContains(t, err, "not applied")
}

func TestMigrationManager_Status(t *testing.T) {
	db := openRawDB(t)
	mm := NewMigrationManager(db)
	ctx := context.Background()

	status, err := mm.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, []int{1, 2}, []int{status[0].Version, status[1].Version})
	assert.False(t, status[0].Applied)

	require.NoError(t, mm.MigrateUp(ctx))

	status, err = mm.GetMigrationStatus(ctx)
	require.NoError(t, err)

	for _, s := range status {
		assert.True(t, s.Applied, "version %d", s.Version)
		assert.False(t, s.AppliedAt.IsZero())
		assert.NotEmpty(t, s.Description)
	}
}

func TestMigrationManager_MigrateTo(t *testing.T) {
	db := openRawDB(t)
	mm := NewMigrationManager(db)
	ctx := context.Background()

	require.NoError(t, mm.MigrateTo(ctx, 1))

	current, err := mm.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	require.NoError(t, mm.MigrateTo(ctx, mm.LatestVersion()))

	current, err = mm.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, mm.LatestVersion(), current)

	require.ErrorContains(t, mm.MigrateTo(ctx, -1), "out of range")
	require.ErrorContains(t, mm.MigrateTo(ctx, mm.LatestVersion()+1), "out of range")
}
