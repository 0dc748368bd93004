package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kyleking/schema-replay/internal/logging"
)

// Migration is one versioned change to the snapshot store's own schema
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles database schema migrations
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Snapshot tables",
			Up: `
				CREATE TABLE IF NOT EXISTS snapshots (
					id VARCHAR PRIMARY KEY,
					project_dir VARCHAR NOT NULL,
					context_name VARCHAR NOT NULL,
					cutoff VARCHAR NOT NULL,
					created_at TIMESTAMP NOT NULL,
					column_count INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS snapshot_columns (
					snapshot_id VARCHAR NOT NULL,
					position INTEGER NOT NULL,
					table_name VARCHAR NOT NULL,
					column_name VARCHAR NOT NULL,
					display_type VARCHAR NOT NULL,
					nullable BOOLEAN NOT NULL,
					PRIMARY KEY (snapshot_id, position)
				);
			`,
			Down: `
				DROP TABLE IF EXISTS snapshot_columns;
				DROP TABLE IF EXISTS snapshots;
			`,
		},
		{
			Version:     2,
			Description: "Index snapshots by project and context",
			Up: `
				CREATE INDEX IF NOT EXISTS idx_snapshots_project_context ON snapshots(project_dir, context_name);
				CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_snapshots_created_at;
				DROP INDEX IF EXISTS idx_snapshots_project_context;
			`,
		},
	}
}

// LatestVersion returns the highest known migration version
func (m *MigrationManager) LatestVersion() int {
	latest := 0
	for _, migration := range m.GetMigrations() {
		latest = max(latest, migration.Version)
	}

	return latest
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// CurrentVersion returns the highest applied version, or 0
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	versions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	current := 0
	for _, v := range versions {
		current = max(current, v)
	}

	return current, nil
}

// IsMigrationApplied checks if a specific migration version has been applied
func (m *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int

	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	return count > 0, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if applied {
		return fmt.Errorf("migration %d already applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		migration.Version, migration.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration rolls back a single migration
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("migration %d not applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	appliedMap := make(map[int]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		appliedMap[version] = true
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if appliedMap[migration.Version] {
			continue
		}

		logging.WithFields(map[string]any{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying store migration")

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations newer than targetVersion, newest first
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrationMap := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		migrationMap[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := migrationMap[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		logging.WithField("version", version).Debug("Rolling back store migration")

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// GetMigrationStatus returns every known migration, ordered by version, with
// whether and when it was applied
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	appliedAt := make(map[int]time.Time)

	for rows.Next() {
		var (
			version int
			at      time.Time
		)

		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration status: %w", err)
		}

		appliedAt[version] = at
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	status := make([]MigrationStatus, 0, len(migrations))

	for _, migration := range migrations {
		at, applied := appliedAt[migration.Version]
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied,
			AppliedAt:   at,
		})
	}

	return status, nil
}

// MigrateTo applies or rolls back migrations until version is the newest
// applied one. Version 0 removes every snapshot table.
func (m *MigrationManager) MigrateTo(ctx context.Context, version int) error {
	if latest := m.LatestVersion(); version < 0 || version > latest {
		return fmt.Errorf("store schema version %d out of range 0..%d", version, latest)
	}

	if err := m.MigrateUp(ctx); err != nil {
		return err
	}

	return m.MigrateDown(ctx, version)
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"              yaml:"version"`
	Description string    `json:"description"          yaml:"description"`
	Applied     bool      `json:"applied"              yaml:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}
