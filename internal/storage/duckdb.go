package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/schema-replay/internal/schema"
)

// DefaultQueryTimeout bounds each repository call when no timeout is configured
const DefaultQueryTimeout = 30 * time.Second

// DuckDBRepository implements the Repository interface using DuckDB
type DuckDBRepository struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
}

// NewDuckDBRepository opens (creating if needed) the store at dbPath
func NewDuckDBRepository(dbPath string) (*DuckDBRepository, error) {
	return NewDuckDBRepositoryWithTimeout(dbPath, DefaultQueryTimeout)
}

// NewDuckDBRepositoryWithTimeout opens the store with a per-call query timeout
func NewDuckDBRepositoryWithTimeout(dbPath string, queryTimeout time.Duration) (*DuckDBRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a CLI process is the only writer; one connection avoids DuckDB write conflicts
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}

	return &DuckDBRepository{db: db, path: dbPath, queryTimeout: queryTimeout}, nil
}

func (r *DuckDBRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Initialize brings the store schema up to date
func (r *DuckDBRepository) Initialize(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return NewMigrationManager(r.db).MigrateUp(ctx)
}

// SaveSnapshot persists snap and its columns in one transaction. ID and
// CreatedAt are assigned when empty; column positions follow slice order.
func (r *DuckDBRepository) SaveSnapshot(ctx context.Context, snap Snapshot) (*Snapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}

	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	snap.ColumnCount = len(snap.Columns)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, project_dir, context_name, cutoff, created_at, column_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ProjectDir, snap.ContextName, snap.Cutoff, snap.CreatedAt, snap.ColumnCount)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_columns (snapshot_id, position, table_name, column_name, display_type, nullable)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare column insert: %w", err)
	}
	defer stmt.Close()

	for i, col := range snap.Columns {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, col.Table, col.Column, col.DisplayType, col.Nullable); err != nil {
			return nil, fmt.Errorf("failed to insert column %s.%s: %w", col.Table, col.Column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return &snap, nil
}

// resolveID expands a unique id prefix to the full id
func (r *DuckDBRepository) resolveID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrSnapshotNotFound
	}

	rows, err := r.db.QueryContext(ctx, "SELECT id FROM snapshots WHERE starts_with(id, ?) ORDER BY id LIMIT 2", id)
	if err != nil {
		return "", fmt.Errorf("failed to look up snapshot: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var match string
		if err := rows.Scan(&match); err != nil {
			return "", fmt.Errorf("failed to scan snapshot id: %w", err)
		}

		ids = append(ids, match)
	}

	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// GetSnapshot returns a snapshot with its columns. id may be a unique prefix.
func (r *DuckDBRepository) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fullID, err := r.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	var snap Snapshot

	err = r.db.QueryRowContext(ctx, `
		SELECT id, project_dir, context_name, cutoff, created_at, column_count
		FROM snapshots WHERE id = ?`, fullID).
		Scan(&snap.ID, &snap.ProjectDir, &snap.ContextName, &snap.Cutoff, &snap.CreatedAt, &snap.ColumnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT table_name, column_name, display_type, nullable
		FROM snapshot_columns WHERE snapshot_id = ? ORDER BY position`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot columns: %w", err)
	}
	defer rows.Close()

	snap.Columns = []schema.Column{}

	for rows.Next() {
		var col schema.Column
		if err := rows.Scan(&col.Table, &col.Column, &col.DisplayType, &col.Nullable); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot column: %w", err)
		}

		snap.Columns = append(snap.Columns, col)
	}

	return &snap, rows.Err()
}

// ListSnapshots returns snapshots newest first without their columns
func (r *DuckDBRepository) ListSnapshots(ctx context.Context, limit, offset int) ([]Snapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	offset = max(offset, 0)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_dir, context_name, cutoff, created_at, column_count
		FROM snapshots
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}

	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.ProjectDir, &snap.ContextName, &snap.Cutoff, &snap.CreatedAt, &snap.ColumnCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// DeleteSnapshot removes a snapshot and its columns. id may be a unique prefix.
func (r *DuckDBRepository) DeleteSnapshot(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fullID, err := r.resolveID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_columns WHERE snapshot_id = ?", fullID); err != nil {
		return fmt.Errorf("failed to delete snapshot columns: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", fullID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return tx.Commit()
}

// GetStats summarizes the store
func (r *DuckDBRepository) GetStats(ctx context.Context) (*Stats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	stats := &Stats{PerContext: make(map[string]int)}

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT project_dir) FROM snapshots").
		Scan(&stats.TotalSnapshots, &stats.Projects)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot count: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_columns").Scan(&stats.TotalColumns); err != nil {
		return nil, fmt.Errorf("failed to get column count: %w", err)
	}

	var lastSaved sql.NullTime
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM snapshots").Scan(&lastSaved); err != nil {
		return nil, fmt.Errorf("failed to get last save time: %w", err)
	}

	if lastSaved.Valid {
		stats.LastSavedAt = lastSaved.Time
	}

	if info, err := os.Stat(r.path); err == nil {
		stats.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT context_name, COUNT(*) FROM snapshots GROUP BY context_name")
	if err != nil {
		return nil, fmt.Errorf("failed to get context breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			count int
		)

		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}

		stats.PerContext[name] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	mm := NewMigrationManager(r.db)

	if stats.Migrations, err = mm.GetMigrationStatus(ctx); err != nil {
		return nil, err
	}

	if stats.SchemaVersion, err = mm.CurrentVersion(ctx); err != nil {
		return nil, err
	}

	stats.LatestSchemaVersion = mm.LatestVersion()

	return stats, nil
}

// MigrateTo moves the store's own schema to version
func (r *DuckDBRepository) MigrateTo(ctx context.Context, version int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return NewMigrationManager(r.db).MigrateTo(ctx, version)
}

// Clear removes every snapshot
func (r *DuckDBRepository) Clear(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM snapshot_columns"); err != nil {
		return fmt.Errorf("failed to clear snapshot columns: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}

	return nil
}

// Close closes the database connection
func (r *DuckDBRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}

	return nil
}
