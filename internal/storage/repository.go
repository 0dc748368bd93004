package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kyleking/schema-replay/internal/schema"
)

// ErrSnapshotNotFound is returned when no snapshot matches an id
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrAmbiguousID is returned when an id prefix matches several snapshots
var ErrAmbiguousID = errors.New("snapshot id prefix is ambiguous")

// Repository defines the interface for snapshot history operations
type Repository interface {
	Initialize(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snap Snapshot) (*Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, limit, offset int) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*Stats, error)
	MigrateTo(ctx context.Context, version int) error
	Clear(ctx context.Context) error
	Close() error
}

// Snapshot is a persisted schema reconstruction. Columns is only populated by
// GetSnapshot; listings carry ColumnCount alone.
type Snapshot struct {
	ID          string          `json:"id"                yaml:"id"`
	ProjectDir  string          `json:"project_dir"       yaml:"project_dir"`
	ContextName string          `json:"context_name"      yaml:"context_name"`
	Cutoff      string          `json:"cutoff"            yaml:"cutoff"`
	CreatedAt   time.Time       `json:"created_at"        yaml:"created_at"`
	ColumnCount int             `json:"column_count"      yaml:"column_count"`
	Columns     []schema.Column `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// Stats represents database statistics. SchemaVersion and Migrations
// describe the store's own tables, not any EF project.
type Stats struct {
	TotalSnapshots      int               `json:"total_snapshots"       yaml:"total_snapshots"`
	TotalColumns        int               `json:"total_columns"         yaml:"total_columns"`
	Projects            int               `json:"projects"              yaml:"projects"`
	LastSavedAt         time.Time         `json:"last_saved_at"         yaml:"last_saved_at"`
	DatabaseSizeMB      float64           `json:"database_size_mb"      yaml:"database_size_mb"`
	PerContext          map[string]int    `json:"per_context"           yaml:"per_context"`
	SchemaVersion       int               `json:"schema_version"        yaml:"schema_version"`
	LatestSchemaVersion int               `json:"latest_schema_version" yaml:"latest_schema_version"`
	Migrations          []MigrationStatus `json:"migrations,omitempty"  yaml:"migrations,omitempty"`
}

// Pending returns the store migrations not yet applied, oldest first
func (s Stats) Pending() []MigrationStatus {
	var pending []MigrationStatus

	for _, m := range s.Migrations {
		if !m.Applied {
			pending = append(pending, m)
		}
	}

	return pending
}
