package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kyleking/schema-replay/internal/storage"
)

const mockLatestVersion = 2

// MockRepository implements storage.Repository for testing
type MockRepository struct {
	snapshots []storage.Snapshot
	stats     *storage.Stats
	cleared   bool
	version   int
	closed    bool
	err       error
}

func (m *MockRepository) Initialize(_ context.Context) error {
	return m.err
}

func (m *MockRepository) SaveSnapshot(_ context.Context, snap storage.Snapshot) (*storage.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}

	if snap.ID == "" {
		snap.ID = "mock-" + strings.Repeat("0", 8)
	}

	snap.CreatedAt = time.Now()
	snap.ColumnCount = len(snap.Columns)
	m.snapshots = append(m.snapshots, snap)

	return &snap, nil
}

func (m *MockRepository) GetSnapshot(_ context.Context, id string) (*storage.Snapshot, error) {
	var found []storage.Snapshot

	for _, s := range m.snapshots {
		if strings.HasPrefix(s.ID, id) {
			found = append(found, s)
		}
	}

	switch len(found) {
	case 0:
		return nil, storage.ErrSnapshotNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, storage.ErrAmbiguousID
	}
}

func (m *MockRepository) ListSnapshots(_ context.Context, limit, offset int) ([]storage.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}

	start := min(offset, len(m.snapshots))
	end := min(start+limit, len(m.snapshots))

	return m.snapshots[start:end], nil
}

func (m *MockRepository) DeleteSnapshot(ctx context.Context, id string) error {
	snap, err := m.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}

	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.ID != snap.ID {
			kept = append(kept, s)
		}
	}

	m.snapshots = kept

	return nil
}

func (m *MockRepository) GetStats(_ context.Context) (*storage.Stats, error) {
	if m.err != nil {
		return nil, m.err
	}

	if m.stats != nil {
		return m.stats, nil
	}

	stats := &storage.Stats{
		TotalSnapshots:      len(m.snapshots),
		PerContext:          map[string]int{},
		SchemaVersion:       m.version,
		LatestSchemaVersion: mockLatestVersion,
	}
	for _, s := range m.snapshots {
		stats.TotalColumns += s.ColumnCount
		stats.PerContext[s.ContextName]++
	}

	return stats, nil
}

func (m *MockRepository) MigrateTo(_ context.Context, version int) error {
	if m.err != nil {
		return m.err
	}

	if version < 0 || version > mockLatestVersion {
		return fmt.Errorf("store schema version %d out of range 0..%d", version, mockLatestVersion)
	}

	m.version = version

	return nil
}

func (m *MockRepository) Clear(_ context.Context) error {
	m.cleared = true
	m.snapshots = nil

	return nil
}

func (m *MockRepository) Close() error {
	m.closed = true
	return nil
}
