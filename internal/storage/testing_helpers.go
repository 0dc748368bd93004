package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kyleking/schema-replay/internal/schema"
)

// NewTestDB creates an initialized store in a temp dir, closed on test cleanup
func NewTestDB(t *testing.T) *DuckDBRepository {
	t.Helper()

	repo, err := NewDuckDBRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close test repository: %v", err)
		}
	})

	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize test repository: %v", err)
	}

	return repo
}

// NewTestDBWithSnapshots creates a store pre-seeded with snaps and returns
// the saved copies in input order
func NewTestDBWithSnapshots(t *testing.T, snaps ...Snapshot) (*DuckDBRepository, []Snapshot) {
	t.Helper()

	repo := NewTestDB(t)
	saved := make([]Snapshot, 0, len(snaps))

	for _, s := range snaps {
		out, err := repo.SaveSnapshot(context.Background(), s)
		if err != nil {
			t.Fatalf("failed to store test snapshot: %v", err)
		}

		saved = append(saved, *out)
	}

	return repo, saved
}

// SampleColumns is a small reconstructed schema for store tests
func SampleColumns() []schema.Column {
	return []schema.Column{
		{Table: "Users", Column: "Age", DisplayType: "int", Nullable: true},
		{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
		{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true},
	}
}
