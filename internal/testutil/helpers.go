package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// MigrationsPath returns <root>/Migrations[/<sub>]
func MigrationsPath(root string, sub ...string) string {
	return filepath.Join(append([]string{root, "Migrations"}, sub...)...)
}

// WriteFile writes content to dir/name, creating dir, and returns the path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}

	return path
}

// ScenarioProject builds the Init/AddAge/DropName history in
// <root>/Migrations/Shop, each with a designer companion and a model
// snapshot next to them, and returns the project root.
func ScenarioProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	dir := MigrationsPath(root, TestContextShort)

	writePair(t, dir, TSInit+"_Init", MigrationSource("Init",
		WithUp(CreateTableStmt("Users",
			Col{Name: "Id", Type: "Int32"},
			Col{Name: "Name", Type: "String", Nullable: true},
		)),
		WithDown(`migrationBuilder.DropTable(name: "Users");`),
	))

	writePair(t, dir, TSAddAge+"_AddAge", MigrationSource("AddAge",
		WithUp(AddColumnStmt("Users", Col{Name: "Age", Type: "Int32", Nullable: true})),
		WithDown(DropColumnStmt("Users", "Age")),
	))

	writePair(t, dir, TSDropName+"_DropName", MigrationSource("DropName",
		WithUp(DropColumnStmt("Users", "Name")),
		WithDown(AddColumnStmt("Users", Col{Name: "Name", Type: "String", Nullable: true})),
	))

	WriteFile(t, dir, "ShopContextModelSnapshot.cs", MigrationSource("ShopContextModelSnapshot",
		WithUp(CreateTableStmt("Ghost", Col{Name: "Id", Type: "Int32"})),
	))

	return root
}

// writePair writes a primary migration and a designer file whose content
// would corrupt the replay if it were picked instead of the primary.
func writePair(t *testing.T, dir, stem, content string) {
	t.Helper()

	WriteFile(t, dir, stem+".cs", content)
	WriteFile(t, dir, stem+".Designer.cs", MigrationSource("Designer",
		WithUp(CreateTableStmt("DesignerOnly", Col{Name: "Id", Type: "Int32"})),
	))
}

// RunConcurrent executes fn on n goroutines and waits for all of them.
// Panics are reported as test failures.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := range n {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()
			fn(workerID)
		}(i)
	}

	wg.Wait()
}
