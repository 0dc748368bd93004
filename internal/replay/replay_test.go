package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schema-replay/internal/catalog"
	"github.com/kyleking/schema-replay/internal/extract"
	"github.com/kyleking/schema-replay/internal/schema"
	"github.com/kyleking/schema-replay/internal/testutil"
)

func scenario(t *testing.T) []catalog.Artifact {
	t.Helper()

	artifacts, err := catalog.List(testutil.ScenarioProject(t), testutil.TestContext)
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	return artifacts
}

// memory builds artifacts whose text is served from a map keyed by path
func memory(files map[string]string) ([]catalog.Artifact, Reader) {
	var artifacts []catalog.Artifact

	for path := range files {
		ts, name, companion := catalog.ParseFileName(path)
		artifacts = append(artifacts, catalog.Artifact{Path: path, Timestamp: ts, Name: name, Companion: companion})
	}

	return artifacts, func(a catalog.Artifact) (string, error) {
		return files[a.Path], nil
	}
}

func TestReconstructScenario(t *testing.T) {
	artifacts := scenario(t)

	tests := []struct {
		name     string
		cutoff   string
		expected []schema.Column
	}{
		{
			name:   "init only",
			cutoff: testutil.TSInit,
			expected: []schema.Column{
				{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
				{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true},
			},
		},
		{
			name:   "through AddAge",
			cutoff: testutil.TSAddAge,
			expected: []schema.Column{
				{Table: "Users", Column: "Age", DisplayType: "int", Nullable: true},
				{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
				{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true},
			},
		},
		{
			name:   "no cutoff",
			cutoff: "",
			expected: []schema.Column{
				{Table: "Users", Column: "Age", DisplayType: "int", Nullable: true},
				{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
			},
		},
		{
			name:     "before everything",
			cutoff:   "20200101000000",
			expected: []schema.Column{},
		},
		{
			name:   "between migrations",
			cutoff: "20230101120000",
			expected: []schema.Column{
				{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
				{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, err := Reconstruct(artifacts, tt.cutoff, ReadFile, WithUpOnly(true))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cols)
		})
	}
}

func TestReconstructWholeTextAppliesDown(t *testing.T) {
	artifacts := scenario(t)

	// AddAge's Down drops the column it just added when the whole file is scanned
	cols, err := Reconstruct(artifacts, testutil.TSAddAge, ReadFile)
	require.NoError(t, err)

	assert.Equal(t, []schema.Column{
		{Table: "Users", Column: "Id", DisplayType: "int", Nullable: false},
		{Table: "Users", Column: "Name", DisplayType: "string", Nullable: true},
	}, cols)
}

func TestReconstructIgnoresCompanionsAndSnapshot(t *testing.T) {
	cols, err := Reconstruct(scenario(t), "", ReadFile, WithUpOnly(true))
	require.NoError(t, err)

	for _, c := range cols {
		assert.Equal(t, "Users", c.Table)
	}
}

func TestReconstructNoCutoffEqualsLatest(t *testing.T) {
	artifacts := scenario(t)

	all, err := Reconstruct(artifacts, "", ReadFile, WithUpOnly(true))
	require.NoError(t, err)

	latest, err := Reconstruct(artifacts, Latest(artifacts), ReadFile, WithUpOnly(true))
	require.NoError(t, err)

	assert.Equal(t, all, latest)
}

func TestReconstructMonotonicPrefix(t *testing.T) {
	artifacts := scenario(t)

	// replaying up to each cutoff equals folding exactly the artifacts at or before it
	for i, a := range artifacts {
		byCutoff, err := Reconstruct(artifacts, a.Timestamp, ReadFile, WithUpOnly(true))
		require.NoError(t, err)

		byPrefix, err := Reconstruct(artifacts[:i+1], "", ReadFile, WithUpOnly(true))
		require.NoError(t, err)

		assert.Equal(t, byPrefix, byCutoff, a.Label())
	}
}

func TestReconstructUnsortedInput(t *testing.T) {
	artifacts := scenario(t)
	reversed := []catalog.Artifact{artifacts[2], artifacts[1], artifacts[0]}

	cols, err := Reconstruct(reversed, "", ReadFile, WithUpOnly(true))
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	// input order is left untouched
	assert.Equal(t, testutil.TSDropName, reversed[0].Timestamp)
}

func TestReconstructDropThenRecreate(t *testing.T) {
	artifacts, read := memory(map[string]string{
		"20230101000000_Create": testutil.CreateTableStmt("Items", testutil.Col{Name: "Code", Type: "Int32"}),
		"20230102000000_Drop":   testutil.DropColumnStmt("Items", "Code"),
		"20230103000000_Readd":  testutil.AddColumnStmt("Items", testutil.Col{Name: "Code", Type: "String", Nullable: true}),
	})

	cols, err := Reconstruct(artifacts, "", read)
	require.NoError(t, err)

	assert.Equal(t, []schema.Column{
		{Table: "Items", Column: "Code", DisplayType: "string", Nullable: true},
	}, cols)
}

func TestReconstructCaseInsensitiveKeys(t *testing.T) {
	artifacts, read := memory(map[string]string{
		"20230101000000_Create": testutil.CreateTableStmt("Users", testutil.Col{Name: "Email", Type: "String", Nullable: true}),
		"20230102000000_Alter":  testutil.AlterColumnStmt("USERS", testutil.Col{Name: "email", Type: "String"}),
		"20230103000000_Noop":   testutil.DropColumnStmt("users", "Missing"),
	})

	cols, err := Reconstruct(artifacts, "", read)
	require.NoError(t, err)

	require.Len(t, cols, 1)
	assert.False(t, cols[0].Nullable)
	assert.Equal(t, "email", cols[0].Column)
}

func TestReconstructUntimestampedAlwaysApplies(t *testing.T) {
	artifacts, read := memory(map[string]string{
		"Legacy":                testutil.CreateTableStmt("Old", testutil.Col{Name: "Id", Type: "Int64"}),
		"20230102000000_Future": testutil.AddColumnStmt("Old", testutil.Col{Name: "Late", Type: "Int32"}),
	})

	cols, err := Reconstruct(artifacts, "20230101000000", read)
	require.NoError(t, err)

	assert.Equal(t, []schema.Column{
		{Table: "Old", Column: "Id", DisplayType: "long", Nullable: false},
	}, cols)
}

func TestReconstructEmpty(t *testing.T) {
	cols, err := Reconstruct(nil, "", ReadFile)
	require.NoError(t, err)
	assert.NotNil(t, cols)
	assert.Empty(t, cols)
}

func TestReconstructReadError(t *testing.T) {
	boom := errors.New("boom")
	artifacts := []catalog.Artifact{{Path: "x.cs", Timestamp: "20230101000000", Name: "X"}}

	_, err := Reconstruct(artifacts, "", func(catalog.Artifact) (string, error) { return "", boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "x.cs")
}

func TestReconstructStopsAtCutoff(t *testing.T) {
	artifacts := scenario(t)

	var reads atomic.Int32

	read := func(a catalog.Artifact) (string, error) {
		reads.Add(1)
		return ReadFile(a)
	}

	_, err := Reconstruct(artifacts, testutil.TSInit, read)
	require.NoError(t, err)
	assert.Equal(t, int32(1), reads.Load())
}

func TestReconstructWithCacheAndObserver(t *testing.T) {
	artifacts := scenario(t)
	cache, err := extract.NewCache(16)
	require.NoError(t, err)

	var observed []string

	observer := WithObserver(func(a catalog.Artifact, ops []schema.Operation) {
		observed = append(observed, fmt.Sprintf("%s:%d", a.Name, len(ops)))
	})

	first, err := Reconstruct(artifacts, "", ReadFile, WithUpOnly(true), WithCache(cache), observer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Init:1", "AddAge:1", "DropName:1"}, observed)
	assert.Equal(t, 3, cache.Len())

	second, err := Reconstruct(artifacts, "", ReadFile, WithUpOnly(true), WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, cache.Len())
}

func TestReconstructConcurrentCallsAreIndependent(t *testing.T) {
	artifacts := scenario(t)

	expected, err := Reconstruct(artifacts, testutil.TSAddAge, ReadFile, WithUpOnly(true))
	require.NoError(t, err)

	testutil.RunConcurrent(t, 8, func(int) {
		cols, err := Reconstruct(artifacts, testutil.TSAddAge, ReadFile, WithUpOnly(true))
		assert.NoError(t, err)
		assert.Equal(t, expected, cols)
	})
}

func TestPrefetch(t *testing.T) {
	artifacts := scenario(t)

	read, err := Prefetch(context.Background(), artifacts, testutil.TSAddAge, 2, ReadFile)
	require.NoError(t, err)

	cols, err := Reconstruct(artifacts, testutil.TSAddAge, read, WithUpOnly(true))
	require.NoError(t, err)
	assert.Len(t, cols, 3)

	// artifacts past the cutoff were never loaded
	_, err = read(artifacts[2])
	assert.Error(t, err)
}

func TestPrefetchError(t *testing.T) {
	artifacts := scenario(t)
	boom := errors.New("boom")

	_, err := Prefetch(context.Background(), artifacts, "", 0, func(a catalog.Artifact) (string, error) {
		if a.Timestamp == testutil.TSAddAge {
			return "", boom
		}

		return ReadFile(a)
	})
	assert.ErrorIs(t, err, boom)
}

func TestPrefetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Prefetch(ctx, scenario(t), "", 1, ReadFile)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatest(t *testing.T) {
	assert.Equal(t, "", Latest(nil))
	assert.Equal(t, "20230103000000", Latest([]catalog.Artifact{
		{Timestamp: "20230103000000"}, {Timestamp: ""}, {Timestamp: "20230101000000"},
	}))
}
